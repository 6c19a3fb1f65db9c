//go:build windows

package launcher

import (
    "os/exec"
    "strconv"
    "syscall"

    "golang.org/x/sys/windows"
)

const stillActive = 259

func configureCmd(cmd *exec.Cmd) {
    cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func lowerPriority(pid int) error {
    h, err := windows.OpenProcess(windows.PROCESS_SET_INFORMATION, false, uint32(pid))
    if err != nil { return err }
    defer windows.CloseHandle(h)
    return windows.SetPriorityClass(h, windows.BELOW_NORMAL_PRIORITY_CLASS)
}

// killTree uses taskkill, which walks the parent/child relation.
func killTree(pid int) error {
    return exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid)).Run()
}

func alive(pid int) bool {
    h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
    if err != nil { return false }
    defer windows.CloseHandle(h)
    var code uint32
    if err := windows.GetExitCodeProcess(h, &code); err != nil { return false }
    return code == stillActive
}
