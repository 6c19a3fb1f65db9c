//go:build !windows

package launcher

import (
    "errors"
    "os/exec"
    "syscall"

    "golang.org/x/sys/unix"
)

// lowPriorityNice matches what `nice` applies by default.
const lowPriorityNice = 10

// configureCmd puts the child in its own process group so the whole tree can
// be signalled at once.
func configureCmd(cmd *exec.Cmd) {
    cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func lowerPriority(pid int) error { return unix.Setpriority(unix.PRIO_PROCESS, pid, lowPriorityNice) }

// killTree kills the process group led by pid, falling back to pid alone
// when it does not lead its group (for example an attached process that
// was started by something else).
func killTree(pid int) error {
    if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
        if err := unix.Kill(-pid, unix.SIGKILL); err == nil || errors.Is(err, unix.ESRCH) { return nil }
    }
    if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) { return err }
    return nil
}

// alive reports whether pid exists. Zombies of our own children count as
// gone once reaped by Wait.
func alive(pid int) bool {
    err := unix.Kill(pid, 0)
    return err == nil || errors.Is(err, unix.EPERM)
}
