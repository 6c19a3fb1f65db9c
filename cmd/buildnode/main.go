// Command buildnode hosts a pool of out-of-process build nodes and is also
// the node process itself (the worker subcommand).
package main

import "os"

func main() { os.Exit(execute(os.Args[1:])) }
