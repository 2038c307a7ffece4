// Command sessionctl drives a goSession engine from the shell. Each
// invocation behaves like one foreground period of a host application:
// it hydrates from the credential store, runs the return policy against
// the previous invocation's exit markers, executes one command and records
// new exit markers on the way out.
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
