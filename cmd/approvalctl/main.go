// Command approvalctl runs the approval engine: the escalation scheduler, one-shot
// sweeps and purges against the configured store.
package main

import (
	"os"
)

func main() {
	os.Exit(Run(os.Args[1:]))
}
