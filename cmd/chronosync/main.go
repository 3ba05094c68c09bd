// chronosync runs a node that keeps the published message numbers of a group of
// clients synchronized.
package main

import (
	"fmt"
	"os"

	"github.com/spacemeshos/go-chronosync/cmd"
	"github.com/spacemeshos/go-chronosync/node"
)

var (
	version string
	commit  string
	branch  string
)

func main() { // run the app
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := node.GetCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
