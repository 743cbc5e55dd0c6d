// Command execrt is the CLI front end for the intent router: route a
// single envelope, inspect and recover executions, and verify the
// integrity of the write-ahead log and its derived records.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gomind-labs/execrt/internal/cli"
)

func main() {
	ctx := context.Background()
	root := cli.NewRootCommand()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
