// Package main implements the fesoni command: the HTTP server that turns
// aesthetic descriptions into shopping results, plus one-shot commands for
// running the pipeline and checking system health from a terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
