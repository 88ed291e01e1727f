// Package main provides the entry point for the session broker daemon.
package main

import (
	"fmt"
	"os"

	"github.com/sessionbroker/broker/cmd/sessionbrokerd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
