// ./main.go
package main

import (
	"github.com/xkilldash9x/percept-cli/cmd"
)

// main is the entry point for the percept CLI.
func main() {
	// Execute handles command-line parsing, configuration and signal-aware
	// command execution.
	cmd.Execute()
}
