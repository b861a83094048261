// Package main provides the entry point for the ragctl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/linkeLi0421/Epstein-Rag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
