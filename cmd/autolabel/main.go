// Package main implements the autolabel command line tool, which labels
// traffic-scene images and videos with a vision model. It serves the
// dashboard API for interactive use and runs one-shot labeling passes
// from the terminal.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
