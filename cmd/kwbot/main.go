package main

import (
	"fmt"
	"os"

	"kwbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kwbot:", err)
		os.Exit(1)
	}
}
