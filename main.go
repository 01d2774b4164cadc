package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/agenticgokit/crewview/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}
