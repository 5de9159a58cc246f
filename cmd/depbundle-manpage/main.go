package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/depbundle/cmd/depbundle"
)

func main() {
	rootCmd := depbundle.NewRootCmd()

	if err := doc.GenMan(rootCmd, depbundle.ManHeader(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating man page: %v\n", err)
		os.Exit(1)
	}
}
