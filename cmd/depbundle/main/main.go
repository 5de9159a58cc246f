package main

import (
	"fmt"
	"os"

	"github.com/arthur-debert/depbundle/cmd/depbundle"
	"github.com/arthur-debert/depbundle/pkg/ui/styles"
)

func main() {
	rootCmd := depbundle.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Render("Error", fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}
