package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marloweai/marlowe/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marlowed",
		Short: "Marlowe daemon",
		Long:  "Marlowe daemon for running the knowledge API server and maintenance tasks",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.ReconcileCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
