// Package main provides the datalyst CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/okoro/datalyst/cli"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "datalyst",
		Short: "LLM-driven data analysis with sandboxed code execution",
		Long: `An analysis engine that answers data questions by driving LLM providers
through an iterative feedback loop, executing generated Python inside a
Docker sandbox, and falling back across providers on failure.

Two modes available:
- serve: run the HTTP API (multipart uploads with a question.txt)
- ask:   answer a single question from the command line`,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(askCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis API",
		Long: `Run the HTTP analysis API.

POST /analyze accepts a multipart upload where one part named question.txt
carries the question and the remaining parts form the file manifest made
available to generated code. Listen address and provider credentials come
from the environment (see .env).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cli.Serve(ctx, cli.Options{Verbose: verbose, Host: host, Port: port})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen address (overrides API_HOST)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides API_PORT)")

	return cmd
}

func askCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question from the command line",
		Long: `Answer a single question from the command line.

Files passed with --file are staged into the sandbox workspace under their
base names, the same way HTTP uploads are. The result is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(context.Background(), args[0], files, cli.Options{Verbose: verbose})
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Data file to stage for analysis (repeatable)")

	return cmd
}
