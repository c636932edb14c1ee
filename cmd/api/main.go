package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

// @title Document API
// @version 1.0
// @description Upload, list, download and delete PDF documents.
// @BasePath /
var rootCmd = &cobra.Command{
	Use:   "docapi",
	Short: "PDF document management API",
	Long: `docapi stores uploaded PDF documents, keeps their metadata in PostgreSQL
and serves them back over HTTP.

Usage examples:

1. Run the HTTP server (default):

	docapi serve

2. Create the schema and exit:

	docapi migrate
`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
