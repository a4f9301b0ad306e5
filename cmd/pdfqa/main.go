package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/pdfqa/internal/cli"
	"github.com/cloo-solutions/pdfqa/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pdfqa",
		Short: "pdfqa CLI - Ask questions about PDF documents",
		Long: `pdfqa CLI uploads PDFs to a pdfqa server and asks questions about them.

Environment variables:
  PDFQA_API_URL   API base URL (default: http://localhost:8080)
  PDFQA_SESSION   Session used when --session is not given`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	rootCmd.PersistentFlags().String("session", "", "Session ID (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SessionCmd())
	rootCmd.AddCommand(client.UploadCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.HistoryCmd())
	rootCmd.AddCommand(client.ModelsCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.ConfigCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
