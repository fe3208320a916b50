// visitor is a terminal stand-in for the chat widget.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "visitor",
	Short: "Chat with a support desk as a website visitor",
	Long: `visitor talks to the support desk widget API from a terminal.

Examples:
  visitor chat --website 3f6c... --visitor alice
  visitor send --website 3f6c... "Do you ship to Chile?"
  visitor send --website 3f6c... --file invoice.pdf
  visitor history --website 3f6c...`,
	Version: version,
}

var opts struct {
	server  string
	website string
	visitor string
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", envOr("SUPPORTDESK_URL", "http://localhost:8080"), "Support desk base URL")
	rootCmd.PersistentFlags().StringVar(&opts.website, "website", os.Getenv("SUPPORTDESK_WEBSITE"), "Website ID")
	rootCmd.PersistentFlags().StringVar(&opts.visitor, "visitor", envOr("SUPPORTDESK_VISITOR", "cli-"+uuid.NewString()[:8]), "Visitor token")
	_ = rootCmd.MarkPersistentFlagRequired("website")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClientFromFlags() *Client {
	return NewClient(opts.server, opts.website, opts.visitor)
}
