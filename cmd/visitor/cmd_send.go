package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send one message, optionally with a file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSend,
}

var sendFile string

func init() {
	sendCmd.Flags().StringVar(&sendFile, "file", "", "Attach a file (images, PDF, text, Word; 5MB max)")
}

func runSend(cmd *cobra.Command, args []string) error {
	content := ""
	if len(args) == 1 {
		content = args[0]
	}
	if strings.TrimSpace(content) == "" && sendFile == "" {
		return fmt.Errorf("a message or --file is required")
	}

	client := newClientFromFlags()
	if sendFile == "" {
		msg, err := client.Send(cmd.Context(), content)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s (conversation %s)\n", msg.ID, msg.ConversationID)
		return nil
	}

	f, err := os.Open(sendFile)
	if err != nil {
		return fmt.Errorf("open %s: %w", sendFile, err)
	}
	defer func() { _ = f.Close() }()

	msg, err := client.SendFile(cmd.Context(), content, filepath.Base(sendFile), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s with %s (%s)\n", msg.ID, msg.Attachment.Filename, msg.Attachment.URL)
	return nil
}
