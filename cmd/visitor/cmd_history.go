package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ashureev/supportdesk/internal/domain"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the current conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		h, err := newClientFromFlags().History(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if h.ConversationID == "" {
			fmt.Fprintln(out, "No conversation yet.")
			return nil
		}
		fmt.Fprintf(out, "Conversation %s (%s)\n", h.ConversationID, h.Status)
		for _, m := range h.Messages {
			printMessage(out, m)
		}
		return nil
	},
}

func printMessage(w io.Writer, m *domain.Message) {
	who := "you"
	if m.SenderType == domain.SenderUser {
		who = m.SenderName
		if who == "" {
			who = "agent"
		}
	}
	line := m.Content
	if m.Attachment != nil {
		line = fmt.Sprintf("%s [%s %s]", line, m.Attachment.Filename, m.Attachment.URL)
	}
	read := ""
	if m.ReadAt != nil {
		read = " ✓"
	}
	fmt.Fprintf(w, "%s  %-12s %s%s\n", m.CreatedAt.Local().Format("15:04"), who+":", line, read)
}
