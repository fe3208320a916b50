package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/typing"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive chat session",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// frame is the subset of the realtime WebSocket frame the visitor reads.
type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type typingPayload struct {
	VisitorID string `json:"visitorId"`
	IsTyping  bool   `json:"isTyping"`
}

// session holds what the stream needs to filter the public visitor channel
// down to this visitor's conversation.
type session struct {
	mu             sync.Mutex
	conversationID string
	out            io.Writer
	indicator      *typing.Indicator
}

func (s *session) setConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		s.conversationID = id
	}
}

func (s *session) conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// handleFrame prints agent replies and tracks agent typing. Events for other
// visitors on the same website are ignored.
func (s *session) handleFrame(f frame) {
	switch {
	case f.Type == "error":
		fmt.Fprintf(s.out, "! %s\n", f.Error)
	case f.Type != "event":
	case f.Event == "message":
		var m domain.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return
		}
		if m.SenderType != domain.SenderUser || m.ConversationID == "" || m.ConversationID != s.conversation() {
			return
		}
		s.indicator.Observe(identity.AgentTypingToken, false)
		printMessage(s.out, &m)
	case f.Event == "typing":
		var p typingPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return
		}
		if p.VisitorID == identity.AgentTypingToken {
			s.indicator.Observe(p.VisitorID, p.IsTyping)
		}
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := newClientFromFlags()
	out := cmd.OutOrStdout()
	sess := &session{out: out}
	sess.indicator = typing.NewIndicator(nil, func(_ string, on bool) {
		if on {
			fmt.Fprintln(out, "… agent is typing")
		}
	})

	hist, err := client.History(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	sess.setConversation(hist.ConversationID)
	fmt.Fprintf(out, "Chatting as %s. Type a message and press Enter; Ctrl-D to quit.\n", client.VisitorID())
	for _, m := range hist.Messages {
		printMessage(out, m)
	}

	conn, _, err := websocket.Dial(ctx, client.StreamURL(uuid.NewString()), nil)
	if err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	go func() {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					fmt.Fprintf(cmd.ErrOrStderr(), "stream closed: %v\n", err)
				}
				stop()
				return
			}
			var f frame
			if json.Unmarshal(data, &f) == nil {
				sess.handleFrame(f)
			}
		}
	}()

	signals := make(chan bool, 8)
	sender := typing.NewSender(nil, func(isTyping bool) {
		select {
		case signals <- isTyping:
		default:
		}
	})
	defer sender.Blur()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-signals:
				if err := client.Typing(context.WithoutCancel(ctx), v); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "typing: %v\n", err)
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ignoreCanceled(ctx.Err())
		case line, ok := <-lines:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "bye")
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			sender.Keystroke()
			msg, err := client.Send(ctx, line)
			sender.Blur()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "send failed: %v\n", err)
				continue
			}
			sess.setConversation(msg.ConversationID)
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
