// Package transcript appends every persisted chat message to a per-conversation
// NDJSON file for offline review.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
)

// Config controls where transcripts are written.
type Config struct {
	Dir       string
	QueueSize int
}

// Entry is one line of a transcript file.
type Entry struct {
	LoggedAt       time.Time          `json:"loggedAt"`
	ConversationID string             `json:"conversationId"`
	MessageID      string             `json:"messageId"`
	SenderType     domain.SenderType  `json:"senderType"`
	SenderID       string             `json:"senderId,omitempty"`
	VisitorID      string             `json:"visitorId,omitempty"`
	Content        string             `json:"content"`
	Attachment     *domain.Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Writer queues entries and writes them from a single goroutine, so slow
// disks never hold up message delivery. Entries are dropped when the queue is full.
type Writer struct {
	dir    string
	queue  chan Entry
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewWriter creates the transcript directory and starts the writer goroutine.
func NewWriter(cfg Config, logger *slog.Logger) (*Writer, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript directory is empty")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	w := &Writer{
		dir:    cfg.Dir,
		queue:  make(chan Entry, cfg.QueueSize),
		logger: logger.With("component", "transcript"),
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Append queues msg for the conversation's transcript. It is a no-op after Close.
func (w *Writer) Append(conversationID string, msg *domain.Message) {
	e := Entry{
		LoggedAt:       time.Now().UTC(),
		ConversationID: conversationID,
		MessageID:      msg.ID,
		SenderType:     msg.SenderType,
		SenderID:       msg.SenderID,
		VisitorID:      msg.VisitorID,
		Content:        msg.Content,
		Attachment:     msg.Attachment,
		CreatedAt:      msg.CreatedAt,
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("Transcript queue full, dropping entry", "conversation_id", conversationID, "message_id", msg.ID)
	}
}

// Close flushes queued entries and stops the writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}

func (w *Writer) run() {
	defer close(w.done)
	for e := range w.queue {
		if err := w.write(e); err != nil {
			w.logger.Error("Failed to write transcript entry", "conversation_id", e.ConversationID, "error", err)
		}
	}
}

func (w *Writer) write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	path := filepath.Join(w.dir, filepath.Base(e.ConversationID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
