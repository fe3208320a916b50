package realtime

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/supportdesk/internal/metrics"
)

//go:generate mockgen -destination=../mocks/publisher_mock.go -package=mocks . Publisher

// Publisher sends an event to every subscriber of a channel.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// Envelope is one event on one channel. ID is assigned by the hub that
// delivers it and increases monotonically within that hub.
type Envelope struct {
	ID      int64           `json:"id,omitempty"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(channel, event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Channel: channel, Event: event, Data: data}, nil
}

// Subscriber receives envelopes for the channels it has joined.
type Subscriber struct {
	ID     int64
	C      <-chan Envelope
	ch     chan Envelope
	done   chan struct{}
	once   sync.Once
	joined map[string]struct{}
}

// Done is closed when the hub evicts the subscriber or it is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

type channelState struct {
	subs       map[int64]*Subscriber
	replay     *list.List
	lastActive time.Time
}

// Hub is the in-process channel registry. A full subscriber buffer evicts the
// subscriber instead of blocking the publisher; clients reconnect with
// Last-Event-ID and catch up from the replay buffer.
type Hub struct {
	mu         sync.RWMutex
	channels   map[string]*channelState
	replaySize int
	bufferSize int

	eventCounter int64

	subMu      sync.Mutex
	subCounter int64

	now    func() time.Time
	logger *slog.Logger
}

// HubConfig sizes the hub's buffers.
type HubConfig struct {
	ReplaySize       int
	SubscriberBuffer int
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = 100
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channels:   make(map[string]*channelState),
		replaySize: cfg.ReplaySize,
		bufferSize: cfg.SubscriberBuffer,
		now:        time.Now,
		logger:     logger.With("component", "hub"),
	}
}

// Publish delivers payload to local subscribers.
func (h *Hub) Publish(ctx context.Context, channel, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := NewEnvelope(channel, event, payload)
	if err != nil {
		return err
	}
	h.Deliver(env)
	return nil
}

// Deliver assigns an event ID, records the envelope for replay and fans it out.
// One lock covers ID assignment and fan-out, so subscribers and the replay
// buffer see a channel's events in ID order.
func (h *Hub) Deliver(env Envelope) Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.eventCounter++
	env.ID = h.eventCounter

	st := h.stateLocked(env.Channel)
	st.replay.PushBack(env)
	for st.replay.Len() > h.replaySize {
		st.replay.Remove(st.replay.Front())
	}
	st.lastActive = h.now()

	// Sends never block.
	var slow []*Subscriber
	for _, s := range st.subs {
		select {
		case <-s.done:
		case s.ch <- env:
		default:
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		metrics.DroppedDeliveries.Inc()
		h.logger.Warn("Subscriber buffer full, evicting", "subscriber_id", s.ID, "channel", env.Channel)
		h.removeLocked(s)
	}
	return env
}

// NewSubscriber registers a subscriber with no channels.
func (h *Hub) NewSubscriber() *Subscriber {
	h.subMu.Lock()
	h.subCounter++
	id := h.subCounter
	h.subMu.Unlock()

	ch := make(chan Envelope, h.bufferSize)
	return &Subscriber{
		ID:     id,
		C:      ch,
		ch:     ch,
		done:   make(chan struct{}),
		joined: make(map[string]struct{}),
	}
}

// Join adds the subscriber to channel and returns buffered events newer than afterID.
func (h *Hub) Join(s *Subscriber, channel string, afterID int64) []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-s.done:
		return nil
	default:
	}

	st := h.stateLocked(channel)
	st.subs[s.ID] = s
	st.lastActive = h.now()
	s.joined[channel] = struct{}{}

	if afterID <= 0 {
		return nil
	}
	var missed []Envelope
	for e := st.replay.Front(); e != nil; e = e.Next() {
		env := e.Value.(Envelope)
		if env.ID > afterID {
			missed = append(missed, env)
		}
	}
	return missed
}

// Leave removes the subscriber from one channel.
func (h *Hub) Leave(s *Subscriber, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, channel)
}

// Remove detaches the subscriber from every channel and closes it.
func (h *Hub) Remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	for channel := range s.joined {
		h.leaveLocked(s, channel)
	}
	s.close()
}

func (h *Hub) leaveLocked(s *Subscriber, channel string) {
	if st, ok := h.channels[channel]; ok {
		delete(st.subs, s.ID)
		st.lastActive = h.now()
	}
	delete(s.joined, channel)
}

// SubscriberCount returns the number of subscribers on a channel.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.channels[channel]; ok {
		return len(st.subs)
	}
	return 0
}

// Sweep drops replay buffers of channels with no subscribers that have been
// idle longer than idle. Returns the number of channels removed.
func (h *Hub) Sweep(idle time.Duration) int {
	cutoff := h.now().Add(-idle)
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for name, st := range h.channels {
		if len(st.subs) == 0 && st.lastActive.Before(cutoff) {
			delete(h.channels, name)
			removed++
		}
	}
	return removed
}

func (h *Hub) stateLocked(channel string) *channelState {
	st, ok := h.channels[channel]
	if !ok {
		st = &channelState{subs: make(map[int64]*Subscriber), replay: list.New()}
		h.channels[channel] = st
	}
	return st
}

// mergeMissed orders replayed envelopes from several channels by event ID.
func mergeMissed(batches ...[]Envelope) []Envelope {
	var all []Envelope
	for _, b := range batches {
		all = append(all, b...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}
