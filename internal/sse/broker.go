// Package sse implements a Server-Sent Events broker streaming vault changes.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/vaultkeep/internal/engine"
	"github.com/starford/vaultkeep/internal/metrics"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeFileCreated  = "file.created"
	TypeFileUpdated  = "file.updated"
	TypeFileDeleted  = "file.deleted"
	TypeFileMoved    = "file.moved"
	TypeGraphUpdated = "graph.updated"
)

var changeTypes = map[engine.ChangeKind]string{
	engine.ChangeCreated: TypeFileCreated,
	engine.ChangeUpdated: TypeFileUpdated,
	engine.ChangeDeleted: TypeFileDeleted,
	engine.ChangeMoved:   TypeFileMoved,
}

// Defaults for zero options.
const (
	DefaultGraphThrottle = 2 * time.Second
	DefaultHistory       = 128
	DefaultKeepAlive     = 30 * time.Second
	clientBuffer         = 64
	queueSize            = 256
)

// frame is one encoded event with its stream id.
type frame struct {
	id  uint64
	raw []byte
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

// Broker fans events out to SSE clients. Every event gets an increasing id
// and the last few are kept so a reconnecting client sending Last-Event-ID
// receives what it missed.
//
// A single loop goroutine owns the clients, the history and the throttle
// state. Public methods talk to it over channels.
type Broker struct {
	graphMin  time.Duration
	history   int
	keepAlive time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics

	subscribeCh   chan subscription
	unsubscribeCh chan (<-chan []byte)
	publishCh     chan Event
	changeCh      chan engine.Change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithGraphThrottle sets the minimum gap between graph.updated events.
func WithGraphThrottle(d time.Duration) Option {
	return func(b *Broker) { b.graphMin = d }
}

// WithHistory sets how many events are kept for replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.history = n }
}

// WithKeepAlive sets the interval of comment frames on idle streams.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) { b.log = l }
}

// WithMetrics records client counts and dropped frames.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// NewBroker starts a broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan (<-chan []byte)),
		publishCh:     make(chan Event, queueSize),
		changeCh:      make(chan engine.Change, queueSize),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.graphMin <= 0 {
		b.graphMin = DefaultGraphThrottle
	}
	if b.history < 0 {
		b.history = 0
	} else if b.history == 0 {
		b.history = DefaultHistory
	}
	if b.keepAlive <= 0 {
		b.keepAlive = DefaultKeepAlive
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.metrics = metrics.OrNop(b.metrics)

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	var (
		clients   = make(map[<-chan []byte]chan []byte)
		ring      []frame
		seq       uint64
		lastGraph time.Time
	)

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			b.metrics.StreamDropped.Inc()
		}
	}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			b.log.Warn("sse: encode failed",
				slog.String("type", event.Type),
				slog.String("error", err.Error()))
			return
		}
		seq++
		f := frame{id: seq, raw: fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)}
		if b.history > 0 {
			if len(ring) == b.history {
				ring = append(ring[:0], ring[1:]...)
			}
			ring = append(ring, f)
		}
		for _, ch := range clients {
			send(ch, f.raw)
		}
	}

	for {
		select {
		case <-b.stopCh:
			for _, ch := range clients {
				close(ch)
			}
			b.metrics.StreamClients.Set(0)
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.ch
			b.metrics.StreamClients.Set(float64(len(clients)))
			if sub.lastID > 0 {
				for _, f := range ring {
					if f.id > sub.lastID {
						send(sub.ch, f.raw)
					}
				}
			}

		case ch := <-b.unsubscribeCh:
			if out, ok := clients[ch]; ok {
				delete(clients, ch)
				close(out)
				b.metrics.StreamClients.Set(float64(len(clients)))
			}

		case event := <-b.publishCh:
			broadcast(event)

		case c := <-b.changeCh:
			typ, ok := changeTypes[c.Kind]
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: c})

			if now := time.Now(); now.Sub(lastGraph) >= b.graphMin {
				lastGraph = now
				broadcast(Event{Type: TypeGraphUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client. Events with ids above lastEventID that are still
// in the history are delivered first. Zero means no replay.
func (b *Broker) Subscribe(lastEventID uint64) <-chan []byte {
	ch := make(chan []byte, max(clientBuffer, b.history))
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- subscription{ch: ch, lastID: lastEventID}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch <-chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange publishes a file change and a throttled graph.updated event.
// It never blocks: changes arriving while the queue is full are dropped, so it
// is safe to pass to engine.Subscribe.
func (b *Broker) PublishChange(c engine.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- c:
	case <-b.stopped:
	default:
		b.metrics.StreamDropped.Inc()
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
