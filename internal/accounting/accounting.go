// Package accounting implements the usage accounting sink: an async,
// non-blocking hook fed from the response path, generalized from a
// streaming-log chunk-channel pattern to usage records.
package accounting

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Record is one billable event: a completed unary response or a finished
// stream.
type Record struct {
	SessionID string
	Backend   string
	Model     string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Timestamp        time.Time
}

// Sink consumes accounting records. Implementations must not block the
// request path; Record queues or drops under backpressure.
type Sink interface {
	Record(r Record)
}

// ChannelSink is the default in-process sink: a single buffered channel
// drained by one background goroutine, with a "send non-blocking, drop on
// a full buffer" discipline rather than ever stalling the response path.
type ChannelSink struct {
	ch chan Record
}

// NewChannelSink starts a ChannelSink backed by a channel of the given
// capacity, draining into consume until Close is called.
func NewChannelSink(capacity int, consume func(Record)) *ChannelSink {
	s := &ChannelSink{ch: make(chan Record, capacity)}
	go func() {
		for r := range s.ch {
			consume(r)
		}
	}()
	return s
}

// Record enqueues r, dropping it (and logging once) if the buffer is full
// rather than blocking the caller.
func (s *ChannelSink) Record(r Record) {
	select {
	case s.ch <- r:
	default:
		log.Warnf("accounting: buffer full, dropping usage record for session %s", r.SessionID)
	}
}

// Close stops accepting records and lets the drain goroutine exit once the
// channel empties.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// NoopSink discards every record; the default when accounting is disabled.
type NoopSink struct{}

func (NoopSink) Record(Record) {}
