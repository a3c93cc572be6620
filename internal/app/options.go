package service

import (
	"fmt"
	"time"

	"github.com/okian/shipaudit/internal/adapters/repository"
	"github.com/okian/shipaudit/internal/domain/model"
	"github.com/okian/shipaudit/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithLogger sets a custom logger for the coordinator.
func WithLogger(logger logger.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSink sets where enriched rows are appended.
func WithSink(sink repository.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithClassifier replaces the default on-time classifier.
func WithClassifier(classifier Classifier) Option {
	return func(c *Coordinator) {
		if classifier != nil {
			c.classifier = classifier
		}
	}
}

// WithSessions sets the lookup sessions. Each gets its own worker; with a
// single session records are processed strictly in input order.
func WithSessions(lookups ...Lookup) Option {
	return func(c *Coordinator) {
		c.sessions = c.sessions[:0]
		for i, l := range lookups {
			if l == nil {
				continue
			}
			c.sessions = append(c.sessions, &session{
				name:   fmt.Sprintf("session-%d", i),
				lookup: l,
				mode:   model.ModeFresh,
			})
		}
	}
}

// WithLookupTimeout bounds a single tracking lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

// WithLookupGrace sets how long a lookup that overran its deadline may take
// to return before its session is retired.
func WithLookupGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.lookupGrace = d
		}
	}
}

// WithPause sets how long a session waits after each lookup.
func WithPause(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.pause = d
		}
	}
}

// WithQueueSize sets how many records may wait for a free session.
func WithQueueSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.queueSize = size
		}
	}
}
