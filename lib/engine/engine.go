// Package engine wires a parsed rule.Set into a running set of
// stream and datagram forwarders, and owns their collective shutdown.
//
// Grounded on cmd/sam-bridge/main.go's start-in-goroutine/errChan/
// signal-select/graceful-shutdown sequence, generalized from one
// server to N independent per-rule forwarders.
package engine

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/relaydaemon/rinetd/lib/datagram"
	"github.com/relaydaemon/rinetd/lib/logsink"
	"github.com/relaydaemon/rinetd/lib/rule"
	"github.com/relaydaemon/rinetd/lib/stream"
)

// Engine owns every forwarder started for one rule.Set, plus the
// optional stream event-log sink they share.
type Engine struct {
	diag *logrus.Logger
	sink *logsink.Sink

	mu        sync.Mutex
	streams   []*stream.Forwarder
	datagrams []*datagram.Forwarder

	wg      sync.WaitGroup
	errOnce sync.Once
	errChan chan error
}

// New builds an Engine for set. diag is the ambient diagnostic
// logger; it must not be nil.
func New(set rule.Set, diag *logrus.Logger) *Engine {
	e := &Engine{
		diag:    diag,
		errChan: make(chan error, 1),
	}
	if set.LogPath != "" {
		// The persistent-descriptor mode is non-blocking and cheaper
		// per write, so it is used whenever the log path opens
		// successfully at startup, per spec.md §4.6; a failed open
		// (e.g. the directory does not exist yet) falls back to the
		// per-write-file mode, which retries the open on every write.
		if f, err := os.OpenFile(set.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			e.sink = logsink.NewDescriptorSink(f, diag)
		} else {
			if diag != nil {
				diag.WithError(err).WithField("path", set.LogPath).
					Warn("engine: failed to open persistent log descriptor, falling back to per-write file mode")
			}
			e.sink = logsink.NewFileSink(set.LogPath, diag)
		}
	}

	for _, r := range set.Rules {
		switch r.Proto {
		case rule.TCP:
			e.streams = append(e.streams, stream.NewForwarder(r, e.sink, diag))
		case rule.UDP:
			e.datagrams = append(e.datagrams, datagram.NewForwarder(r, diag))
		}
	}
	return e
}

// StreamCount and DatagramCount report the number of forwarders of
// each kind, for diagnostics and tests.
func (e *Engine) StreamCount() int   { return len(e.streams) }
func (e *Engine) DatagramCount() int { return len(e.datagrams) }

// Start launches every forwarder's accept/receive loop on its own
// goroutine. It does not block; use the error channel returned by
// Errors to observe a forwarder's terminal error.
func (e *Engine) Start() {
	for _, f := range e.streams {
		f := f
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := f.ListenAndServe(); err != nil {
				e.reportError(fmt.Errorf("stream %s: %w", f.Addr(), err))
			}
		}()
	}
	for _, f := range e.datagrams {
		f := f
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := f.ListenAndServe(); err != nil {
				e.reportError(fmt.Errorf("datagram forwarder: %w", err))
			}
		}()
	}
}

func (e *Engine) reportError(err error) {
	e.errOnce.Do(func() {
		e.errChan <- err
	})
	if e.diag != nil {
		e.diag.WithError(err).Error("engine: forwarder terminated")
	}
}

// Errors returns the channel that receives a forwarder's terminal
// error, if any. Only the first reported error is delivered.
func (e *Engine) Errors() <-chan error {
	return e.errChan
}

// Shutdown closes every forwarder and the shared log sink, and waits
// for all forwarder goroutines to return.
func (e *Engine) Shutdown() {
	for _, f := range e.streams {
		f.Close()
	}
	for _, f := range e.datagrams {
		f.Close()
	}
	e.wg.Wait()
	if e.sink != nil {
		e.sink.Close()
	}
}
