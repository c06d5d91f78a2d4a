// Package relay pushes a lazily produced fragment sequence to a transport
// sink, with keep-alives while the producer is busy and an explicit end
// marker.
package relay

import (
	"context"
	"fmt"
	"iter"
	"time"
)

// DefaultKeepAlive is the idle interval after which a keep-alive is sent.
const DefaultKeepAlive = 15 * time.Second

// Sink is an outward push transport.
type Sink interface {
	Fragment(text string) error
	KeepAlive() error
	// Done writes the terminal marker.
	Done() error
}

// Relay forwards fragments to sink in order and finishes with sink.Done. The
// sequence is consumed on its own goroutine and the next fragment is only
// requested once the previous one was written, so nothing is generated ahead
// of the sink. When ctx ends or the sink fails, the producer is told to stop
// at its next fragment boundary.
//
// Relay returns only after the sequence has returned, so state the sequence
// mutates is no longer touched once Relay is done. Callers should cancel the
// context driving the sequence when the sink fails, or Relay waits for the
// sequence's next fragment.
func Relay(ctx context.Context, fragments iter.Seq[string], sink Sink, keepAlive time.Duration) error {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	out := make(chan string)
	demand := make(chan struct{})
	stop := make(chan struct{})
	finished := make(chan struct{})
	defer func() {
		close(stop)
		<-finished
	}()

	go func() {
		defer close(finished)
		defer close(out)
		wait := func() bool {
			select {
			case <-demand:
				return true
			case <-stop:
				return false
			}
		}
		if !wait() {
			return
		}
		for f := range fragments {
			select {
			case out <- f:
			case <-stop:
				return
			}
			if !wait() {
				return
			}
		}
	}()

	idle := time.NewTimer(keepAlive)
	defer idle.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case demand <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	wait:
		for {
			select {
			case f, ok := <-out:
				if !ok {
					return sink.Done()
				}
				if err := sink.Fragment(f); err != nil {
					return fmt.Errorf("relay fragment: %w", err)
				}
				idle.Reset(keepAlive)
				break wait
			case <-idle.C:
				if err := sink.KeepAlive(); err != nil {
					return fmt.Errorf("relay keep-alive: %w", err)
				}
				idle.Reset(keepAlive)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
