package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Gate modes.
const (
	GateReject = "reject"
	GateQueue  = "queue"
)

// Gate admits one mutating command at a time. In reject mode a command that
// arrives while another is running fails with ErrOperationInFlight; in queue
// mode it waits for its turn until its context ends.
type Gate struct {
	slot    chan struct{}
	mode    string
	latency time.Duration
	timeout time.Duration
}

// NewGate creates a gate. latency is waited before every command runs;
// timeout bounds the wait plus the command. Zero disables either.
func NewGate(mode string, latency, timeout time.Duration) *Gate {
	if mode != GateQueue {
		mode = GateReject
	}
	return &Gate{
		slot:    make(chan struct{}, 1),
		mode:    mode,
		latency: latency,
		timeout: timeout,
	}
}

// Busy reports whether a command is in flight.
func (g *Gate) Busy() bool {
	return len(g.slot) > 0
}

// Mode returns the admission mode.
func (g *Gate) Mode() string {
	return g.mode
}

// Do runs fn once the gate admits it. The timeout covers the queued wait as
// well as the command. A command whose context ends before fn starts is not
// run at all.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-g.slot }()

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return contextError(ctx.Err())
		}
	}

	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	return fn(ctx)
}

func (g *Gate) acquire(ctx context.Context) error {
	if g.mode == GateReject {
		select {
		case g.slot <- struct{}{}:
			return nil
		default:
			return ErrOperationInFlight
		}
	}
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return contextError(ctx.Err())
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOperationTimeout, err)
	}
	return err
}
