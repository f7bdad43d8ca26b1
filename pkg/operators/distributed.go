package operators

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// PullClient is the pkg/distcoord seam PullRemote drives — pulling frames
// from a subplan running on a peer worker.
type PullClient interface {
	// Pull requests the next batch of rows for planID from worker, keyed
	// by this transaction's id, and reports whether the peer's cursor is
	// exhausted alongside any rows it returned.
	Pull(ctx context.Context, worker uint16, txID uint64, planID string) (rows []*gval.Frame, exhausted bool, err error)
	Reset(ctx context.Context, worker uint16, txID uint64, planID string) error
}

// PullRemote streams rows produced by an identical subplan running on a
// remote worker, buffering whatever batch PullClient last returned and
// re-requesting once it is drained.
type PullRemote struct {
	Client PullClient
	Worker uint16
	PlanID string

	// PollInterval is how long to back off before re-requesting a batch
	// when the peer returned no rows but is not yet exhausted, the
	// runtime analogue of the original FLAGS_remote_pull_sleep constant
	// (now gconfig.Config.RemotePullSleep). Zero means retry immediately.
	PollInterval time.Duration

	buffer    []*gval.Frame
	pos       int
	exhausted bool
}

func (p *PullRemote) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	for p.pos >= len(p.buffer) {
		if p.exhausted {
			return false, nil
		}
		rows, exhausted, err := p.Client.Pull(ctx, p.Worker, execCtx.Tx.ID(), p.PlanID)
		if err != nil {
			return false, cursor.Wrap(cursor.KindNetwork, err, "pull from worker %d", p.Worker)
		}
		p.buffer = rows
		p.pos = 0
		p.exhausted = exhausted
		if len(rows) == 0 {
			if exhausted {
				return false, nil
			}
			if err := p.sleep(ctx); err != nil {
				return false, err
			}
		}
	}
	frame.CopyFrom(p.buffer[p.pos])
	p.pos++
	return true, nil
}

func (p *PullRemote) sleep(ctx context.Context) error {
	if p.PollInterval <= 0 {
		return nil
	}
	timer := time.NewTimer(p.PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PullRemote) Reset() error {
	p.buffer = nil
	p.pos = 0
	p.exhausted = false
	return p.Client.Reset(context.Background(), p.Worker, 0, p.PlanID)
}
func (p *PullRemote) Close() error { return nil }

// UpdatesClient is the seam Synchronize uses to broadcast this worker's
// deferred remote writes, learn when every worker has drained its local
// branch, and then apply every worker's deferred remote writes so they
// become visible together, at the barrier, rather than only once each
// worker eventually commits on its own.
type UpdatesClient interface {
	Broadcast(ctx context.Context, txID uint64, barrierID string) error
	AwaitAllExhausted(ctx context.Context, txID uint64, barrierID string) error
	Apply(ctx context.Context, txID uint64) error
}

// Synchronize is the distributed barrier making a WITH boundary safe to
// place across a query that touches more than one worker's data. Every
// worker accumulates all of its local branch's rows, broadcasts that it is
// done, waits until every other worker reports the same, applies every
// worker's deferred remote writes so a CREATE dispatched to a peer becomes
// visible on every worker at once, advances the transaction's command id,
// streams its own accumulated rows, and finally — if this barrier also has
// rows arriving from a peer's identical subplan — drains those too.
type Synchronize struct {
	Input     cursor.Cursor
	Remote    cursor.Cursor // optional: a PullRemote (or similar) child drained after the local rows
	Updates   UpdatesClient
	BarrierID string

	rows    []*gval.Frame
	pos     int
	barrier bool
}

func (s *Synchronize) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if !s.barrier {
		for {
			if err := cursor.CheckAbort(ctx, execCtx); err != nil {
				return false, err
			}
			row := gval.NewFrame(frame.Size())
			ok, err := s.Input.Pull(ctx, row, execCtx)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			s.rows = append(s.rows, row.Clone())
		}

		logrus.WithFields(logrus.Fields{
			"barrier": s.BarrierID,
			"tx":      execCtx.Tx.ID(),
			"rows":    len(s.rows),
		}).Debug("synchronize: local branch drained, entering barrier")

		if err := s.Updates.Broadcast(ctx, execCtx.Tx.ID(), s.BarrierID); err != nil {
			return false, cursor.Wrap(cursor.KindNetwork, err, "synchronize broadcast")
		}
		if err := s.Updates.AwaitAllExhausted(ctx, execCtx.Tx.ID(), s.BarrierID); err != nil {
			return false, cursor.Wrap(cursor.KindNetwork, err, "synchronize await")
		}
		if err := s.Updates.Apply(ctx, execCtx.Tx.ID()); err != nil {
			return false, err
		}
		execCtx.Tx.AdvanceCommand()
		s.barrier = true
	}

	if s.pos >= len(s.rows) {
		if s.Remote != nil {
			return s.Remote.Pull(ctx, frame, execCtx)
		}
		return false, nil
	}
	frame.CopyFrom(s.rows[s.pos])
	s.pos++
	return true, nil
}

func (s *Synchronize) Reset() error {
	s.rows = nil
	s.pos = 0
	s.barrier = false
	if s.Remote != nil {
		if err := s.Remote.Reset(); err != nil {
			return err
		}
	}
	return s.Input.Reset()
}

func (s *Synchronize) Close() error {
	if s.Remote != nil {
		if err := s.Remote.Close(); err != nil {
			return err
		}
	}
	return s.Input.Close()
}
