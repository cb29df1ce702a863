package player

import (
	"context"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/element"
	"github.com/halcyonlabs/kaleido/internal/history"
	"github.com/halcyonlabs/kaleido/internal/media"
	"github.com/halcyonlabs/kaleido/internal/queue"
)

// Session ties the queue to the controller: user navigation goes down
// through it, element events come back up through its Run loop.
type Session struct {
	log  *zap.Logger
	q    *queue.Queue
	ctrl *Controller
	el   *element.Element
	hist History
}

// NewSession wires a session. hist may be nil.
func NewSession(log *zap.Logger, q *queue.Queue, ctrl *Controller, el *element.Element, hist History) *Session {
	return &Session{log: log, q: q, ctrl: ctrl, el: el, hist: hist}
}

// Queue exposes the underlying queue for state endpoints.
func (s *Session) Queue() *queue.Queue {
	return s.q
}

// Play selects the item (appending it to the queue when absent) and starts
// playback.
func (s *Session) Play(ctx context.Context, item media.Item) error {
	s.q.SetCurrent(item)
	return s.ctrl.Load(ctx, item)
}

// Next skips to the following queue item and plays it.
func (s *Session) Next(ctx context.Context) error {
	if cur, ok := s.q.Current(); ok && s.hist != nil {
		s.hist.Record(history.EventSkipped, cur, s.el.Position())
	}
	item, ok := s.q.Next()
	if !ok {
		return nil
	}
	return s.ctrl.Load(ctx, item)
}

// Previous steps back to the preceding queue item and plays it.
func (s *Session) Previous(ctx context.Context) error {
	if cur, ok := s.q.Current(); ok && s.hist != nil {
		s.hist.Record(history.EventSkipped, cur, s.el.Position())
	}
	item, ok := s.q.Previous()
	if !ok {
		return nil
	}
	return s.ctrl.Load(ctx, item)
}

// Pause halts output and checkpoints the position of episodes so they can
// be resumed later.
func (s *Session) Pause() {
	s.ctrl.Pause()
	s.checkpoint()
}

// Resume restarts output after a pause.
func (s *Session) Resume() error {
	return s.ctrl.Resume()
}

func (s *Session) checkpoint() {
	if s.hist == nil {
		return
	}
	if cur, ok := s.q.Current(); ok && cur.IsEpisode() {
		s.hist.UpdatePosition(cur, s.el.Position())
	}
}

// Run consumes element events until ctx is cancelled, advancing the queue
// when a source ends. Blocks.
func (s *Session) Run(ctx context.Context) {
	// Progress events arrive roughly four times a second; checkpoint
	// episode positions about every six seconds.
	const checkpointEvery = 25
	progress := 0
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.el.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case element.EventProgress:
				progress++
				if progress%checkpointEvery == 0 {
					s.checkpoint()
				}
			case element.EventEnded:
				s.onEnded(ctx)
			}
		}
	}
}

// onEnded decides what plays after a source runs out.
func (s *Session) onEnded(ctx context.Context) {
	cur, hasCur := s.q.Current()
	if hasCur && s.hist != nil {
		s.hist.Record(history.EventFinished, cur, s.el.Position())
	}

	if s.q.RepeatMode() == queue.RepeatOne {
		if err := s.el.SeekTo(0); err == nil {
			s.el.Play()
			return
		}
		// Unseekable progressive source: reload from the locator instead.
		if hasCur {
			if err := s.ctrl.Load(ctx, cur); err != nil {
				s.log.Error("repeat-one reload failed", zap.Error(err))
			}
			return
		}
	}

	item, ok := s.q.Next()
	if !ok {
		return
	}
	// Without repeat-all, Next clamps at the tail. The clamped item is the
	// one that just finished, so playback stops here.
	if hasCur && item.ID == cur.ID && s.q.RepeatMode() != queue.RepeatAll && !s.q.Shuffle() {
		s.log.Info("end of queue reached", zap.String("item", item.ID))
		return
	}
	if err := s.ctrl.Load(ctx, item); err != nil {
		s.log.Error("advance to next item failed",
			zap.String("item", item.ID), zap.Error(err))
	}
}
