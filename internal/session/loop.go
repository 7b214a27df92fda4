package session

import (
	"context"

	"go.uber.org/zap"
)

// Origin names the trigger that produced a candidate load.
type Origin string

const (
	OriginNavigation Origin = "navigation"
	OriginFrame      Origin = "frame"
	OriginUser       Origin = "user"
)

// Candidate is one trigger's resolved game, queued for reconciliation.
type Candidate struct {
	PGN         string
	WhiteBottom *bool
	Eval        Evaluation
	Origin      Origin

	// ID and Platform, when present, let the accepted game be persisted
	// as a snapshot.
	ID       string
	Platform string
}

// Loop serializes every reconciliation through one consumer, so concurrent
// triggers resolve deterministically in arrival order, last arrival wins.
type Loop struct {
	session     *Session
	candidates  chan Candidate
	afterAccept func(Candidate)
	log         *zap.Logger
}

func NewLoop(s *Session, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		session:    s,
		candidates: make(chan Candidate, 16),
		log:        log,
	}
}

// OnAccept registers a hook invoked after each accepted reconciliation.
// Must be set before Run.
func (l *Loop) OnAccept(fn func(Candidate)) { l.afterAccept = fn }

// Submit queues a candidate. It blocks only when the queue is full.
func (l *Loop) Submit(c Candidate) {
	l.candidates <- c
}

// Run consumes candidates until the context ends. Rejected candidates are
// logged and leave state untouched.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-l.candidates:
			if err := l.session.Reconcile(c.PGN, c.WhiteBottom, c.Eval); err != nil {
				l.log.Warn("candidate rejected",
					zap.String("origin", string(c.Origin)),
					zap.Error(err),
				)
				continue
			}
			l.log.Info("game reconciled",
				zap.String("origin", string(c.Origin)),
				zap.Int("moves", l.session.View().MoveCount),
			)
			if l.afterAccept != nil {
				l.afterAccept(c)
			}
		}
	}
}
