package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrEmptyContext means the baseline preload found nothing for the user.
	// The session is not started.
	ErrEmptyContext = errors.New("no business context found")

	// ErrSuperseded is returned by a turn whose result was discarded because
	// a newer turn was committed on the same session.
	ErrSuperseded = errors.New("turn superseded by a newer turn")

	ErrSessionClosed = errors.New("session closed")

	ErrNotFound = errors.New("session not found")
)

// TurnResult is the outcome of one committed utterance.
type TurnResult struct {
	Seq          uint64 `json:"seq"`
	Utterance    string `json:"utterance"`
	Instructions string `json:"instructions"`
	// Grounded is false when the turn fell back to the baseline context.
	Grounded bool   `json:"grounded"`
	Reply    string `json:"reply,omitempty"`
}

// Session holds one conversation's baseline context and supervises its
// turns. Only the most recently committed turn may produce a result.
type Session struct {
	id        string
	profile   Profile
	baseline  string
	startedAt time.Time
	manager   *Manager
	logger    *slog.Logger

	ctx  context.Context
	stop context.CancelFunc

	mu         sync.Mutex
	seq        uint64
	cancelTurn context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

func (s *Session) ID() string { return s.id }

func (s *Session) Profile() Profile { return s.profile }

// Baseline returns the context preloaded when the session started.
func (s *Session) Baseline() string { return s.baseline }

func (s *Session) StartedAt() time.Time { return s.startedAt }

// SystemInstructions returns the standing instructions for the agent,
// including the baseline context.
func (s *Session) SystemInstructions() string {
	return systemInstructions(s.profile, s.baseline)
}

// OpeningInstructions returns instructions for the agent's first line.
func (s *Session) OpeningInstructions() string {
	return openingInstructions(s.profile)
}

type turn struct {
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
}

// begin registers a new turn, superseding whichever turn is in flight.
func (s *Session) begin(ctx context.Context) (*turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.cancelTurn != nil {
		s.cancelTurn()
	}

	s.seq++
	turnCtx, cancel := context.WithCancel(ctx)
	t := &turn{
		seq:    s.seq,
		ctx:    turnCtx,
		cancel: cancel,
		stop:   context.AfterFunc(s.ctx, cancel),
	}
	s.cancelTurn = cancel
	s.wg.Add(1)

	return t, nil
}

func (s *Session) finish(t *turn, utterance string) (TurnResult, error) {
	defer t.stop()
	defer t.cancel()

	result, err := s.run(t.ctx, t.seq, utterance)

	s.mu.Lock()
	latest := s.seq == t.seq
	closed := s.closed
	s.mu.Unlock()

	switch {
	case closed:
		return TurnResult{}, ErrSessionClosed
	case !latest:
		s.logger.Debug("discarding superseded turn", "session_id", s.id, "seq", t.seq)
		return TurnResult{}, ErrSuperseded
	case err != nil:
		return TurnResult{}, err
	}

	return result, nil
}

func (s *Session) run(ctx context.Context, seq uint64, utterance string) (TurnResult, error) {
	result := TurnResult{Seq: seq, Utterance: utterance, Grounded: true}

	turnContext, err := s.manager.retriever.BuildContext(ctx, utterance, s.profile.UserID, s.manager.cfg.TurnMaxChunks)
	if err != nil {
		if ctx.Err() != nil {
			return TurnResult{}, ctx.Err()
		}
		s.logger.Warn("turn retrieval failed, using baseline context",
			"session_id", s.id, "seq", seq, "error", err)
		turnContext = ""
	}
	if turnContext == "" {
		result.Grounded = false
	}

	result.Instructions = turnInstructions(utterance, turnContext, s.baseline)

	if s.manager.responder != nil {
		prompt := s.SystemInstructions() + "\n\n" + result.Instructions
		reply, err := s.manager.responder.SendPrompt(ctx, prompt, s.manager.cfg.ReplyModel)
		if err != nil {
			if ctx.Err() != nil {
				return TurnResult{}, ctx.Err()
			}
			return TurnResult{}, fmt.Errorf("generating reply: %w", err)
		}
		result.Reply = reply
	}

	return result, nil
}

// Turn retrieves context for utterance and builds the agent's instructions
// for it. Committing a newer turn cancels this one, which then returns
// ErrSuperseded. Retrieval failures and empty results fall back to the
// baseline context.
func (s *Session) Turn(ctx context.Context, utterance string) (TurnResult, error) {
	t, err := s.begin(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	defer s.wg.Done()

	return s.finish(t, utterance)
}

// Commit starts a turn in the background and reports its outcome to done.
// Turns are sequenced in the order Commit is called. done must not call
// Close on the same session.
func (s *Session) Commit(utterance string, done func(TurnResult, error)) {
	t, err := s.begin(s.ctx)
	if err != nil {
		if done != nil {
			done(TurnResult{}, err)
		}
		return
	}

	go func() {
		defer s.wg.Done()

		result, err := s.finish(t, utterance)
		if done != nil {
			done(result, err)
		}
	}()
}

// Close cancels in-flight turns and waits for them to return. Later turns
// fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()

	s.logger.Info("session closed", "session_id", s.id, "turns", s.turns())
}

func (s *Session) turns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
