package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrhollen/SalesAgent/internal/db"
	"github.com/mrhollen/SalesAgent/internal/rag"
)

type retrieveCall struct {
	query     string
	userID    string
	maxChunks int
}

type fakeRetriever struct {
	mu      sync.Mutex
	calls   []retrieveCall
	respond func(ctx context.Context, query string) (string, error)
}

func (f *fakeRetriever) BuildContext(ctx context.Context, query, userID string, maxChunks int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, retrieveCall{query, userID, maxChunks})
	f.mu.Unlock()

	if f.respond == nil {
		return "", nil
	}
	return f.respond(ctx, query)
}

func (f *fakeRetriever) callsSnapshot() []retrieveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]retrieveCall(nil), f.calls...)
}

type fakeResponder struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeResponder) SendPrompt(_ context.Context, prompt string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	return "Sure, happy to help.", nil
}

const baselineText = "[Chunk]\nWe sell laptops. (score=0.800)"

// blockingRetriever serves the baseline, blocks on utterances named "slow"
// until cancelled, and answers everything else immediately.
func blockingRetriever(entered chan<- struct{}) *fakeRetriever {
	return &fakeRetriever{respond: func(ctx context.Context, query string) (string, error) {
		switch query {
		case DefaultBaselineQuery:
			return baselineText, nil
		case "slow":
			entered <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		default:
			return "[Chunk]\nanswer for " + query + " (score=0.900)", nil
		}
	}}
}

func newTestManager(r Retriever, opts ...Option) *Manager {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewManager(r, opts...)
}

func testProfile() Profile {
	return Profile{UserID: "u1", Name: "Ada", AgentName: "Sam", CompanyName: "Orthodox Gadgets"}
}

func TestStart_LoadsBaseline(t *testing.T) {
	r := &fakeRetriever{respond: func(context.Context, string) (string, error) { return baselineText, nil }}
	m := newTestManager(r)

	s, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, baselineText, s.Baseline())
	assert.Equal(t, []retrieveCall{{DefaultBaselineQuery, "u1", DefaultBaselineMaxChunks}}, r.callsSnapshot())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	assert.Contains(t, s.SystemInstructions(), "You are Sam")
	assert.Contains(t, s.SystemInstructions(), "Orthodox Gadgets")
	assert.Contains(t, s.SystemInstructions(), baselineText)
	assert.Contains(t, s.OpeningInstructions(), "Hi Ada!")
}

func TestStart_EmptyContextFails(t *testing.T) {
	m := newTestManager(&fakeRetriever{})

	s, err := m.Start(context.Background(), testProfile())
	assert.ErrorIs(t, err, ErrEmptyContext)
	assert.Nil(t, s)
	assert.Equal(t, 0, m.Len())
}

func TestStart_EmptyContextWithRealService(t *testing.T) {
	store := db.NewMemoryDB(4)
	svc := rag.NewService(store, constantEmbedder{}, rag.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m := newTestManager(svc)

	_, err := m.Start(context.Background(), testProfile())
	assert.ErrorIs(t, err, ErrEmptyContext)

	_, err = svc.Index(context.Background(), "u1", "overview.txt", "We refurbish laptops for students.", 0)
	require.NoError(t, err)

	s, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()
	assert.Contains(t, s.Baseline(), "We refurbish laptops for students.")
}

func TestStart_RetrievalErrorPropagates(t *testing.T) {
	r := &fakeRetriever{respond: func(context.Context, string) (string, error) {
		return "", rag.ErrEmbedding
	}}
	m := newTestManager(r)

	_, err := m.Start(context.Background(), testProfile())
	assert.ErrorIs(t, err, rag.ErrEmbedding)
	assert.NotErrorIs(t, err, ErrEmptyContext)
}

func TestStart_RequiresUser(t *testing.T) {
	m := newTestManager(&fakeRetriever{})

	_, err := m.Start(context.Background(), Profile{})
	assert.ErrorIs(t, err, rag.ErrInvalidInput)
}

func TestStart_CustomConfig(t *testing.T) {
	r := &fakeRetriever{respond: func(context.Context, string) (string, error) { return baselineText, nil }}
	m := newTestManager(r, WithConfig(Config{BaselineQuery: "What do we sell?", BaselineMaxChunks: 3, TurnMaxChunks: 2}))

	s, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Turn(context.Background(), "price?")
	require.NoError(t, err)

	assert.Equal(t, []retrieveCall{
		{"What do we sell?", "u1", 3},
		{"price?", "u1", 2},
	}, r.callsSnapshot())
}

func TestTurn_Grounded(t *testing.T) {
	r := blockingRetriever(make(chan struct{}))
	m := newTestManager(r)
	s, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Turn(context.Background(), "battery life")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.Seq)
	assert.True(t, res.Grounded)
	assert.Equal(t, "battery life", res.Utterance)
	assert.Contains(t, res.Instructions, `The prospect just said: "battery life"`)
	assert.Contains(t, res.Instructions, "MOST RELEVANT INFORMATION FOR THIS RESPONSE:\n[Chunk]\nanswer for battery life")
	assert.Contains(t, res.Instructions, baselineText)
	assert.Empty(t, res.Reply)

	calls := r.callsSnapshot()
	assert.Equal(t, DefaultTurnMaxChunks, calls[len(calls)-1].maxChunks)
}

func TestTurn_FallsBackToBaseline(t *testing.T) {
	for name, turnErr := range map[string]error{
		"empty": nil,
		"error": rag.ErrStorage,
	} {
		t.Run(name, func(t *testing.T) {
			r := &fakeRetriever{respond: func(_ context.Context, query string) (string, error) {
				if query == DefaultBaselineQuery {
					return baselineText, nil
				}
				return "", turnErr
			}}
			s, err := newTestManager(r).Start(context.Background(), testProfile())
			require.NoError(t, err)
			defer s.Close()

			res, err := s.Turn(context.Background(), "do you ship abroad?")
			require.NoError(t, err)
			assert.False(t, res.Grounded)
			assert.Contains(t, res.Instructions, "BUSINESS CONTEXT:\n"+baselineText)
			assert.NotContains(t, res.Instructions, "MOST RELEVANT INFORMATION")
		})
	}
}

func TestTurn_GeneratesReply(t *testing.T) {
	responder := &fakeResponder{}
	s, err := newTestManager(blockingRetriever(make(chan struct{})), WithResponder(responder)).
		Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	res, err := s.Turn(context.Background(), "pricing")
	require.NoError(t, err)
	assert.Equal(t, "Sure, happy to help.", res.Reply)

	require.Len(t, responder.prompts, 1)
	assert.True(t, strings.HasPrefix(responder.prompts[0], s.SystemInstructions()))
	assert.Contains(t, responder.prompts[0], res.Instructions)
}

func TestTurn_ReplyFailure(t *testing.T) {
	responder := &fakeResponder{err: errors.New("model overloaded")}
	s, err := newTestManager(blockingRetriever(make(chan struct{})), WithResponder(responder)).
		Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Turn(context.Background(), "pricing")
	assert.ErrorContains(t, err, "model overloaded")
}

func TestTurn_NewerTurnSupersedesOlder(t *testing.T) {
	entered := make(chan struct{}, 1)
	s, err := newTestManager(blockingRetriever(entered)).Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	slowErr := make(chan error, 1)
	go func() {
		_, err := s.Turn(context.Background(), "slow")
		slowErr <- err
	}()
	<-entered

	res, err := s.Turn(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Seq)
	assert.True(t, res.Grounded)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded turn did not return")
	}
}

func TestTurn_CallerCancellation(t *testing.T) {
	entered := make(chan struct{}, 1)
	s, err := newTestManager(blockingRetriever(entered)).Start(context.Background(), testProfile())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := s.Turn(ctx, "slow")
		errc <- err
	}()
	<-entered
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestClose_CancelsInFlightTurn(t *testing.T) {
	entered := make(chan struct{}, 1)
	m := newTestManager(blockingRetriever(entered))
	s, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.Turn(context.Background(), "slow")
		errc <- err
	}()
	<-entered

	require.NoError(t, m.End(s.ID()))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight turn was not cancelled")
	}

	_, err = s.Turn(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrSessionClosed)

	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.End(s.ID()), ErrNotFound)
}

func TestCommit_DeliversInOrder(t *testing.T) {
	entered := make(chan struct{}, 1)
	s, err := newTestManager(blockingRetriever(entered)).Start(context.Background(), testProfile())
	require.NoError(t, err)

	type outcome struct {
		res TurnResult
		err error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	s.Commit("slow", func(res TurnResult, err error) { first <- outcome{res, err} })
	<-entered
	s.Commit("is it refurbished?", func(res TurnResult, err error) { second <- outcome{res, err} })

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, uint64(2), got.res.Seq)
	assert.Equal(t, "is it refurbished?", got.res.Utterance)

	assert.ErrorIs(t, (<-first).err, ErrSuperseded)

	s.Close()

	var closedErr error
	s.Commit("hello?", func(_ TurnResult, err error) { closedErr = err })
	assert.ErrorIs(t, closedErr, ErrSessionClosed)
}

func TestShutdown_ClosesAllSessions(t *testing.T) {
	m := newTestManager(blockingRetriever(make(chan struct{})))

	a, err := m.Start(context.Background(), testProfile())
	require.NoError(t, err)
	b, err := m.Start(context.Background(), Profile{UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	m.Shutdown()
	assert.Equal(t, 0, m.Len())

	_, err = a.Turn(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = b.Turn(context.Background(), "x")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestProfile_DefaultProspectName(t *testing.T) {
	assert.Contains(t, openingInstructions(Profile{AgentName: "Sam", CompanyName: "Acme"}), "Hi there!")
}

// constantEmbedder maps every text to the same vector.
type constantEmbedder struct{}

func (constantEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (e constantEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vecs[i], _ = e.Embed(ctx, texts[i])
	}
	return vecs, nil
}

func (constantEmbedder) Dimensions() int { return 4 }

func (constantEmbedder) ModelName() string { return "constant/4" }
