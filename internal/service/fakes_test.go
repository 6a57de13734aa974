package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"monet-probing/internal/model"
	"monet-probing/internal/repository"
)

type fakeSurveys struct {
	snap model.SurveySnapshot
	err  error
}

func (f *fakeSurveys) FindContext(_ context.Context, surveyID, questionID string) (model.SurveySnapshot, error) {
	if f.err != nil {
		return model.SurveySnapshot{}, f.err
	}
	snap := f.snap
	snap.Survey.ID = surveyID
	snap.Question.ID = questionID
	snap.Question.SurveyID = surveyID
	return snap, nil
}

type memCache struct {
	mu     sync.Mutex
	states map[string]model.ProbeState
	ttls   map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{states: map[string]model.ProbeState{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(_ context.Context, key string) (model.ProbeState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.states[key]
	return s, ok
}

func (c *memCache) Set(_ context.Context, key string, state model.ProbeState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = state
	c.ttls[key] = ttl
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, key)
	return nil
}

func (c *memCache) Count(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states), nil
}

type memHistory struct {
	mu   sync.Mutex
	msgs map[string][]model.ChatMessage
}

func newMemHistory() *memHistory {
	return &memHistory{msgs: map[string][]model.ChatMessage{}}
}

func (h *memHistory) Messages(_ context.Context, key string) ([]model.ChatMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.ChatMessage(nil), h.msgs[key]...), nil
}

func (h *memHistory) Append(_ context.Context, key string, messages ...model.ChatMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs[key] = append(h.msgs[key], messages...)
	return nil
}

func (h *memHistory) Clear(_ context.Context, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.msgs, key)
	return nil
}

type evalResult struct {
	m   model.MetricsRecord
	err error
}

// scriptedEvaluator 按顺序返回预先设定的评估结果。
type scriptedEvaluator struct {
	mu      sync.Mutex
	results []evalResult
	calls   int
	before  func(ctx context.Context)
	seen    [][]model.ChatMessage
}

func (e *scriptedEvaluator) Score(ctx context.Context, history []model.ChatMessage) (model.MetricsRecord, error) {
	if e.before != nil {
		e.before(ctx)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, history)
	if e.calls >= len(e.results) {
		return model.MetricsRecord{}, errors.New("no scripted result")
	}
	r := e.results[e.calls]
	e.calls++
	return r.m, r.err
}

// sentinelGenerator 的自然追问和引导追问使用可区分的片段。
type sentinelGenerator struct {
	mu          sync.Mutex
	natural     []string
	redirect    []string
	naturalErr  error
	redirectErr error
	requests    []FollowUpRequest
	naturalDone chan struct{}
	doneOnce    sync.Once
}

func newSentinelGenerator() *sentinelGenerator {
	return &sentinelGenerator{
		natural:     []string{"NATURAL-1 ", "NATURAL-2 ", "NATURAL-3?"},
		redirect:    []string{"REDIRECT-1 ", "REDIRECT-2?"},
		naturalDone: make(chan struct{}),
	}
}

func (g *sentinelGenerator) Stream(ctx context.Context, req FollowUpRequest) *Stream {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	frags, genErr := g.natural, g.naturalErr
	if req.Redirect {
		frags, genErr = g.redirect, g.redirectErr
	}
	g.mu.Unlock()

	return NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		for _, f := range frags {
			if err := emit(f); err != nil {
				return err
			}
		}
		if !req.Redirect {
			g.doneOnce.Do(func() { close(g.naturalDone) })
		}
		return genErr
	})
}

func (g *sentinelGenerator) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type recordingEmitter struct {
	events []model.ProbeEvent
	failAt int
}

func (e *recordingEmitter) Emit(ev model.ProbeEvent) error {
	e.events = append(e.events, ev)
	if e.failAt > 0 && len(e.events) >= e.failAt {
		return errors.New("connection closed")
	}
	return nil
}

func (e *recordingEmitter) messages() []string {
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Message)
	}
	return out
}

// fragments 返回 streaming 事件中的文本片段，不含只携带评估结果的事件。
func (e *recordingEmitter) fragments() []string {
	var out []string
	for _, ev := range e.events {
		if ev.Message == model.MessageStreaming && ev.Response != nil && ev.Response.Metrics == nil {
			out = append(out, ev.Response.Question)
		}
	}
	return out
}

func (e *recordingEmitter) last() model.ProbeEvent {
	return e.events[len(e.events)-1]
}

type recordingPersister struct {
	mu      sync.Mutex
	records []model.ProbeResponse
	err     error
}

func (p *recordingPersister) Persist(_ context.Context, resp *model.ProbeResponse) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, *resp)
	return p.err
}

type staticIntents struct {
	intent string
	calls  int
}

func (s *staticIntents) Extract(context.Context, model.QuestionContext) string {
	s.calls++
	return s.intent
}

var (
	_ repository.SessionCache           = (*memCache)(nil)
	_ repository.ConversationRepository = (*memHistory)(nil)
)
