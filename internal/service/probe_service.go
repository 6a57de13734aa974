// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"monet-probing/internal/model"
	"monet-probing/internal/prompt"
	"monet-probing/internal/repository"
	"monet-probing/pkg/log"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var validate = validator.New()

// Emitter 接收一个回合内向客户端推送的事件。同一回合内只会被一个 goroutine 调用。
type Emitter interface {
	Emit(event model.ProbeEvent) error
}

// EmitterFunc 让普通函数满足 Emitter 接口。
type EmitterFunc func(event model.ProbeEvent) error

// Emit 调用 f(event)。
func (f EmitterFunc) Emit(event model.ProbeEvent) error { return f(event) }

// ResponsePersister 接收回合结束后的最终记录。
type ResponsePersister interface {
	Persist(ctx context.Context, resp *model.ProbeResponse) error
}

// ProbeOptions 是探询编排的可调参数。
type ProbeOptions struct {
	SessionTTL time.Duration
	Thresholds model.Thresholds
	BasePrompt string
	Rules      string
	// Persist 为 false 时不调用 ResponsePersister。
	Persist bool
}

// ProbeService 处理单个回合：重建会话、并发评估与生成、相关性闸门、写回缓存。
// 同一会话 key 的回合必须由调用方串行提交。
type ProbeService interface {
	HandleTurn(ctx context.Context, req model.SurveyResponse, emit Emitter) error
}

type probeService struct {
	surveys   repository.SurveyRepository
	cache     repository.SessionCache
	history   repository.ConversationRepository
	evaluator Evaluator
	generator FollowUpGenerator
	intents   IntentService
	persister ResponsePersister
	opts      ProbeOptions
}

// NewProbeService 创建一个新的 ProbeService 实例。persister 可以为 nil。
func NewProbeService(
	surveys repository.SurveyRepository,
	cache repository.SessionCache,
	history repository.ConversationRepository,
	evaluator Evaluator,
	generator FollowUpGenerator,
	intents IntentService,
	persister ResponsePersister,
	opts ProbeOptions,
) ProbeService {
	if opts.BasePrompt == "" {
		opts.BasePrompt = prompt.DefaultBase
	}
	if opts.Rules == "" {
		opts.Rules = prompt.DefaultRules
	}
	return &probeService{
		surveys:   surveys,
		cache:     cache,
		history:   history,
		evaluator: evaluator,
		generator: generator,
		intents:   intents,
		persister: persister,
		opts:      opts,
	}
}

// turnOutcome 是相关性闸门之后确定下来的结果。
type turnOutcome struct {
	followUp   string
	metrics    model.MetricsRecord
	gibberish  bool
	redirected bool
}

func (s *probeService) HandleTurn(ctx context.Context, req model.SurveyResponse, emit Emitter) error {
	turnID := uuid.NewString()
	if err := validate.Struct(req); err != nil {
		return s.fail(ctx, emit, "", turnID, fmt.Errorf("%w: %v", ErrInvalidTurn, err))
	}
	key := req.Key()

	snap, err := s.surveys.FindContext(ctx, req.SurveyID, req.QuestionID)
	if err != nil {
		return s.fail(ctx, emit, key, turnID, err)
	}
	snap.ApplyDefaults(s.opts.Thresholds)

	sess, err := s.loadSession(ctx, key, req, snap, turnID)
	if err != nil {
		return s.fail(ctx, emit, key, turnID, err)
	}

	// 追加用户回合；历史为空时先写入系统提示词
	var pending []model.ChatMessage
	if len(sess.History) == 0 {
		pending = append(pending, model.ChatMessage{Role: model.RoleSystem, Content: s.systemPrompt(ctx, snap), Timestamp: time.Now()})
	}
	sess.State.Counter++
	pending = append(pending, model.ChatMessage{
		Role:      model.RoleUser,
		Content:   model.UserTurnText(sess.State.Counter, req.Response),
		Timestamp: time.Now(),
	})
	if err := s.history.Append(ctx, key, pending...); err != nil {
		return s.fail(ctx, emit, key, turnID, err)
	}
	sess.History = append(sess.History, pending...)

	log.Infow("探询回合开始", "turnId", turnID, "key", key, "sessionNo", sess.State.SessionNo, "counter", sess.State.Counter)

	frame := model.EventFrame{MinProbing: sess.Question.MinProbes, MaxProbing: sess.Question.MaxProbes}
	if err := emit.Emit(frame.Started(sess.State.Ended)); err != nil {
		return s.fail(ctx, emit, key, turnID, fmt.Errorf("%w: %v", ErrEmitFailed, err))
	}

	out, err := s.race(ctx, sess, emit, frame)
	if err != nil {
		return s.fail(ctx, emit, key, turnID, err)
	}

	if out.followUp != "" {
		assistant := model.ChatMessage{Role: model.RoleAssistant, Content: out.followUp, Timestamp: time.Now()}
		if err := s.history.Append(ctx, key, assistant); err != nil {
			return s.fail(ctx, emit, key, turnID, err)
		}
		sess.History = append(sess.History, assistant)
	}

	emitErr := emit.Emit(frame.Ended(out.followUp, out.metrics, sess.State.Ended, out.gibberish))

	// 客户端断开时仍然要把已经完成的回合写回缓存
	bg := context.WithoutCancel(ctx)
	if err := s.cache.Set(bg, key, sess.State, s.opts.SessionTTL); err != nil {
		log.Errorw("写回会话缓存失败", "turnId", turnID, "key", key, "error", err)
	}

	log.Infow("探询回合结束",
		"turnId", turnID, "key", key,
		"sessionNo", sess.State.SessionNo, "counter", sess.State.Counter,
		"ended", sess.State.Ended, "redirected", out.redirected,
		"quality", out.metrics.Quality, "relevance", out.metrics.Relevance)

	if s.opts.Persist && s.persister != nil {
		record := model.NewProbeResponse(req, out.followUp, out.metrics, sess.State, time.Now())
		if err := s.persister.Persist(bg, &record); err != nil {
			log.Errorw("保存探询记录失败", "turnId", turnID, "key", key, "error", err)
		}
	}

	if emitErr != nil {
		return fmt.Errorf("%w: %v", ErrEmitFailed, emitErr)
	}
	return nil
}

// loadSession 从缓存和历史重建会话。缓存缺失、损坏或与历史不一致时从零开始。
func (s *probeService) loadSession(ctx context.Context, key string, req model.SurveyResponse, snap model.SurveySnapshot, turnID string) (*model.ProbeSession, error) {
	history, err := s.history.Messages(ctx, key)
	if err != nil {
		return nil, err
	}

	state, ok := s.cache.Get(ctx, key)
	stale := false
	switch {
	case !ok:
		state = model.NewProbeState(req.SurveyID, req.QuestionID, req.RespondentID)
		stale = len(history) > 0
	case model.CountRole(history, model.RoleUser) != state.Counter:
		stale = true
	}
	if stale {
		log.Warnw("会话状态与对话历史不一致，重新开始",
			"turnId", turnID, "key", key, "error", ErrStaleSession,
			"cachedCounter", state.Counter, "userTurns", model.CountRole(history, model.RoleUser))
		if err := s.history.Clear(ctx, key); err != nil {
			return nil, err
		}
		history = nil
		state = model.NewProbeState(req.SurveyID, req.QuestionID, req.RespondentID)
	}

	if req.Question == snap.Question.Question {
		state = state.Restart()
	}

	return &model.ProbeSession{
		Key:      key,
		State:    state,
		Survey:   snap.Survey,
		Question: snap.Question,
		History:  history,
	}, nil
}

func (s *probeService) systemPrompt(ctx context.Context, snap model.SurveySnapshot) string {
	var intent string
	if snap.Question.AddContext && s.intents != nil {
		intent = s.intents.Extract(ctx, snap.Question)
	}
	return prompt.Build(prompt.Input{
		Base:              s.opts.BasePrompt,
		Rules:             s.opts.Rules,
		SurveyDescription: snap.Survey.Description,
		SurveyContext:     snap.Survey.AddContext,
		Question:          snap.Question.Question,
		QuestionIntent:    intent,
		QuestionContext:   snap.Question.AddContext,
		Language:          snap.Survey.Language,
	})
}

// race 并发运行评估与自然追问生成。相关性未知前自然追问的片段只缓存不下发；
// 相关性低于阈值时丢弃自然追问并改用引导追问。
func (s *probeService) race(ctx context.Context, sess *model.ProbeSession, emit Emitter, frame model.EventFrame) (turnOutcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	defer func() {
		cancel()
		_ = g.Wait()
	}()

	relevanceKnown := make(chan struct{})
	var metrics model.MetricsRecord
	g.Go(func() error {
		m, err := s.evaluator.Score(gctx, sess.History)
		if err != nil {
			if !errors.Is(err, ErrScoringFailed) {
				err = fmt.Errorf("%w: %v", ErrScoringFailed, err)
			}
			return err
		}
		metrics = m
		close(relevanceKnown)
		return nil
	})

	natural := s.generator.Stream(gctx, FollowUpRequest{History: sess.History})
	defer natural.Close()

	var buffered []string
	fragments := natural.Fragments()
gate:
	for {
		select {
		case <-relevanceKnown:
			break gate
		case <-gctx.Done():
			if err := g.Wait(); err != nil {
				return turnOutcome{}, err
			}
			return turnOutcome{}, ctx.Err()
		case f, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			buffered = append(buffered, f)
		}
	}

	q := sess.Question
	limits := q.Limits()
	if metrics.Quality >= limits.Quality {
		sess.State.Ended = true
	}
	out := turnOutcome{
		metrics:   metrics,
		gibberish: metrics.GibberishScore > limits.Gibberish,
	}
	if err := emit.Emit(frame.Metrics(metrics, sess.State.Ended, out.gibberish)); err != nil {
		return turnOutcome{}, fmt.Errorf("%w: %v", ErrEmitFailed, err)
	}

	var (
		stream *Stream
		text   strings.Builder
	)
	if metrics.Relevance < limits.Relevance {
		natural.Close()
		buffered = nil
		out.redirected = true
		stream = s.generator.Stream(ctx, FollowUpRequest{History: sess.History, Redirect: true, Question: q.Question})
		defer stream.Close()
	} else {
		for _, f := range buffered {
			text.WriteString(f)
			if err := emit.Emit(frame.Fragment(f, sess.State.Ended)); err != nil {
				return turnOutcome{}, fmt.Errorf("%w: %v", ErrEmitFailed, err)
			}
		}
		stream = natural
	}

	for f := range stream.Fragments() {
		text.WriteString(f)
		if err := emit.Emit(frame.Fragment(f, sess.State.Ended)); err != nil {
			return turnOutcome{}, fmt.Errorf("%w: %v", ErrEmitFailed, err)
		}
	}
	if err := stream.Err(); err != nil {
		if !errors.Is(err, ErrGenerationFailed) {
			err = fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		return turnOutcome{}, err
	}

	out.followUp = text.String()
	return out, nil
}

// fail 结束一个失败的回合：服务端错误时删除会话缓存，并发送唯一的错误事件。
func (s *probeService) fail(ctx context.Context, emit Emitter, key, turnID string, err error) error {
	te := turnError(err)
	if te.Code >= 500 && key != "" {
		if delErr := s.cache.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Errorw("删除会话缓存失败", "turnId", turnID, "key", key, "error", delErr)
		}
	}
	log.Errorw("探询回合失败", "turnId", turnID, "key", key, "code", te.Code, "error", te.Err)

	if !errors.Is(err, ErrEmitFailed) {
		if emitErr := emit.Emit(model.ErrorEvent(te.Code, te.Err.Error())); emitErr != nil {
			log.Warnw("发送错误事件失败", "turnId", turnID, "key", key, "error", emitErr)
		}
	}
	return te
}
