package service

import (
	"context"
	"fmt"

	"monet-probing/internal/config"
	"monet-probing/internal/model"
	"monet-probing/internal/prompt"
	"monet-probing/pkg/llm"
)

// Stream 是一次追问生成的片段序列：有限、只能消费一次。
// 读取方可以在任意时刻调用 Close 停止生成，之后未读取的片段全部丢弃。
type Stream struct {
	fragments chan string
	done      chan struct{}
	cancel    context.CancelFunc
	err       error
}

// NewStream 在独立的 goroutine 中运行 produce，produce 通过 emit 逐个交出片段。
// ctx 被取消后 emit 立即返回错误。
func NewStream(ctx context.Context, produce func(ctx context.Context, emit func(string) error) error) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		fragments: make(chan string),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go func() {
		defer close(s.done)
		defer close(s.fragments)
		s.err = produce(ctx, func(text string) error {
			select {
			case s.fragments <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return s
}

// Fragments 返回片段通道，生成结束或被取消后关闭。
func (s *Stream) Fragments() <-chan string {
	return s.fragments
}

// Err 返回生成过程的错误，只有在 Fragments 关闭之后读取才有意义。
func (s *Stream) Err() error {
	return s.err
}

// Close 取消生成并等待生产者退出，可重复调用。
func (s *Stream) Close() {
	s.cancel()
	<-s.done
}

// FollowUpRequest 描述一次追问生成。
type FollowUpRequest struct {
	History []model.ChatMessage
	// Redirect 为 true 时使用引导模式，在历史末尾追加一条不落库的引导指令。
	Redirect bool
	// Question 是引导模式下需要重申的原始问题。
	Question string
}

// FollowUpGenerator 基于对话历史流式生成追问。
type FollowUpGenerator interface {
	Stream(ctx context.Context, req FollowUpRequest) *Stream
}

type llmFollowUpGenerator struct {
	client              llm.Client
	redirectionTemplate string
	gen                 *llm.GenerationParams
}

// NewFollowUpGenerator 创建基于流式聊天接口的追问生成器。
func NewFollowUpGenerator(client llm.Client, cfg config.LLMGenerationConfig, redirectionTemplate string) FollowUpGenerator {
	return &llmFollowUpGenerator{
		client:              client,
		redirectionTemplate: redirectionTemplate,
		gen:                 buildGenerationParams(cfg),
	}
}

func (g *llmFollowUpGenerator) Stream(ctx context.Context, req FollowUpRequest) *Stream {
	msgs := toLLMMessages(req.History)
	if req.Redirect {
		msgs = append(msgs, llm.Message{
			Role:    model.RoleSystem,
			Content: prompt.Redirection(g.redirectionTemplate, req.Question),
		})
	}
	return NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		err := g.client.StreamChatMessages(ctx, msgs, g.gen, llm.ChunkWriterFunc(emit))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		return nil
	})
}

func buildGenerationParams(cfg config.LLMGenerationConfig) *llm.GenerationParams {
	var gp llm.GenerationParams
	if cfg.Temperature != 0 {
		t := cfg.Temperature
		gp.Temperature = &t
	}
	if cfg.TopP != 0 {
		p := cfg.TopP
		gp.TopP = &p
	}
	if cfg.MaxTokens != 0 {
		m := cfg.MaxTokens
		gp.MaxTokens = &m
	}
	if gp.Temperature == nil && gp.TopP == nil && gp.MaxTokens == nil {
		return nil
	}
	return &gp
}
