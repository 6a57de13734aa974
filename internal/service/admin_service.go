// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"time"

	"monet-probing/internal/model"
	"monet-probing/internal/repository"
	"monet-probing/pkg/es"
	"monet-probing/pkg/log"
)

// transcriptURLExpiry 是对话归档下载链接的有效期。
const transcriptURLExpiry = time.Hour

// ErrFeatureDisabled 表示对应的存储未配置。
var ErrFeatureDisabled = errors.New("feature not configured")

// ResponseSearcher 在检索索引中查询探询记录。
type ResponseSearcher interface {
	Search(ctx context.Context, q es.SearchQuery) ([]model.ProbeResponse, error)
}

// TranscriptLocator 为已归档的会话生成下载地址。
type TranscriptLocator interface {
	TranscriptURL(key string, sessionNo int, expiry time.Duration) (string, error)
}

// ProbeInspection 是某个会话在缓存与历史中的当前快照。
type ProbeInspection struct {
	Key     string              `json:"key"`
	Cached  bool                `json:"cached"`
	State   *model.ProbeState   `json:"state"`
	History []model.ChatMessage `json:"history"`
}

// AdminService 接口定义了所有运维相关的业务操作。
type AdminService interface {
	InspectProbe(ctx context.Context, key string) (*ProbeInspection, error)
	ResetProbe(ctx context.Context, key string) error
	ActiveSessions(ctx context.Context) (int, error)
	SearchResponses(ctx context.Context, q es.SearchQuery) ([]model.ProbeResponse, error)
	TranscriptURL(key string, sessionNo int) (string, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	cache       repository.SessionCache
	history     repository.ConversationRepository
	searcher    ResponseSearcher
	transcripts TranscriptLocator
}

// NewAdminService 创建一个新的 AdminService 实例。searcher 和 transcripts 可以为 nil。
func NewAdminService(cache repository.SessionCache, history repository.ConversationRepository, searcher ResponseSearcher, transcripts TranscriptLocator) AdminService {
	return &adminService{
		cache:       cache,
		history:     history,
		searcher:    searcher,
		transcripts: transcripts,
	}
}

// InspectProbe 返回缓存状态和完整对话历史。
func (s *adminService) InspectProbe(ctx context.Context, key string) (*ProbeInspection, error) {
	messages, err := s.history.Messages(ctx, key)
	if err != nil {
		return nil, err
	}
	out := &ProbeInspection{Key: key, History: messages}
	if state, ok := s.cache.Get(ctx, key); ok {
		out.Cached = true
		out.State = &state
	}
	return out, nil
}

// ResetProbe 删除会话缓存和对话历史，下一回合将从全新会话开始。
func (s *adminService) ResetProbe(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		return err
	}
	if err := s.history.Clear(ctx, key); err != nil {
		return err
	}
	log.Infow("探询会话已重置", "key", key)
	return nil
}

// ActiveSessions 统计缓存中的会话数量。
func (s *adminService) ActiveSessions(ctx context.Context) (int, error) {
	return s.cache.Count(ctx)
}

func (s *adminService) SearchResponses(ctx context.Context, q es.SearchQuery) ([]model.ProbeResponse, error) {
	if s.searcher == nil {
		return nil, ErrFeatureDisabled
	}
	return s.searcher.Search(ctx, q)
}

func (s *adminService) TranscriptURL(key string, sessionNo int) (string, error) {
	if s.transcripts == nil {
		return "", ErrFeatureDisabled
	}
	return s.transcripts.TranscriptURL(key, sessionNo, transcriptURLExpiry)
}
