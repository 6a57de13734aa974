package service

import (
	"context"
	"strings"

	"monet-probing/internal/model"
	"monet-probing/internal/prompt"
	"monet-probing/internal/repository"
	"monet-probing/pkg/llm"
	"monet-probing/pkg/log"
)

// IntentService 提炼问题想要了解的意图，用于系统提示词的意图块。
type IntentService interface {
	Extract(ctx context.Context, question model.QuestionContext) string
}

type intentService struct {
	client llm.Client
	repo   repository.IntentRepository
}

// NewIntentService 创建意图提炼服务。
func NewIntentService(client llm.Client, repo repository.IntentRepository) IntentService {
	return &intentService{client: client, repo: repo}
}

// Extract 返回问题的意图。描述为空时没有意图；模型调用失败时退回原始描述。
// 缓存读写失败只记录日志。
func (s *intentService) Extract(ctx context.Context, question model.QuestionContext) string {
	description := strings.TrimSpace(question.Description)
	if description == "" {
		return ""
	}

	cached, ok, err := s.repo.Get(ctx, question.SurveyID, question.ID)
	if err != nil {
		log.Warnw("读取问题意图缓存失败", "surveyId", question.SurveyID, "questionId", question.ID, "error", err)
	}
	if ok && cached != "" {
		return cached
	}

	intent := description
	out, err := s.client.ChatMessages(ctx, []llm.Message{
		{Role: model.RoleUser, Content: prompt.IntentPrompt(question.Question, description)},
	}, nil)
	if err != nil {
		log.Errorw("提炼问题意图失败，使用原始描述", "surveyId", question.SurveyID, "questionId", question.ID, "error", err)
	} else if trimmed := strings.TrimSpace(out); trimmed != "" {
		intent = trimmed
	}

	if err := s.repo.Store(ctx, question.SurveyID, question.ID, intent); err != nil {
		log.Warnw("写入问题意图缓存失败", "surveyId", question.SurveyID, "questionId", question.ID, "error", err)
	}
	return intent
}
