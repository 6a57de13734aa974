package service

import (
	"context"
	"encoding/json"
	"fmt"

	"monet-probing/internal/model"
	"monet-probing/pkg/llm"
	"monet-probing/pkg/log"
)

// Evaluator 对包含最新用户回合的完整历史打分。
type Evaluator interface {
	Score(ctx context.Context, history []model.ChatMessage) (model.MetricsRecord, error)
}

type llmEvaluator struct {
	client llm.Client
}

// NewEvaluator 创建基于 function calling 的评估器。
func NewEvaluator(client llm.Client) Evaluator {
	return &llmEvaluator{client: client}
}

// metricsTool 描述评估结果的 JSON Schema，字段与 model.MetricsRecord 一一对应。
var metricsTool = llm.Tool{
	Name:        "record_response_metrics",
	Description: "Score the respondent's latest response in the conversation.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"relevance":       scoreField(0, "Relevance to the original question: 0-3 irrelevant, 4-5 tangential, 6-7 relevant, 8-10 highly relevant."),
			"quality":         scoreField(1, "Overall quality, factoring in relevance, depth, descriptiveness and value."),
			"detail":          scoreField(0, "Level of elaboration. Penalize repetition or rephrasing, reward unique insights."),
			"confusion":       scoreField(0, "Confusion or uncertainty detected: 0 confident, 10 completely confused."),
			"negativity":      scoreField(0, "Negative sentiment strength: 0 positive or neutral, 10 hostile or sarcastic."),
			"consistency":     scoreField(0, "Internal consistency: 0 self-contradictory, 10 fully coherent."),
			"confidence":      scoreField(0, "Confidence of the response: 0 hesitant, 10 absolutely certain."),
			"gibberish_score": scoreField(0, "Gibberish likelihood: 0 clearly meaningful, 10 almost certainly noise."),
			"keywords": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Unique keywords or phrases capturing the core insights.",
			},
			"reason": map[string]interface{}{
				"type":        "string",
				"description": "Reason for awarding the quality score.",
			},
		},
		"required": []string{
			"relevance", "quality", "detail", "confusion", "negativity",
			"consistency", "confidence", "gibberish_score", "keywords", "reason",
		},
	},
}

func scoreField(lo int, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"minimum":     lo,
		"maximum":     model.MaxScore,
		"description": description,
	}
}

func (e *llmEvaluator) Score(ctx context.Context, history []model.ChatMessage) (model.MetricsRecord, error) {
	raw, err := e.client.ChatStructured(ctx, toLLMMessages(history), metricsTool)
	if err != nil {
		return model.MetricsRecord{}, fmt.Errorf("%w: %v", ErrScoringFailed, err)
	}

	var m model.MetricsRecord
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.MetricsRecord{}, fmt.Errorf("%w: decode metrics: %v", ErrScoringFailed, err)
	}
	if err := m.Validate(); err != nil {
		log.Warnw("评估结果超出范围，已截断", "error", err)
	}
	return m.Clamped(), nil
}

func toLLMMessages(history []model.ChatMessage) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}
