// Package llm provides a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"monet-probing/internal/config"
	"net/http"
	"strings"
)

// ChunkWriter 接收流式生成的每一个文本分块。
type ChunkWriter interface {
	WriteChunk(text string) error
}

// ChunkWriterFunc 让普通函数满足 ChunkWriter 接口。
type ChunkWriterFunc func(text string) error

// WriteChunk calls f(text).
func (f ChunkWriterFunc) WriteChunk(text string) error { return f(text) }

// Client defines the interface for an LLM client.
type Client interface {
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error
	// ChatMessages 以非流式方式调用聊天接口，返回完整回复文本。
	ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// ChatStructured 强制模型调用 tool 指定的函数，返回函数参数的 JSON。
	ChatStructured(ctx context.Context, messages []Message, tool Tool) (json.RawMessage, error)
}

// ErrEmptyResponse 表示接口返回了空的 choices 或缺失的函数调用。
var ErrEmptyResponse = errors.New("llm returned an empty response")

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient creates a new LLM client for an OpenAI-compatible endpoint.
func NewClient(cfg config.LLMConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool 描述一个用于结构化输出的函数，Parameters 为 JSON Schema。
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type toolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string      `json:"model"`
	Messages    []Message   `json:"messages"`
	Stream      bool        `json:"stream"`
	Temperature *float64    `json:"temperature,omitempty"`
	TopP        *float64    `json:"top_p,omitempty"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
	Tools       []toolSpec  `json:"tools,omitempty"`
	ToolChoice  *toolChoice `json:"tool_choice,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAICompatibleClient) newRequest(messages []Message, gen *GenerationParams, stream bool) chatRequest {
	reqBody := chatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	// 传参优先生效，否则从配置注入（若非零值）
	if gen != nil {
		reqBody.Temperature = gen.Temperature
		reqBody.TopP = gen.TopP
		reqBody.MaxTokens = gen.MaxTokens
		return reqBody
	}
	if c.cfg.Generation.Temperature != 0 {
		t := c.cfg.Generation.Temperature
		reqBody.Temperature = &t
	}
	if c.cfg.Generation.TopP != 0 {
		p := c.cfg.Generation.TopP
		reqBody.TopP = &p
	}
	if c.cfg.Generation.MaxTokens != 0 {
		m := c.cfg.Generation.MaxTokens
		reqBody.MaxTokens = &m
	}
	return reqBody
}

func (c *openAICompatibleClient) do(ctx context.Context, reqBody chatRequest) (*http.Response, error) {
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if reqBody.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return resp, nil
}

// StreamChatMessages 读取 SSE 流，逐个分块写入 writer；writer 返回错误时立即停止。
func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer ChunkWriter) error {
	resp, err := c.do(ctx, c.newRequest(messages, gen, true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && !(err == io.EOF && line != "") {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read from stream: %w", err)
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			if data == "[DONE]" {
				return nil
			}

			var chunk streamChunk
			if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
				continue
			}
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if werr := writer.WriteChunk(chunk.Choices[0].Delta.Content); werr != nil {
					return fmt.Errorf("failed to write chunk: %w", werr)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
	}
}

// ChatMessages 以非流式方式调用聊天接口。
func (c *openAICompatibleClient) ChatMessages(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	resp, err := c.do(ctx, c.newRequest(messages, gen, false))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

// ChatStructured 通过 function calling 获取结构化输出。
func (c *openAICompatibleClient) ChatStructured(ctx context.Context, messages []Message, tool Tool) (json.RawMessage, error) {
	reqBody := c.newRequest(messages, nil, false)
	if c.cfg.MetricsModel != "" {
		reqBody.Model = c.cfg.MetricsModel
	}
	reqBody.Tools = []toolSpec{{
		Type: "function",
		Function: toolFunction{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		},
	}}
	choice := &toolChoice{Type: "function"}
	choice.Function.Name = tool.Name
	reqBody.ToolChoice = choice

	resp, err := c.do(ctx, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 || len(out.Choices[0].Message.ToolCalls) == 0 {
		return nil, ErrEmptyResponse
	}
	args := out.Choices[0].Message.ToolCalls[0].Function.Arguments
	if !json.Valid([]byte(args)) {
		return nil, fmt.Errorf("tool call arguments are not valid json: %q", args)
	}
	return json.RawMessage(args), nil
}
