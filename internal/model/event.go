package model

import "net/http"

// 事件消息类型。
const (
	MessageStreamingStarted = "streaming-started"
	MessageStreaming        = "streaming"
	MessageStreamingEnded   = "streaming-ended"
)

// ProbeEvent 是每次向客户端推送的 JSON 对象。
type ProbeEvent struct {
	Error    bool           `json:"error"`
	Message  string         `json:"message"`
	Code     int            `json:"code"`
	Response *EventResponse `json:"response,omitempty"`
}

// EventResponse 是事件中携带的回合内容。
type EventResponse struct {
	Question    string         `json:"question"`
	Ended       bool           `json:"ended"`
	MinProbing  int            `json:"min_probing"`
	MaxProbing  int            `json:"max_probing"`
	Metrics     *MetricsRecord `json:"metrics,omitempty"`
	IsGibberish *bool          `json:"is_gibberish,omitempty"`
}

// EventFrame 保存一个回合内各事件共享的字段。
type EventFrame struct {
	MinProbing int
	MaxProbing int
}

// Started 构造 streaming-started 事件，不携带内容。
func (f EventFrame) Started(ended bool) ProbeEvent {
	return f.event(MessageStreamingStarted, &EventResponse{Ended: ended})
}

// Fragment 构造携带一个文本片段的 streaming 事件。
func (f EventFrame) Fragment(text string, ended bool) ProbeEvent {
	return f.event(MessageStreaming, &EventResponse{Question: text, Ended: ended})
}

// Metrics 构造仅携带评估结果的 streaming 事件。
func (f EventFrame) Metrics(m MetricsRecord, ended, gibberish bool) ProbeEvent {
	return f.event(MessageStreaming, &EventResponse{Ended: ended, Metrics: &m, IsGibberish: &gibberish})
}

// Ended 构造 streaming-ended 事件，携带完整追问文本与最终评估结果。
func (f EventFrame) Ended(question string, m MetricsRecord, ended, gibberish bool) ProbeEvent {
	return f.event(MessageStreamingEnded, &EventResponse{Question: question, Ended: ended, Metrics: &m, IsGibberish: &gibberish})
}

func (f EventFrame) event(message string, resp *EventResponse) ProbeEvent {
	resp.MinProbing = f.MinProbing
	resp.MaxProbing = f.MaxProbing
	return ProbeEvent{Message: message, Code: http.StatusOK, Response: resp}
}

// ErrorEvent 构造错误事件：{error: true, message, code}。
func ErrorEvent(code int, message string) ProbeEvent {
	return ProbeEvent{Error: true, Message: message, Code: code}
}
