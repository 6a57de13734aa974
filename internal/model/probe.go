package model

import "fmt"

// SurveyResponse 是客户端每一回合通过 WebSocket 发送的负载。
type SurveyResponse struct {
	SurveyID     string `json:"su_id" validate:"required"`
	QuestionID   string `json:"qs_id" validate:"required"`
	RespondentID string `json:"mo_id" validate:"required"`
	Question     string `json:"question" validate:"required"`
	Response     string `json:"response" validate:"required"`
	Comment      string `json:"comment,omitempty"`
}

// SessionKey 是探询会话的复合标识：{survey_id}-{question_id}-{respondent_id}。
func SessionKey(surveyID, questionID, respondentID string) string {
	return fmt.Sprintf("%s-%s-%s", surveyID, questionID, respondentID)
}

// Key 返回该回合所属会话的标识。
func (r SurveyResponse) Key() string {
	return SessionKey(r.SurveyID, r.QuestionID, r.RespondentID)
}

// ProbeState 是会话缓存中按 key 保存的 JSON 状态。
type ProbeState struct {
	SurveyID     string `json:"su_id"`
	QuestionID   string `json:"qs_id"`
	RespondentID string `json:"mo_id"`
	SessionNo    int    `json:"session_no"`
	Counter      int    `json:"counter"`
	Ended        bool   `json:"ended"`
}

// ProbeSession 是一次回合中重建出的会话状态。
type ProbeSession struct {
	Key      string
	State    ProbeState
	Survey   SurveyContext
	Question QuestionContext
	History  []ChatMessage
}

// NewProbeState 返回一个全新的会话状态：计数器和会话号都为 0。
func NewProbeState(surveyID, questionID, respondentID string) ProbeState {
	return ProbeState{
		SurveyID:     surveyID,
		QuestionID:   questionID,
		RespondentID: respondentID,
	}
}

// Restart 开始同一身份下的新一轮探询：会话号加一，结束标志复位，计数器保持不变。
func (s ProbeState) Restart() ProbeState {
	s.SessionNo++
	s.Ended = false
	return s
}

// UserTurnText 按 "Response {n}. {text}" 的格式标注用户回合。
func UserTurnText(counter int, response string) string {
	return fmt.Sprintf("Response %d. %s", counter, response)
}
