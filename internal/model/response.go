package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// ProbeResponse 是一个回合结束后交给存储的最终记录。
// MySQL 中对应 probe_responses 表，MongoDB 中对应 QnAs 集合。
type ProbeResponse struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"-" bson:"-"`
	SurveyID       string      `gorm:"type:varchar(64);index:idx_probe_key;not null" json:"su_id" bson:"su_id"`
	QuestionID     string      `gorm:"type:varchar(64);index:idx_probe_key;not null" json:"qs_id" bson:"qs_id"`
	RespondentID   string      `gorm:"type:varchar(64);index:idx_probe_key;not null" json:"mo_id" bson:"mo_id"`
	Question       string      `gorm:"type:text;not null" json:"question" bson:"question"`
	Response       string      `gorm:"type:text;not null" json:"response" bson:"response"`
	FollowUp       string      `gorm:"type:text" json:"follow_up" bson:"follow_up"`
	Relevance      int         `json:"relevance" bson:"relevance"`
	Quality        int         `json:"quality" bson:"quality"`
	Detail         int         `json:"detail" bson:"detail"`
	Confusion      int         `json:"confusion" bson:"confusion"`
	Negativity     int         `json:"negativity" bson:"negativity"`
	Consistency    int         `json:"consistency" bson:"consistency"`
	Confidence     int         `json:"confidence" bson:"confidence"`
	GibberishScore int         `json:"gibberish_score" bson:"gibberish_score"`
	Keywords       StringSlice `gorm:"type:text" json:"keywords" bson:"keywords"`
	Reason         string      `gorm:"type:text" json:"reason" bson:"reason"`
	Ended          bool        `json:"ended" bson:"ended"`
	SessionNo      int         `json:"session_no" bson:"session_no"`
	QsNo           int         `json:"qs_no" bson:"qs_no"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at" bson:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ProbeResponse) TableName() string {
	return "probe_responses"
}

// Key 返回记录所属会话的标识。
func (r ProbeResponse) Key() string {
	return SessionKey(r.SurveyID, r.QuestionID, r.RespondentID)
}

// DocumentID 是记录在搜索索引中的唯一标识。
func (r ProbeResponse) DocumentID() string {
	return fmt.Sprintf("%s-%d-%d", r.Key(), r.SessionNo, r.QsNo)
}

// Metrics 还原记录中的评估结果。
func (r ProbeResponse) Metrics() MetricsRecord {
	return MetricsRecord{
		Relevance:      r.Relevance,
		Quality:        r.Quality,
		Detail:         r.Detail,
		Confusion:      r.Confusion,
		Negativity:     r.Negativity,
		Consistency:    r.Consistency,
		Confidence:     r.Confidence,
		Keywords:       []string(r.Keywords),
		Reason:         r.Reason,
		GibberishScore: r.GibberishScore,
	}
}

// NewProbeResponse 由一个已完成的回合组装最终记录。
func NewProbeResponse(turn SurveyResponse, followUp string, m MetricsRecord, state ProbeState, at time.Time) ProbeResponse {
	return ProbeResponse{
		SurveyID:       turn.SurveyID,
		QuestionID:     turn.QuestionID,
		RespondentID:   turn.RespondentID,
		Question:       turn.Question,
		Response:       turn.Response,
		FollowUp:       followUp,
		Relevance:      m.Relevance,
		Quality:        m.Quality,
		Detail:         m.Detail,
		Confusion:      m.Confusion,
		Negativity:     m.Negativity,
		Consistency:    m.Consistency,
		Confidence:     m.Confidence,
		GibberishScore: m.GibberishScore,
		Keywords:       StringSlice(m.Keywords),
		Reason:         m.Reason,
		Ended:          state.Ended,
		SessionNo:      state.SessionNo,
		QsNo:           state.Counter,
		CreatedAt:      at,
	}
}

// StringSlice 在 MySQL 中以逗号分隔的文本保存关键词。
type StringSlice []string

// Value 实现 driver.Valuer。
func (s StringSlice) Value() (driver.Value, error) {
	return strings.Join(s, ","), nil
}

// Scan 实现 sql.Scanner。
func (s *StringSlice) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*s = StringSlice{}
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("unsupported keywords column type %T", src)
	}
	if raw == "" {
		*s = StringSlice{}
		return nil
	}
	*s = strings.Split(raw, ",")
	return nil
}
