package model

import "fmt"

// MetricsRecord 是一次评估调用的结构化输出，创建后不再修改。
type MetricsRecord struct {
	Relevance      int      `json:"relevance" bson:"relevance"`
	Quality        int      `json:"quality" bson:"quality"`
	Detail         int      `json:"detail" bson:"detail"`
	Confusion      int      `json:"confusion" bson:"confusion"`
	Negativity     int      `json:"negativity" bson:"negativity"`
	Consistency    int      `json:"consistency" bson:"consistency"`
	Confidence     int      `json:"confidence" bson:"confidence"`
	Keywords       []string `json:"keywords" bson:"keywords"`
	Reason         string   `json:"reason" bson:"reason"`
	GibberishScore int      `json:"gibberish_score" bson:"gibberish_score"`
}

// 分数边界：quality 为 [1,10]，其余为 [0,10]。
const (
	MinQuality = 1
	MinScore   = 0
	MaxScore   = 10
)

// Validate 检查所有分数是否在边界之内。
func (m MetricsRecord) Validate() error {
	if m.Quality < MinQuality || m.Quality > MaxScore {
		return fmt.Errorf("quality %d out of range [%d,%d]", m.Quality, MinQuality, MaxScore)
	}
	for name, v := range m.scores() {
		if v < MinScore || v > MaxScore {
			return fmt.Errorf("%s %d out of range [%d,%d]", name, v, MinScore, MaxScore)
		}
	}
	return nil
}

// Clamped 返回一个所有分数都被截断到合法区间的副本。
func (m MetricsRecord) Clamped() MetricsRecord {
	out := m
	out.Quality = clamp(m.Quality, MinQuality, MaxScore)
	out.Relevance = clamp(m.Relevance, MinScore, MaxScore)
	out.Detail = clamp(m.Detail, MinScore, MaxScore)
	out.Confusion = clamp(m.Confusion, MinScore, MaxScore)
	out.Negativity = clamp(m.Negativity, MinScore, MaxScore)
	out.Consistency = clamp(m.Consistency, MinScore, MaxScore)
	out.Confidence = clamp(m.Confidence, MinScore, MaxScore)
	out.GibberishScore = clamp(m.GibberishScore, MinScore, MaxScore)
	if m.Keywords != nil {
		out.Keywords = append([]string(nil), m.Keywords...)
	} else {
		out.Keywords = []string{}
	}
	return out
}

func (m MetricsRecord) scores() map[string]int {
	return map[string]int{
		"relevance":       m.Relevance,
		"detail":          m.Detail,
		"confusion":       m.Confusion,
		"negativity":      m.Negativity,
		"consistency":     m.Consistency,
		"confidence":      m.Confidence,
		"gibberish_score": m.GibberishScore,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
