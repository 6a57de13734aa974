package model

// DefaultLanguage 为英语时系统提示词不追加语言指令。
const DefaultLanguage = "English"

// SurveyContext 是调查级别配置的只读快照。
type SurveyContext struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	AddContext  bool   `json:"add_context"`
}

// QuestionContext 是问题级别配置的只读快照。
type QuestionContext struct {
	ID                 string `json:"id"`
	SurveyID           string `json:"survey_id"`
	Question           string `json:"question"`
	Description        string `json:"description"`
	AddContext         bool   `json:"add_context"`
	MinProbes          int    `json:"min_probe"`
	MaxProbes          int    `json:"max_probe"`
	// 阈值为 nil 表示未配置，显式的 0 保留。
	QualityThreshold   *int   `json:"quality_threshold,omitempty"`
	RelevanceThreshold *int   `json:"relevance_threshold,omitempty"`
	GibberishThreshold *int   `json:"gibberish_score,omitempty"`
}

// Limits 返回生效的阈值，未配置的字段按 0 处理。调用前应先 ApplyDefaults。
func (q QuestionContext) Limits() Thresholds {
	return Thresholds{
		Quality:   intValue(q.QualityThreshold),
		Relevance: intValue(q.RelevanceThreshold),
		Gibberish: intValue(q.GibberishThreshold),
	}
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// SurveySnapshot 是 survey_details 缓存中保存的组合快照。
type SurveySnapshot struct {
	Survey   SurveyContext   `json:"survey"`
	Question QuestionContext `json:"question"`
}

// Thresholds 用于补齐问题未配置的阈值。
type Thresholds struct {
	Quality   int
	Relevance int
	Gibberish int
}

// ApplyDefaults 为缺失字段填入默认值：语言为英语，未配置的阈值取 t 中的值。
func (s *SurveySnapshot) ApplyDefaults(t Thresholds) {
	if s.Survey.Language == "" {
		s.Survey.Language = DefaultLanguage
	}
	if s.Question.QualityThreshold == nil {
		s.Question.QualityThreshold = IntPtr(t.Quality)
	}
	if s.Question.RelevanceThreshold == nil {
		s.Question.RelevanceThreshold = IntPtr(t.Relevance)
	}
	if s.Question.GibberishThreshold == nil {
		s.Question.GibberishThreshold = IntPtr(t.Gibberish)
	}
}

// IntPtr 返回 v 的指针。
func IntPtr(v int) *int {
	return &v
}

// ---- MySQL 表模型 ----

// StudySurvey 对应 probe_surveys 表，调查级开关存放在 JSON 列 global_flags 中。
type StudySurvey struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudyID     int64  `gorm:"uniqueIndex;not null" json:"studyId"`
	StudyName   string `gorm:"type:varchar(255)" json:"studyName"`
	GlobalFlags string `gorm:"type:json" json:"globalFlags"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (StudySurvey) TableName() string {
	return "probe_surveys"
}

// GlobalFlags 是 probe_surveys.global_flags 的 JSON 结构。
type GlobalFlags struct {
	Language          string `json:"language"`
	SurveyDescription string `json:"survey_description"`
	AddContext        *bool  `json:"add_context"`
}

// StudyQuestion 对应 probe_survey_questions 表，问题配置存放在 JSON 列 config 中。
type StudyQuestion struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	QsID        int64  `gorm:"index;not null" json:"qsId"`
	SuID        int64  `gorm:"index;not null" json:"suId"`
	Question    string `gorm:"type:text;not null" json:"question"`
	Description string `gorm:"type:text" json:"description"`
	SeqNum      int    `json:"seqNum"`
	Config      string `gorm:"type:json" json:"config"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (StudyQuestion) TableName() string {
	return "probe_survey_questions"
}

// QuestionConfig 是问题配置的 JSON 结构，MySQL 与 MongoDB 共用。
type QuestionConfig struct {
	Probes             int   `json:"probes" bson:"probes"`
	MaxProbes          int   `json:"max_probes" bson:"max_probes"`
	AddContext         *bool `json:"add_context" bson:"add_context"`
	QualityThreshold   *int  `json:"quality_threshold" bson:"quality_threshold"`
	RelevanceThreshold *int  `json:"relevance_threshold" bson:"relevance_threshold"`
	GibberishScore     *int  `json:"gibberish_score" bson:"gibberish_score"`
}

// FlagOrDefault 返回开关的值，未设置时视为开启。
func FlagOrDefault(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

// ---- MongoDB 文档模型 ----

// SurveyDocument 对应 surveys 集合中的文档。
type SurveyDocument struct {
	Title       string `bson:"title"`
	Description string `bson:"description"`
	Config      struct {
		Language   string `bson:"language"`
		AddContext *bool  `bson:"add_context"`
	} `bson:"config"`
}

// QuestionDocument 对应 survey-questions 集合中的文档。
type QuestionDocument struct {
	Question    string         `bson:"question"`
	Description string         `bson:"description"`
	Config      QuestionConfig `bson:"config"`
}
