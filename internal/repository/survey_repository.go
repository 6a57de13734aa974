package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"monet-probing/internal/model"
	"monet-probing/pkg/log"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

var (
	ErrSurveyNotFound        = errors.New("survey not found")
	ErrQuestionNotFound      = errors.New("question not found")
	ErrInvalidIdentity       = errors.New("survey or question id is neither an ObjectID nor an integer")
	ErrBackendNotConfigured  = errors.New("survey backend not configured")
	errUnsupportedIdentities = errors.New("survey and question ids must use the same id scheme")
)

// SurveyRepository 按调查与问题标识读取只读配置快照。
type SurveyRepository interface {
	FindContext(ctx context.Context, surveyID, questionID string) (model.SurveySnapshot, error)
}

// IsObjectID 判断标识是否为 24 位十六进制的 MongoDB ObjectID。
func IsObjectID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// IsIntID 判断标识是否为 MySQL 使用的整数 ID。
func IsIntID(id string) bool {
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// ---- MySQL ----

type mysqlSurveyRepository struct {
	db *gorm.DB
}

// NewMySQLSurveyRepository 创建从 probe_surveys / probe_survey_questions 读取配置的实现。
func NewMySQLSurveyRepository(db *gorm.DB) SurveyRepository {
	return &mysqlSurveyRepository{db: db}
}

func (r *mysqlSurveyRepository) FindContext(ctx context.Context, surveyID, questionID string) (model.SurveySnapshot, error) {
	suID, err := strconv.ParseInt(surveyID, 10, 64)
	if err != nil {
		return model.SurveySnapshot{}, ErrInvalidIdentity
	}
	qsID, err := strconv.ParseInt(questionID, 10, 64)
	if err != nil {
		return model.SurveySnapshot{}, ErrInvalidIdentity
	}

	var survey model.StudySurvey
	if err := r.db.WithContext(ctx).Where("study_id = ?", suID).First(&survey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.SurveySnapshot{}, ErrSurveyNotFound
		}
		return model.SurveySnapshot{}, fmt.Errorf("failed to query survey: %w", err)
	}
	var question model.StudyQuestion
	if err := r.db.WithContext(ctx).Where("qs_id = ? AND su_id = ?", qsID, suID).First(&question).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.SurveySnapshot{}, ErrQuestionNotFound
		}
		return model.SurveySnapshot{}, fmt.Errorf("failed to query question: %w", err)
	}

	var flags model.GlobalFlags
	if err := decodeJSONColumn(survey.GlobalFlags, &flags); err != nil {
		return model.SurveySnapshot{}, fmt.Errorf("invalid global_flags for survey %s: %w", surveyID, err)
	}
	var qcfg model.QuestionConfig
	if err := decodeJSONColumn(question.Config, &qcfg); err != nil {
		return model.SurveySnapshot{}, fmt.Errorf("invalid config for question %s: %w", questionID, err)
	}

	return model.SurveySnapshot{
		Survey: model.SurveyContext{
			ID:          surveyID,
			Title:       survey.StudyName,
			Description: flags.SurveyDescription,
			Language:    flags.Language,
			AddContext:  model.FlagOrDefault(flags.AddContext),
		},
		Question: questionContext(surveyID, questionID, question.Question, question.Description, qcfg),
	}, nil
}

func decodeJSONColumn(raw string, v interface{}) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

// ---- MongoDB ----

type mongoSurveyRepository struct {
	surveys   *mongo.Collection
	questions *mongo.Collection
}

// NewMongoSurveyRepository 创建从 surveys / survey-questions 集合读取配置的实现。
func NewMongoSurveyRepository(db *mongo.Database) SurveyRepository {
	return &mongoSurveyRepository{
		surveys:   db.Collection("surveys"),
		questions: db.Collection("survey-questions"),
	}
}

func (r *mongoSurveyRepository) FindContext(ctx context.Context, surveyID, questionID string) (model.SurveySnapshot, error) {
	suOID, err := primitive.ObjectIDFromHex(surveyID)
	if err != nil {
		return model.SurveySnapshot{}, ErrInvalidIdentity
	}
	qsOID, err := primitive.ObjectIDFromHex(questionID)
	if err != nil {
		return model.SurveySnapshot{}, ErrInvalidIdentity
	}

	var survey model.SurveyDocument
	if err := r.surveys.FindOne(ctx, bson.M{"_id": suOID}).Decode(&survey); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.SurveySnapshot{}, ErrSurveyNotFound
		}
		return model.SurveySnapshot{}, fmt.Errorf("failed to query survey: %w", err)
	}
	var question model.QuestionDocument
	if err := r.questions.FindOne(ctx, bson.M{"_id": qsOID}).Decode(&question); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.SurveySnapshot{}, ErrQuestionNotFound
		}
		return model.SurveySnapshot{}, fmt.Errorf("failed to query question: %w", err)
	}

	return model.SurveySnapshot{
		Survey: model.SurveyContext{
			ID:          surveyID,
			Title:       survey.Title,
			Description: survey.Description,
			Language:    survey.Config.Language,
			AddContext:  model.FlagOrDefault(survey.Config.AddContext),
		},
		Question: questionContext(surveyID, questionID, question.Question, question.Description, question.Config),
	}, nil
}

func questionContext(surveyID, questionID, text, description string, cfg model.QuestionConfig) model.QuestionContext {
	return model.QuestionContext{
		ID:                 questionID,
		SurveyID:           surveyID,
		Question:           text,
		Description:        description,
		AddContext:         model.FlagOrDefault(cfg.AddContext),
		MinProbes:          cfg.Probes,
		MaxProbes:          cfg.MaxProbes,
		QualityThreshold:   cfg.QualityThreshold,
		RelevanceThreshold: cfg.RelevanceThreshold,
		GibberishThreshold: cfg.GibberishScore,
	}
}

// ---- 按标识切换数据源 ----

type switchingSurveyRepository struct {
	mysql SurveyRepository
	mongo SurveyRepository
}

// NewSwitchingSurveyRepository 按标识形态选择数据源：ObjectID 走 MongoDB，整数走 MySQL。
// 任一参数可以为 nil，表示该数据源未启用。
func NewSwitchingSurveyRepository(mysql, mongo SurveyRepository) SurveyRepository {
	return &switchingSurveyRepository{mysql: mysql, mongo: mongo}
}

func (r *switchingSurveyRepository) FindContext(ctx context.Context, surveyID, questionID string) (model.SurveySnapshot, error) {
	var backend SurveyRepository
	switch {
	case IsObjectID(surveyID):
		if !IsObjectID(questionID) {
			return model.SurveySnapshot{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, errUnsupportedIdentities)
		}
		backend = r.mongo
	case IsIntID(surveyID):
		if !IsIntID(questionID) {
			return model.SurveySnapshot{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, errUnsupportedIdentities)
		}
		backend = r.mysql
	default:
		return model.SurveySnapshot{}, ErrInvalidIdentity
	}
	if backend == nil {
		return model.SurveySnapshot{}, ErrBackendNotConfigured
	}
	return backend.FindContext(ctx, surveyID, questionID)
}

// ---- Redis 缓存 ----

type cachedSurveyRepository struct {
	next   SurveyRepository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedSurveyRepository 在 next 之前加一层 survey_details 缓存，缓存出错时直接回源。
func NewCachedSurveyRepository(next SurveyRepository, client *redis.Client, ttl time.Duration) SurveyRepository {
	return &cachedSurveyRepository{next: next, client: client, ttl: ttl}
}

func surveyDetailsKey(surveyID, questionID string) string {
	return fmt.Sprintf("survey_details:%s:%s", surveyID, questionID)
}

func (r *cachedSurveyRepository) FindContext(ctx context.Context, surveyID, questionID string) (model.SurveySnapshot, error) {
	key := surveyDetailsKey(surveyID, questionID)
	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var snap model.SurveySnapshot
		jsonErr := json.Unmarshal(data, &snap)
		if jsonErr == nil {
			return snap, nil
		}
		log.Warnw("survey_details 缓存内容无法解析，回源查询", "key", key, "error", jsonErr)
	case !errors.Is(err, redis.Nil):
		log.Warnw("survey_details 缓存不可用，回源查询", "key", key, "error", err)
	}

	snap, err := r.next.FindContext(ctx, surveyID, questionID)
	if err != nil {
		return model.SurveySnapshot{}, err
	}

	if b, err := json.Marshal(snap); err == nil {
		if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
			log.Warnw("写入 survey_details 缓存失败", "key", key, "error", err)
		}
	}
	return snap, nil
}
