package repository

import (
	"context"
	"fmt"

	"monet-probing/internal/model"

	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ResponseRepository 持久化每个回合最终的探询记录。
type ResponseRepository interface {
	Save(ctx context.Context, resp *model.ProbeResponse) error
}

type mysqlResponseRepository struct {
	db *gorm.DB
}

// NewMySQLResponseRepository 创建写入 probe_responses 表的实现。
func NewMySQLResponseRepository(db *gorm.DB) ResponseRepository {
	return &mysqlResponseRepository{db: db}
}

func (r *mysqlResponseRepository) Save(ctx context.Context, resp *model.ProbeResponse) error {
	return r.db.WithContext(ctx).Create(resp).Error
}

type mongoResponseRepository struct {
	collection *mongo.Collection
}

// NewMongoResponseRepository 创建写入 QnAs 集合的实现。
func NewMongoResponseRepository(db *mongo.Database) ResponseRepository {
	return &mongoResponseRepository{collection: db.Collection("QnAs")}
}

func (r *mongoResponseRepository) Save(ctx context.Context, resp *model.ProbeResponse) error {
	_, err := r.collection.InsertOne(ctx, resp)
	return err
}

type switchingResponseRepository struct {
	mysql ResponseRepository
	mongo ResponseRepository
}

// NewSwitchingResponseRepository 与 NewSwitchingSurveyRepository 一样按调查标识选择存储。
func NewSwitchingResponseRepository(mysql, mongo ResponseRepository) ResponseRepository {
	return &switchingResponseRepository{mysql: mysql, mongo: mongo}
}

func (r *switchingResponseRepository) Save(ctx context.Context, resp *model.ProbeResponse) error {
	var backend ResponseRepository
	switch {
	case IsObjectID(resp.SurveyID):
		backend = r.mongo
	case IsIntID(resp.SurveyID):
		backend = r.mysql
	default:
		return ErrInvalidIdentity
	}
	if backend == nil {
		return fmt.Errorf("%w for survey %s", ErrBackendNotConfigured, resp.SurveyID)
	}
	return backend.Save(ctx, resp)
}
