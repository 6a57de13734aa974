// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monet-probing/internal/config"
	"monet-probing/internal/handler"
	"monet-probing/internal/middleware"
	"monet-probing/internal/model"
	"monet-probing/internal/pipeline"
	"monet-probing/internal/repository"
	"monet-probing/internal/service"
	"monet-probing/pkg/database"
	"monet-probing/pkg/es"
	"monet-probing/pkg/kafka"
	"monet-probing/pkg/llm"
	"monet-probing/pkg/log"
	"monet-probing/pkg/storage"
	"monet-probing/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化 Redis 和可选的存储后端
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitMongo(cfg.Database.Mongo)
	if database.DB != nil {
		if err := database.DB.AutoMigrate(&model.ProbeResponse{}); err != nil {
			log.Fatal("迁移 probe_responses 表失败", err)
		}
	}

	var (
		indexer  pipeline.ResponseIndexer
		searcher service.ResponseSearcher
	)
	if cfg.Elasticsearch.Addresses != "" {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败，回答检索不可用: %s", err)
		} else {
			index := es.ResponseIndex{Name: cfg.Elasticsearch.IndexName}
			indexer, searcher = index, index
		}
	}

	var (
		archiver pipeline.TranscriptArchiver
		locator  service.TranscriptLocator
	)
	if cfg.MinIO.Endpoint != "" {
		storage.InitMinIO(cfg.MinIO)
		store := storage.TranscriptStore{Bucket: cfg.MinIO.BucketName}
		archiver, locator = store, store
	}

	// 4. 初始化 Repository
	var (
		mysqlSurveys, mongoSurveys     repository.SurveyRepository
		mysqlResponses, mongoResponses repository.ResponseRepository
	)
	if database.DB != nil {
		mysqlSurveys = repository.NewMySQLSurveyRepository(database.DB)
		mysqlResponses = repository.NewMySQLResponseRepository(database.DB)
	}
	if database.MongoDB != nil {
		mongoSurveys = repository.NewMongoSurveyRepository(database.MongoDB)
		mongoResponses = repository.NewMongoResponseRepository(database.MongoResponseDB)
	}
	surveyRepo := repository.NewCachedSurveyRepository(
		repository.NewSwitchingSurveyRepository(mysqlSurveys, mongoSurveys),
		database.RDB, cfg.Probe.SurveyCacheTTL,
	)
	responseRepo := repository.NewSwitchingResponseRepository(mysqlResponses, mongoResponses)
	sessionCache := repository.NewSessionCache(database.RDB)
	conversationRepo := repository.NewConversationRepository(database.RDB, cfg.Probe.HistoryTTL)
	intentRepo := repository.NewIntentRepository(database.RDB, cfg.Probe.IntentTTL)

	// 5. 初始化持久化管道 (Processor)
	processor := pipeline.NewProcessor(responseRepo, conversationRepo, indexer, archiver)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	var persister service.ResponsePersister
	switch {
	case !cfg.Probe.Persist:
		close(consumerDone)
	case cfg.Probe.PersistMode == "kafka":
		kafka.InitProducer(cfg.Kafka)
		persister = kafka.ResponsePublisher{}
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(consumerCtx, cfg.Kafka, database.RDB, processor)
		}()
	default:
		persister = processor
		close(consumerDone)
	}

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	llmClient := llm.NewClient(cfg.LLM)
	probeService := service.NewProbeService(
		surveyRepo,
		sessionCache,
		conversationRepo,
		service.NewEvaluator(llmClient),
		service.NewFollowUpGenerator(llmClient, cfg.LLM.Generation, cfg.Probe.Prompt.Redirection),
		service.NewIntentService(llmClient, intentRepo),
		persister,
		service.ProbeOptions{
			SessionTTL: cfg.Probe.SessionTTL,
			Thresholds: model.Thresholds{
				Quality:   cfg.Probe.Thresholds.Quality,
				Relevance: cfg.Probe.Thresholds.Relevance,
				Gibberish: cfg.Probe.Thresholds.Gibberish,
			},
			BasePrompt: cfg.Probe.Prompt.Base,
			Rules:      cfg.Probe.Prompt.Rules,
			Persist:    cfg.Probe.Persist,
		},
	)
	adminService := service.NewAdminService(sessionCache, conversationRepo, searcher, locator)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	health := handler.NewHealthHandler(sessionCache)
	r.GET("/", health.Root)
	r.GET("/health", health.Health)
	r.GET("/ws/ai-qa", handler.NewProbeHandler(probeService).Handle)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/token", handler.NewAuthHandler(cfg.Auth, jwtManager).IssueToken)

		admin := apiV1.Group("/admin")
		// 运维路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager), middleware.AdminAuthMiddleware())
		{
			adminHandler := handler.NewAdminHandler(adminService)
			probes := admin.Group("/probes/:surveyId/:questionId/:respondentId")
			{
				probes.GET("", adminHandler.GetProbe)
				probes.DELETE("", adminHandler.ResetProbe)
				probes.GET("/transcripts/:sessionNo", adminHandler.GetTranscript)
			}
			admin.GET("/responses/search", adminHandler.SearchResponses)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	if err := kafka.CloseProducer(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
	database.CloseMongo(ctx)
	if err := database.RDB.Close(); err != nil {
		log.Errorf("关闭 Redis 连接失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
