// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/consultant"
	"wet-coach-go/internal/handler"
	"wet-coach-go/internal/middleware"
	"wet-coach-go/internal/orchestrator"
	"wet-coach-go/internal/pipeline"
	"wet-coach-go/internal/repository"
	"wet-coach-go/internal/service"
	"wet-coach-go/pkg/database"
	"wet-coach-go/pkg/es"
	"wet-coach-go/pkg/kafka"
	"wet-coach-go/pkg/llm"
	"wet-coach-go/pkg/log"
	"wet-coach-go/pkg/storage"
	"wet-coach-go/pkg/token"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "wet-coach",
		Short:        "WET 治疗师训练后端",
		SilenceUsage: true,
		RunE:         func(cmd *cobra.Command, args []string) error { return serve() },
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "启动 HTTP 服务",
			RunE:  func(cmd *cobra.Command, args []string) error { return serve() },
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "创建或更新数据库表结构",
			RunE:  func(cmd *cobra.Command, args []string) error { return migrate() },
		},
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置并初始化日志。
func bootstrap() (config.Config, error) {
	if err := config.Load(configPath); err != nil {
		return config.Config{}, err
	}
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg, nil
}

func migrate() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	database.Init(cfg.Database)
	if err := database.AutoMigrate(database.DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	log.Info("数据库迁移完成")
	return nil
}

func serve() error {
	// 1. 初始化配置与日志
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. 初始化数据库和 Redis
	database.Init(cfg.Database)
	if err := database.AutoMigrate(database.DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 3. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	noteRepo := repository.NewNoteRepository(database.DB)
	quotaRepo := repository.NewQuotaRepository(database.RDB)
	blacklist := repository.NewTokenBlacklist(database.RDB)

	// 4. 可选的归档后端：MinIO 保存逐字稿，Elasticsearch 索引笔记
	var (
		transcriptWriter pipeline.TranscriptWriter
		transcriptLinker service.TranscriptLinker
		noteIndexer      pipeline.NoteIndexer
		noteSearcher     service.NoteSearcher
	)
	if cfg.MinIO.Endpoint != "" {
		if err := storage.InitMinIO(ctx, cfg.MinIO); err != nil {
			log.Error("MinIO 初始化失败，逐字稿归档已禁用", err)
		} else {
			store := storage.NewTranscriptStore(storage.MinioClient, cfg.MinIO.BucketName)
			transcriptWriter, transcriptLinker = store, store
		}
	}
	if cfg.Elasticsearch.Addresses != "" {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Error("Elasticsearch 初始化失败，笔记检索已禁用", err)
		} else {
			index := es.NewNoteIndex(es.ESClient, cfg.Elasticsearch.IndexName)
			noteIndexer, noteSearcher = index, index
		}
	}

	// 5. 归档流水线：配置了 Kafka 时走消息队列，否则在进程内异步执行
	processor := pipeline.NewProcessor(conversationRepo, noteRepo, transcriptWriter, noteIndexer)
	var publisher service.ArchivePublisher
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		go kafka.StartConsumer(ctx, cfg.Kafka, processor, database.RDB)
	} else {
		publisher = pipeline.NewInlinePublisher(processor)
	}

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	patientClient := llm.NewClient(cfg.LLM)
	consultantClient := llm.NewClient(cfg.Consultant)
	generator := consultant.NewGenerator(consultantClient, llm.DefaultParams(cfg.Consultant))

	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	conversationService := service.NewConversationService(conversationRepo, transcriptLinker)
	noteService := service.NewNoteService(noteRepo, publisher, noteSearcher)
	quotaService := service.NewQuotaService(quotaRepo, cfg.Quota)
	adminService := service.NewAdminService(userRepo, conversationRepo, noteRepo)

	orch := orchestrator.New(conversationRepo, noteService, patientClient, generator, llm.DefaultParams(cfg.LLM))
	orch.SetObserver(func(conversationID string, from, to orchestrator.State) {
		log.Debugw("轮次状态迁移", "conversation_id", conversationID, "from", from.String(), "to", to.String())
	})
	turnService := service.NewTurnService(conversationService, quotaService, orchestrator.NewSessions(), orch)

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, handler.Dependencies{
		JWTManager:    jwtManager,
		Users:         userService,
		Conversations: conversationService,
		Notes:         noteService,
		Turns:         turnService,
		Admin:         adminService,
		Feedback:      generator,
	})

	// 8. 启动 HTTP 服务器并实现优雅停机
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
	}

	// 停止 Kafka 消费者
	cancel()
	log.Info("服务已优雅关闭")
	return nil
}
