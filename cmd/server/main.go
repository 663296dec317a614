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

	"paytransfer/internal/config"
	"paytransfer/internal/handler"
	"paytransfer/internal/infrastructure/cache"
	"paytransfer/internal/infrastructure/database"
	"paytransfer/internal/infrastructure/logger"
	"paytransfer/internal/infrastructure/mq"
	"paytransfer/internal/infrastructure/rpc"
	"paytransfer/internal/job"
	"paytransfer/internal/service"
	"paytransfer/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.Init(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatal("初始化 MySQL 失败", zap.Error(err))
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal("初始化 Redis 失败", zap.Error(err))
	}
	defer redisClient.Close()

	// 初始化 Kafka
	producer, err := mq.NewSyncProducer(&cfg.Kafka)
	if err != nil {
		log.Fatal("初始化 Kafka 失败", zap.Error(err))
	}
	publisher := mq.NewPublisher(producer)
	defer publisher.Close()

	// 组装服务
	userClient := rpc.NewUserClient(&cfg.UserService, cfg.Business.RPCTimeout)
	notifier := service.NewOutboxNotifier(db, cfg)
	ledgerService := service.NewLedgerService(db, cfg, notifier)
	transferService := service.NewTransferService(db, cfg, service.TransferDeps{
		Verifier:   userClient,
		Identities: userClient,
		Ledger:     ledgerService,
		Notifier:   notifier,
	})
	requestService := service.NewRequestService(db, redisClient, cfg, userClient, transferService, notifier)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	compensationJob := job.NewCompensationJob(db, ledgerService, cfg)
	go compensationJob.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(handler.NewHandler(transferService, ledgerService, requestService))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
}
