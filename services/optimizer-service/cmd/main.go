package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/headwall/headwall/pkg/cache"
	"github.com/headwall/headwall/pkg/database"
	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/pkg/messaging"
	"github.com/headwall/headwall/pkg/middleware"
	"github.com/headwall/headwall/services/optimizer-service/internal/config"
	"github.com/headwall/headwall/services/optimizer-service/internal/handlers"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
	"github.com/headwall/headwall/services/optimizer-service/internal/repository"
	"github.com/headwall/headwall/services/optimizer-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Инициализация логгера
	log := logger.NewLogger("optimizer-service")

	// Загрузка конфигурации
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/optimizer_config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Подключение к MongoDB
	mongodb, err := database.NewMongoDB(cfg.MongoDB.URI, cfg.MongoDB.Database, cfg.MongoDB.Timeout)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer mongodb.Close()

	db := mongodb.GetDatabase()

	// Создание индексов
	if err := setupIndexes(ctx, db, cfg.MongoDB.ExecutionsTTL); err != nil {
		log.WithError(err).Error("Failed to setup indexes")
	}

	// Подключение к Redis
	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	// Подключение к RabbitMQ
	mq, err := messaging.NewClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to RabbitMQ")
	}
	defer mq.Close()

	if err := mq.DeclareExchange(cfg.RabbitMQ.Exchange, "topic", true, false); err != nil {
		log.WithError(err).Fatal("Failed to declare exchange")
	}

	// Инициализация репозиториев
	ruleRepo := repository.NewRuleRepository(db)
	executionRepo := repository.NewExecutionRepository(db)
	configRepo := repository.NewConfigRepository(db)

	// Источник метрик
	provider, err := service.NewPrometheusProvider(cfg.Prometheus.URL, cfg.Prometheus.QueryTimeout, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Prometheus provider")
	}

	// Уведомления
	notifier, err := service.NewAlertNotifier(mq, service.NotifierOptions{
		Exchange:      cfg.RabbitMQ.Exchange,
		TelegramToken: cfg.Notifier.TelegramToken,
		TelegramChat:  cfg.Notifier.TelegramChat,
		WebhookURL:    cfg.Notifier.WebhookURL,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create notifier")
	}

	// Движок оптимизации
	executor := service.NewActionExecutor(configRepo, notifier, log)
	recorder := service.NewRecorder(executionRepo, ruleRepo, log)
	engine := service.NewEngine(ruleRepo, recorder, executor, provider, redisCache, service.EngineConfig{
		CheckInterval:   cfg.Engine.CheckInterval,
		Cooldown:        cfg.Engine.Cooldown,
		LockTTL:         cfg.Engine.LockTTL,
		SnapshotTimeout: cfg.Engine.SnapshotTimeout,
	}, log)

	// Предустановленные правила из конфигурации
	if err := seedRules(ctx, ruleRepo, cfg.SeedRules); err != nil {
		log.WithError(err).Error("Failed to seed rules")
	}

	// Запуск планировщика
	go engine.Run(ctx)

	// Запуск HTTP сервера
	handler := handlers.NewOptimizerHandler(engine, ruleRepo, executionRepo, log)
	go startHTTPServer(cfg, handler, log)

	// Ожидание сигнала завершения
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down optimizer service...")
	cancel()
	time.Sleep(2 * time.Second)
}

func startHTTPServer(cfg *config.Config, handler *handlers.OptimizerHandler, log *logger.Logger) {
	router := gin.Default()

	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	rateLimiter := middleware.NewRateLimiter(100, time.Minute)

	// API routes
	v1 := router.Group("/api/v1/optimizer")
	v1.Use(rateLimiter.Middleware())
	if cfg.Auth.JWTSecret != "" {
		auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
		v1.Use(auth.Authenticate())
	}
	{
		v1.POST("/publishers/:publisher_id/run", handler.RunCycleHTTP)
		v1.GET("/rules", handler.ListRulesHTTP)
		v1.GET("/executions", handler.ListExecutionsHTTP)
	}

	// Health check
	router.GET("/health", handler.HealthHTTP)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.WithField("port", cfg.Service.HTTPPort).Info("Starting HTTP server")
	if err := router.Run(fmt.Sprintf(":%d", cfg.Service.HTTPPort)); err != nil {
		log.WithError(err).Fatal("Failed to start HTTP server")
	}
}

func setupIndexes(ctx context.Context, db *mongo.Database, executionsTTL time.Duration) error {
	// optimization_rules indexes
	ruleIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "publisher_id", Value: 1},
				{Key: "enabled", Value: 1},
				{Key: "priority", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "publisher_id", Value: 1},
				{Key: "name", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := db.Collection("optimization_rules").Indexes().CreateMany(ctx, ruleIndexes); err != nil {
		return err
	}

	// rule_executions indexes
	executionIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "publisher_id", Value: 1},
				{Key: "executed_at", Value: -1},
			},
		},
		{
			Keys: bson.D{
				{Key: "rule_id", Value: 1},
				{Key: "executed_at", Value: -1},
			},
		},
		{
			Keys:    bson.D{{Key: "executed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(executionsTTL.Seconds())),
		},
	}
	if _, err := db.Collection("rule_executions").Indexes().CreateMany(ctx, executionIndexes); err != nil {
		return err
	}

	// bidder_configs index
	bidderIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "publisher_id", Value: 1},
			{Key: "code", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection("bidder_configs").Indexes().CreateOne(ctx, bidderIndex); err != nil {
		return err
	}

	// Конфигурационные коллекции с ключом (publisher_id, target)
	for _, name := range []string{"timeout_overrides", "floor_rules", "traffic_allocations"} {
		idx := mongo.IndexModel{
			Keys: bson.D{
				{Key: "publisher_id", Value: 1},
				{Key: "target", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		}
		if _, err := db.Collection(name).Indexes().CreateOne(ctx, idx); err != nil {
			return err
		}
	}

	return nil
}

// seedRules создает декларативные правила из конфигурации, пропуская существующие
func seedRules(ctx context.Context, repo *repository.RuleRepository, seeds []config.SeedRuleConfig) error {
	for _, seed := range seeds {
		existing, err := repo.GetByName(ctx, seed.PublisherID, seed.Name)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if existing != nil {
			continue
		}

		value := seed.ActionValue
		rule := &models.OptimizationRule{
			PublisherID: seed.PublisherID,
			Name:        seed.Name,
			Description: seed.Description,
			RuleType:    models.RuleType(seed.RuleType),
			Conditions: []models.Condition{{
				Metric:     models.Metric(seed.Metric),
				Operator:   models.Operator(seed.Operator),
				Value:      seed.Value,
				TimeWindow: models.TimeWindow(seed.TimeWindow),
				Target:     seed.Target,
			}},
			Actions: []models.Action{{
				Type:   models.ActionType(seed.ActionType),
				Target: seed.Target,
				Value:  &value,
			}},
			Enabled:   true,
			Priority:  seed.Priority,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := rule.Validate(); err != nil {
			return fmt.Errorf("invalid seed rule %q: %w", seed.Name, err)
		}

		if err := repo.Create(ctx, rule); err != nil {
			return err
		}
	}

	return nil
}
