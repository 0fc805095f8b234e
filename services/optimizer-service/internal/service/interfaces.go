package service

import (
	"context"
	"time"

	"github.com/headwall/headwall/services/optimizer-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RuleStore доступ движка к правилам оптимизации
type RuleStore interface {
	ListEnabled(ctx context.Context, publisherID string) ([]models.OptimizationRule, error)
	UpdateExecutionMeta(ctx context.Context, id primitive.ObjectID, executedAt time.Time) error
	DistinctPublishers(ctx context.Context) ([]string, error)
}

// ExecutionStore приемник аудит-записей
type ExecutionStore interface {
	Record(ctx context.Context, execution *models.RuleExecution) error
}

// ConfigStore мутации конфигурации паблишера
type ConfigStore interface {
	SetBidderEnabled(ctx context.Context, publisherID, code string, enabled bool) error
	SetTimeoutOverride(ctx context.Context, publisherID, target string, timeoutMs int64) error
	UpsertFloorRule(ctx context.Context, publisherID, target string, floor float64) error
	UpsertTrafficAllocation(ctx context.Context, publisherID, target string, weightPct float64) error
}

// MetricProvider источник оконных значений метрик.
// Второе возвращаемое значение false = данных в окне нет (не ноль и не ошибка).
type MetricProvider interface {
	GetMetric(ctx context.Context, publisherID string, key models.MetricKey) (float64, bool, error)
}

// Notifier доставка уведомлений send_alert, best effort
type Notifier interface {
	Send(ctx context.Context, publisherID, ruleName string, notification models.Notification) error
}

// CycleLocker взаимное исключение циклов одного паблишера
type CycleLocker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}
