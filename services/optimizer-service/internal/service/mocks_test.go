package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// MockRuleStore is a mock implementation of RuleStore
type MockRuleStore struct {
	mock.Mock
}

func (m *MockRuleStore) ListEnabled(ctx context.Context, publisherID string) ([]models.OptimizationRule, error) {
	args := m.Called(ctx, publisherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OptimizationRule), args.Error(1)
}

func (m *MockRuleStore) UpdateExecutionMeta(ctx context.Context, id primitive.ObjectID, executedAt time.Time) error {
	args := m.Called(ctx, id, executedAt)
	return args.Error(0)
}

func (m *MockRuleStore) DistinctPublishers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockExecutionStore is a mock implementation of ExecutionStore
type MockExecutionStore struct {
	mock.Mock
}

func (m *MockExecutionStore) Record(ctx context.Context, execution *models.RuleExecution) error {
	args := m.Called(ctx, execution)
	return args.Error(0)
}

// MockConfigStore is a mock implementation of ConfigStore
type MockConfigStore struct {
	mock.Mock
}

func (m *MockConfigStore) SetBidderEnabled(ctx context.Context, publisherID, code string, enabled bool) error {
	args := m.Called(ctx, publisherID, code, enabled)
	return args.Error(0)
}

func (m *MockConfigStore) SetTimeoutOverride(ctx context.Context, publisherID, target string, timeoutMs int64) error {
	args := m.Called(ctx, publisherID, target, timeoutMs)
	return args.Error(0)
}

func (m *MockConfigStore) UpsertFloorRule(ctx context.Context, publisherID, target string, floor float64) error {
	args := m.Called(ctx, publisherID, target, floor)
	return args.Error(0)
}

func (m *MockConfigStore) UpsertTrafficAllocation(ctx context.Context, publisherID, target string, weightPct float64) error {
	args := m.Called(ctx, publisherID, target, weightPct)
	return args.Error(0)
}

// MockMetricProvider is a mock implementation of MetricProvider
type MockMetricProvider struct {
	mock.Mock
}

func (m *MockMetricProvider) GetMetric(ctx context.Context, publisherID string, key models.MetricKey) (float64, bool, error) {
	args := m.Called(ctx, publisherID, key)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, publisherID, ruleName string, notification models.Notification) error {
	args := m.Called(ctx, publisherID, ruleName, notification)
	return args.Error(0)
}

// MockCycleLocker is a mock implementation of CycleLocker
type MockCycleLocker struct {
	mock.Mock
}

func (m *MockCycleLocker) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, token, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCycleLocker) ReleaseLock(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}
