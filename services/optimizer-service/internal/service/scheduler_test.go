package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// EngineTestSuite is the test suite for the optimization engine
type EngineTestSuite struct {
	suite.Suite
	ctx        context.Context
	rules      *MockRuleStore
	executions *MockExecutionStore
	configs    *MockConfigStore
	notifier   *MockNotifier
	provider   *MockMetricProvider
	locker     *MockCycleLocker
	engine     *Engine
}

func (s *EngineTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.rules = new(MockRuleStore)
	s.executions = new(MockExecutionStore)
	s.configs = new(MockConfigStore)
	s.notifier = new(MockNotifier)
	s.provider = new(MockMetricProvider)
	s.locker = new(MockCycleLocker)

	log := logger.NewNop()
	executor := NewActionExecutor(s.configs, s.notifier, log)
	recorder := NewRecorder(s.executions, s.rules, log)

	s.engine = NewEngine(s.rules, recorder, executor, s.provider, s.locker, EngineConfig{
		CheckInterval:   time.Minute,
		Cooldown:        30 * time.Minute,
		LockTTL:         2 * time.Minute,
		SnapshotTimeout: 10 * time.Second,
	}, log)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) expectLock(publisherID string) {
	s.locker.On("AcquireLock", mock.Anything, "optimizer:cycle:"+publisherID, mock.Anything, 2*time.Minute).
		Return(true, nil)
	s.locker.On("ReleaseLock", mock.Anything, "optimizer:cycle:"+publisherID, mock.Anything).
		Return(nil)
}

func disableRule(name string, priority int, threshold float64) models.OptimizationRule {
	return models.OptimizationRule{
		ID:          primitive.NewObjectID(),
		PublisherID: "pub-1",
		Name:        name,
		RuleType:    models.RuleAutoDisableBidder,
		Conditions: []models.Condition{{
			Metric:     models.MetricTimeoutRate,
			Operator:   models.OpGT,
			Value:      threshold,
			TimeWindow: models.Window1h,
			Target:     "rubicon",
		}},
		Actions: []models.Action{{
			Type:   models.ActionDisableBidder,
			Target: "rubicon",
		}},
		Enabled:  true,
		Priority: priority,
	}
}

func (s *EngineTestSuite) TestRunCycleLockHeld() {
	s.locker.On("AcquireLock", mock.Anything, "optimizer:cycle:pub-1", mock.Anything, mock.Anything).
		Return(false, nil)

	_, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.ErrorIs(err, models.ErrCycleInProgress)
	s.rules.AssertNotCalled(s.T(), "ListEnabled", mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestRunCycleExecutesMatchedRule() {
	rule := disableRule("kill slow bidder", 5, 10)

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", mock.Anything).Return(15.0, true, nil)
	s.configs.On("SetBidderEnabled", mock.Anything, "pub-1", "rubicon", false).Return(nil)
	s.rules.On("UpdateExecutionMeta", mock.Anything, rule.ID, mock.Anything).Return(nil)

	var recorded *models.RuleExecution
	s.executions.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			recorded = args.Get(1).(*models.RuleExecution)
		}).Return(nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(1, summary.RulesEvaluated)
	s.Equal(1, summary.RulesMatched)
	s.Equal(1, summary.ActionsExecuted)

	s.Require().NotNil(recorded)
	s.Equal(models.ResultSuccess, recorded.Result)
	s.Equal(rule.ID, recorded.RuleID)
	s.NotEmpty(recorded.CycleID)
	s.Len(recorded.ConditionsMet, 1)
	s.True(recorded.ConditionsMet[0].Matched)
	s.Contains(recorded.MetricsSnapshot, "timeout_rate|rubicon|1h")

	s.configs.AssertExpectations(s.T())
	s.locker.AssertExpectations(s.T())
}

func (s *EngineTestSuite) TestRunCycleCooldownSkipsRule() {
	rule := disableRule("kill slow bidder", 5, 10)
	recent := time.Now().Add(-5 * time.Minute)
	rule.LastExecuted = &recent

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(0, summary.RulesEvaluated)

	s.provider.AssertNotCalled(s.T(), "GetMetric", mock.Anything, mock.Anything, mock.Anything)
	s.configs.AssertNotCalled(s.T(), "SetBidderEnabled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestRunCycleCooldownExpiredRuleRuns() {
	rule := disableRule("kill slow bidder", 5, 10)
	old := time.Now().Add(-45 * time.Minute)
	rule.LastExecuted = &old

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", mock.Anything).Return(15.0, true, nil)
	s.configs.On("SetBidderEnabled", mock.Anything, "pub-1", "rubicon", false).Return(nil)
	s.rules.On("UpdateExecutionMeta", mock.Anything, rule.ID, mock.Anything).Return(nil)
	s.executions.On("Record", mock.Anything, mock.Anything).Return(nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(1, summary.ActionsExecuted)
}

func (s *EngineTestSuite) TestRunCycleScheduleGate() {
	rule := disableRule("weekday rule", 5, 10)
	now := time.Now()
	blockedDay := (int(now.Weekday()) + 1) % 7
	rule.Schedule = &models.Schedule{DaysOfWeek: []int{blockedDay}}

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(0, summary.RulesEvaluated)
}

func (s *EngineTestSuite) TestRunCycleConflictResolution() {
	// Правило с приоритетом 8 выигрывает цель у правила с приоритетом 3
	high := disableRule("emergency disable", 8, 10)
	low := disableRule("routine disable", 3, 5)

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").
		Return([]models.OptimizationRule{low, high}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", mock.Anything).Return(15.0, true, nil)
	s.configs.On("SetBidderEnabled", mock.Anything, "pub-1", "rubicon", false).Return(nil).Once()
	s.rules.On("UpdateExecutionMeta", mock.Anything, high.ID, mock.Anything).Return(nil)

	recordedByRule := make(map[string]*models.RuleExecution)
	s.executions.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			exec := args.Get(1).(*models.RuleExecution)
			recordedByRule[exec.RuleName] = exec
		}).Return(nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(2, summary.RulesMatched)
	s.Equal(1, summary.ActionsExecuted)
	s.Equal(1, summary.ActionsSkipped)

	s.Equal(models.ResultSuccess, recordedByRule["emergency disable"].Result)
	s.Equal(models.ResultSkipped, recordedByRule["routine disable"].Result)

	// Метаданные обновились только у выигравшего правила
	s.rules.AssertNotCalled(s.T(), "UpdateExecutionMeta", mock.Anything, low.ID, mock.Anything)
	s.configs.AssertExpectations(s.T())
}

func (s *EngineTestSuite) TestRunCycleActionFailureIsIsolated() {
	failing := disableRule("failing rule", 8, 10)
	value := 1500.0
	healthy := models.OptimizationRule{
		ID:          primitive.NewObjectID(),
		PublisherID: "pub-1",
		Name:        "healthy rule",
		RuleType:    models.RuleAutoAdjustTimeout,
		Conditions: []models.Condition{{
			Metric:     models.MetricTimeoutRate,
			Operator:   models.OpGT,
			Value:      5,
			TimeWindow: models.Window1h,
			Target:     "rubicon",
		}},
		Actions: []models.Action{{
			Type:   models.ActionAdjustTimeout,
			Target: "appnexus",
			Value:  &value,
		}},
		Enabled:  true,
		Priority: 5,
	}

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").
		Return([]models.OptimizationRule{failing, healthy}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", mock.Anything).Return(15.0, true, nil)
	s.configs.On("SetBidderEnabled", mock.Anything, "pub-1", "rubicon", false).
		Return(errors.New("config store down"))
	s.configs.On("SetTimeoutOverride", mock.Anything, "pub-1", "appnexus", int64(1500)).Return(nil)
	s.rules.On("UpdateExecutionMeta", mock.Anything, healthy.ID, mock.Anything).Return(nil)

	recordedByRule := make(map[string]*models.RuleExecution)
	s.executions.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			exec := args.Get(1).(*models.RuleExecution)
			recordedByRule[exec.RuleName] = exec
		}).Return(nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(1, summary.ActionsFailed)
	s.Equal(1, summary.ActionsExecuted)

	s.Equal(models.ResultFailure, recordedByRule["failing rule"].Result)
	s.NotEmpty(recordedByRule["failing rule"].ErrorMessage)
	s.Equal(models.ResultSuccess, recordedByRule["healthy rule"].Result)

	// Провалившееся действие не двигает метаданные правила
	s.rules.AssertNotCalled(s.T(), "UpdateExecutionMeta", mock.Anything, failing.ID, mock.Anything)
}

func (s *EngineTestSuite) TestRunCycleSnapshotFailureMarksDependentRule() {
	affected := disableRule("needs timeout rate", 5, 10)
	unaffected := models.OptimizationRule{
		ID:          primitive.NewObjectID(),
		PublisherID: "pub-1",
		Name:        "needs revenue",
		RuleType:    models.RuleAlertNotification,
		Conditions: []models.Condition{{
			Metric:     models.MetricRevenue,
			Operator:   models.OpLT,
			Value:      100,
			TimeWindow: models.Window24h,
		}},
		Actions: []models.Action{{
			Type:         models.ActionSendAlert,
			Notification: &models.Notification{Channels: []string{"event"}, Message: "revenue drop"},
		}},
		Enabled:  true,
		Priority: 5,
	}

	timeoutKey := models.MetricKey{Metric: models.MetricTimeoutRate, Target: "rubicon", Window: models.Window1h}
	revenueKey := models.MetricKey{Metric: models.MetricRevenue, Window: models.Window24h}

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").
		Return([]models.OptimizationRule{affected, unaffected}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", timeoutKey).
		Return(0.0, false, errors.New("prometheus unavailable"))
	s.provider.On("GetMetric", mock.Anything, "pub-1", revenueKey).Return(40.0, true, nil)
	s.notifier.On("Send", mock.Anything, "pub-1", "needs revenue", mock.Anything).Return(nil)
	s.rules.On("UpdateExecutionMeta", mock.Anything, unaffected.ID, mock.Anything).Return(nil)

	recordedByRule := make(map[string]*models.RuleExecution)
	s.executions.On("Record", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			exec := args.Get(1).(*models.RuleExecution)
			recordedByRule[exec.RuleName] = exec
		}).Return(nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)

	// Правило с недоступной метрикой получает failure-запись,
	// остальные правила цикла продолжают работать
	s.Equal(models.ResultFailure, recordedByRule["needs timeout rate"].Result)
	s.Contains(recordedByRule["needs timeout rate"].ErrorMessage, "snapshot unavailable")
	s.Equal(models.ResultSuccess, recordedByRule["needs revenue"].Result)
	s.Equal(1, summary.ActionsExecuted)
}

func (s *EngineTestSuite) TestRunCycleNoMatchNoRecord() {
	rule := disableRule("quiet rule", 5, 50)

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)
	s.provider.On("GetMetric", mock.Anything, "pub-1", mock.Anything).Return(15.0, true, nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(1, summary.RulesEvaluated)
	s.Equal(0, summary.RulesMatched)

	s.executions.AssertNotCalled(s.T(), "Record", mock.Anything, mock.Anything)
}

func (s *EngineTestSuite) TestRunCycleLockReleasedOnError() {
	s.locker.On("AcquireLock", mock.Anything, "optimizer:cycle:pub-1", mock.Anything, mock.Anything).
		Return(true, nil)
	s.locker.On("ReleaseLock", mock.Anything, "optimizer:cycle:pub-1", mock.Anything).
		Return(nil)
	s.rules.On("ListEnabled", mock.Anything, "pub-1").
		Return(nil, errors.New("mongo down"))

	_, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Error(err)
	s.locker.AssertExpectations(s.T())
}

func (s *EngineTestSuite) TestRunCycleInvalidStoredRuleSkipped() {
	rule := disableRule("broken", 5, 10)
	rule.Priority = 42 // вне диапазона

	s.expectLock("pub-1")
	s.rules.On("ListEnabled", mock.Anything, "pub-1").Return([]models.OptimizationRule{rule}, nil)

	summary, err := s.engine.RunCycle(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Equal(0, summary.RulesEvaluated)
}
