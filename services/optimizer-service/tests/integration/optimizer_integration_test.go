//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/headwall/headwall/pkg/cache"
	"github.com/headwall/headwall/pkg/database"
	"github.com/headwall/headwall/pkg/testutil"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
	"github.com/headwall/headwall/services/optimizer-service/internal/repository"
)

// OptimizerIntegrationSuite tests repositories and the cycle lock
// against real MongoDB and Redis
type OptimizerIntegrationSuite struct {
	suite.Suite
	ctx            context.Context
	cancel         context.CancelFunc
	mongoContainer *testutil.MongoContainer
	redisContainer *testutil.RedisContainer
	db             *mongo.Database
	mongodb        *database.MongoDB
	redisCache     *cache.RedisCache
	ruleRepo       *repository.RuleRepository
	executionRepo  *repository.ExecutionRepository
	configRepo     *repository.ConfigRepository
}

func (s *OptimizerIntegrationSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	var err error

	s.mongoContainer, err = testutil.StartMongoContainer(s.ctx)
	s.Require().NoError(err, "Failed to start MongoDB container")

	s.redisContainer, err = testutil.StartRedisContainer(s.ctx)
	s.Require().NoError(err, "Failed to start Redis container")

	s.mongodb, err = database.NewMongoDB(s.mongoContainer.URI, s.mongoContainer.DatabaseName, 10*time.Second)
	s.Require().NoError(err, "Failed to connect to MongoDB")
	s.db = s.mongodb.GetDatabase()

	s.redisCache, err = cache.NewRedisCache(s.redisContainer.Addr, "", 0)
	s.Require().NoError(err, "Failed to connect to Redis")

	s.ruleRepo = repository.NewRuleRepository(s.db)
	s.executionRepo = repository.NewExecutionRepository(s.db)
	s.configRepo = repository.NewConfigRepository(s.db)
}

func (s *OptimizerIntegrationSuite) TearDownSuite() {
	if s.redisCache != nil {
		s.redisCache.Close()
	}
	if s.mongodb != nil {
		s.mongodb.Close()
	}
	if s.redisContainer != nil {
		s.redisContainer.Close(s.ctx)
	}
	if s.mongoContainer != nil {
		s.mongoContainer.Close(s.ctx)
	}
	s.cancel()
}

func (s *OptimizerIntegrationSuite) SetupTest() {
	for _, name := range []string{"optimization_rules", "rule_executions", "bidder_configs", "timeout_overrides"} {
		s.db.Collection(name).Drop(s.ctx)
	}
}

func TestOptimizerIntegrationSuite(t *testing.T) {
	suite.Run(t, new(OptimizerIntegrationSuite))
}

func (s *OptimizerIntegrationSuite) newRule(name string, priority int) *models.OptimizationRule {
	return &models.OptimizationRule{
		PublisherID: "pub-1",
		Name:        name,
		RuleType:    models.RuleAutoDisableBidder,
		Conditions: []models.Condition{{
			Metric:     models.MetricTimeoutRate,
			Operator:   models.OpGT,
			Value:      15,
			TimeWindow: models.Window1h,
			Target:     "rubicon",
		}},
		Actions: []models.Action{{
			Type:   models.ActionDisableBidder,
			Target: "rubicon",
		}},
		Enabled:   true,
		Priority:  priority,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func (s *OptimizerIntegrationSuite) TestRuleLifecycle() {
	rule := s.newRule("disable slow bidder", 7)
	s.Require().NoError(s.ruleRepo.Create(s.ctx, rule))
	s.False(rule.ID.IsZero())

	loaded, err := s.ruleRepo.GetByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal("disable slow bidder", loaded.Name)
	s.Equal(int64(0), loaded.ExecutionCount)

	// Обновление метаданных выполнения
	executedAt := time.Now().Truncate(time.Millisecond)
	s.Require().NoError(s.ruleRepo.UpdateExecutionMeta(s.ctx, rule.ID, executedAt))

	loaded, err = s.ruleRepo.GetByID(s.ctx, rule.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), loaded.ExecutionCount)
	s.Require().NotNil(loaded.LastExecuted)
	s.WithinDuration(executedAt, *loaded.LastExecuted, time.Second)
}

func (s *OptimizerIntegrationSuite) TestListEnabledOrdering() {
	low := s.newRule("low", 2)
	high := s.newRule("high", 9)
	disabled := s.newRule("disabled", 10)
	disabled.Enabled = false

	for _, r := range []*models.OptimizationRule{low, high, disabled} {
		s.Require().NoError(s.ruleRepo.Create(s.ctx, r))
	}

	rules, err := s.ruleRepo.ListEnabled(s.ctx, "pub-1")
	s.Require().NoError(err)
	s.Require().Len(rules, 2)
	s.Equal("high", rules[0].Name)
	s.Equal("low", rules[1].Name)
}

func (s *OptimizerIntegrationSuite) TestUpdateExecutionMetaMissingRule() {
	err := s.ruleRepo.UpdateExecutionMeta(s.ctx, primitive.NewObjectID(), time.Now())
	s.ErrorIs(err, database.ErrNotFound)
}

func (s *OptimizerIntegrationSuite) TestExecutionRecordAndFilter() {
	ruleID := primitive.NewObjectID()
	otherID := primitive.NewObjectID()

	for i, rid := range []primitive.ObjectID{ruleID, ruleID, otherID} {
		exec := &models.RuleExecution{
			CycleID:     "cycle-1",
			RuleID:      rid,
			RuleName:    "r",
			PublisherID: "pub-1",
			Result:      models.ResultSuccess,
			ExecutedAt:  time.Now().Add(time.Duration(-i) * time.Minute),
		}
		s.Require().NoError(s.executionRepo.Record(s.ctx, exec))
	}

	executions, err := s.executionRepo.List(s.ctx, repository.ExecutionFilter{RuleID: &ruleID})
	s.Require().NoError(err)
	s.Len(executions, 2)

	// Сортировка по executed_at убыванию
	all, err := s.executionRepo.List(s.ctx, repository.ExecutionFilter{PublisherID: "pub-1"})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.True(all[0].ExecutedAt.After(all[1].ExecutedAt))

	count, err := s.executionRepo.Count(s.ctx, repository.ExecutionFilter{RuleID: &ruleID})
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *OptimizerIntegrationSuite) TestBidderConfigMutationIdempotent() {
	_, err := s.db.Collection("bidder_configs").InsertOne(s.ctx, models.BidderConfig{
		PublisherID: "pub-1",
		Code:        "rubicon",
		Enabled:     true,
	})
	s.Require().NoError(err)

	// Повторное применение того же состояния не ошибка
	s.Require().NoError(s.configRepo.SetBidderEnabled(s.ctx, "pub-1", "rubicon", false))
	s.Require().NoError(s.configRepo.SetBidderEnabled(s.ctx, "pub-1", "rubicon", false))

	var cfg models.BidderConfig
	err = s.db.Collection("bidder_configs").
		FindOne(s.ctx, map[string]interface{}{"publisher_id": "pub-1", "code": "rubicon"}).
		Decode(&cfg)
	s.Require().NoError(err)
	s.False(cfg.Enabled)
}

func (s *OptimizerIntegrationSuite) TestBidderConfigUnknownBidder() {
	err := s.configRepo.SetBidderEnabled(s.ctx, "pub-1", "ghost", false)
	s.ErrorIs(err, database.ErrNotFound)
}

func (s *OptimizerIntegrationSuite) TestTimeoutOverrideUpsert() {
	s.Require().NoError(s.configRepo.SetTimeoutOverride(s.ctx, "pub-1", "rubicon", 1500))
	s.Require().NoError(s.configRepo.SetTimeoutOverride(s.ctx, "pub-1", "rubicon", 2000))

	count, err := s.db.Collection("timeout_overrides").
		CountDocuments(s.ctx, map[string]interface{}{"publisher_id": "pub-1", "target": "rubicon"})
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *OptimizerIntegrationSuite) TestCycleLockMutualExclusion() {
	const key = "optimizer:cycle:pub-lock-test"

	acquired, err := s.redisCache.AcquireLock(s.ctx, key, "token-a", time.Minute)
	s.Require().NoError(err)
	s.True(acquired)

	// Второй захват того же ключа отклоняется
	acquired, err = s.redisCache.AcquireLock(s.ctx, key, "token-b", time.Minute)
	s.Require().NoError(err)
	s.False(acquired)

	// Чужой токен не снимает блокировку
	s.Require().NoError(s.redisCache.ReleaseLock(s.ctx, key, "token-b"))
	acquired, err = s.redisCache.AcquireLock(s.ctx, key, "token-c", time.Minute)
	s.Require().NoError(err)
	s.False(acquired)

	// Владелец снимает, ключ снова свободен
	s.Require().NoError(s.redisCache.ReleaseLock(s.ctx, key, "token-a"))
	acquired, err = s.redisCache.AcquireLock(s.ctx, key, "token-c", time.Minute)
	s.Require().NoError(err)
	s.True(acquired)
}
