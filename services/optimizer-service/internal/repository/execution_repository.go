package repository

import (
	"context"

	"github.com/headwall/headwall/services/optimizer-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExecutionRepository репозиторий аудит-записей выполнения правил
type ExecutionRepository struct {
	collection *mongo.Collection
}

// NewExecutionRepository создает новый репозиторий выполнений
func NewExecutionRepository(db *mongo.Database) *ExecutionRepository {
	return &ExecutionRepository{
		collection: db.Collection("rule_executions"),
	}
}

// Record сохраняет аудит-запись; записи append-only
func (r *ExecutionRepository) Record(ctx context.Context, execution *models.RuleExecution) error {
	execution.ID = primitive.NewObjectID()
	_, err := r.collection.InsertOne(ctx, execution)
	return err
}

// ExecutionFilter фильтры выборки истории выполнений
type ExecutionFilter struct {
	RuleID      *primitive.ObjectID
	PublisherID string
	Result      models.ExecutionResult
	Limit       int64
	Offset      int64
}

// List возвращает историю выполнений, новые первыми
func (r *ExecutionRepository) List(ctx context.Context, filter ExecutionFilter) ([]models.RuleExecution, error) {
	query := bson.M{}
	if filter.RuleID != nil {
		query["rule_id"] = *filter.RuleID
	}
	if filter.PublisherID != "" {
		query["publisher_id"] = filter.PublisherID
	}
	if filter.Result != "" {
		query["result"] = filter.Result
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "executed_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var executions []models.RuleExecution
	if err := cursor.All(ctx, &executions); err != nil {
		return nil, err
	}

	return executions, nil
}

// Count возвращает количество записей под фильтром (для пагинации)
func (r *ExecutionRepository) Count(ctx context.Context, filter ExecutionFilter) (int64, error) {
	query := bson.M{}
	if filter.RuleID != nil {
		query["rule_id"] = *filter.RuleID
	}
	if filter.PublisherID != "" {
		query["publisher_id"] = filter.PublisherID
	}
	if filter.Result != "" {
		query["result"] = filter.Result
	}

	return r.collection.CountDocuments(ctx, query)
}
