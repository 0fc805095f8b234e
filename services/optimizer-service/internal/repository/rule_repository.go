package repository

import (
	"context"
	"errors"
	"time"

	"github.com/headwall/headwall/pkg/database"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RuleRepository репозиторий правил оптимизации
type RuleRepository struct {
	collection *mongo.Collection
}

// NewRuleRepository создает новый репозиторий правил
func NewRuleRepository(db *mongo.Database) *RuleRepository {
	return &RuleRepository{
		collection: db.Collection("optimization_rules"),
	}
}

// ListEnabled возвращает включенные правила паблишера,
// отсортированные по приоритету (убыв.), затем по id (возр.)
func (r *RuleRepository) ListEnabled(ctx context.Context, publisherID string) ([]models.OptimizationRule, error) {
	filter := bson.M{"publisher_id": publisherID, "enabled": true}

	opts := options.Find().SetSort(bson.D{
		{Key: "priority", Value: -1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []models.OptimizationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}

	return rules, nil
}

// ListByPublisher возвращает все правила паблишера
func (r *RuleRepository) ListByPublisher(ctx context.Context, publisherID string) ([]models.OptimizationRule, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"publisher_id": publisherID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []models.OptimizationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}

	return rules, nil
}

// GetByID получает правило по ID
func (r *RuleRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.OptimizationRule, error) {
	var rule models.OptimizationRule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// GetByName получает правило по имени (для сидинга дефолтных правил)
func (r *RuleRepository) GetByName(ctx context.Context, publisherID, name string) (*models.OptimizationRule, error) {
	var rule models.OptimizationRule
	err := r.collection.FindOne(ctx, bson.M{"publisher_id": publisherID, "name": name}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// Create создает правило (используется сидингом; авторство правил у CRUD-слоя)
func (r *RuleRepository) Create(ctx context.Context, rule *models.OptimizationRule) error {
	rule.ID = primitive.NewObjectID()
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, rule)
	return err
}

// UpdateExecutionMeta обновляет last_executed и инкрементирует execution_count;
// единственные поля правила, которые пишет движок
func (r *RuleRepository) UpdateExecutionMeta(ctx context.Context, id primitive.ObjectID, executedAt time.Time) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{
			"$set": bson.M{"last_executed": executedAt},
			"$inc": bson.M{"execution_count": 1},
		},
	)
	if err != nil {
		return err
	}
	// Правило могли удалить посреди цикла; это не ошибка движка
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DistinctPublishers возвращает паблишеров с включенными правилами
func (r *RuleRepository) DistinctPublishers(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "publisher_id", bson.M{"enabled": true})
	if err != nil {
		return nil, err
	}

	publishers := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			publishers = append(publishers, s)
		}
	}

	return publishers, nil
}
