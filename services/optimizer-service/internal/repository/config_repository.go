package repository

import (
	"context"
	"time"

	"github.com/headwall/headwall/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConfigRepository мутации конфигурации паблишера.
// Все операции идемпотентны: повторное применение не меняет итоговое состояние.
type ConfigRepository struct {
	bidders     *mongo.Collection
	timeouts    *mongo.Collection
	floors      *mongo.Collection
	allocations *mongo.Collection
}

// NewConfigRepository создает новый репозиторий конфигурации
func NewConfigRepository(db *mongo.Database) *ConfigRepository {
	return &ConfigRepository{
		bidders:     db.Collection("bidder_configs"),
		timeouts:    db.Collection("timeout_overrides"),
		floors:      db.Collection("floor_rules"),
		allocations: db.Collection("traffic_allocations"),
	}
}

// SetBidderEnabled выставляет флаг enabled биддера.
// Биддер должен существовать: несуществующая цель — ошибка мутации, не upsert.
func (r *ConfigRepository) SetBidderEnabled(ctx context.Context, publisherID, code string, enabled bool) error {
	result, err := r.bidders.UpdateOne(
		ctx,
		bson.M{"publisher_id": publisherID, "code": code},
		bson.M{"$set": bson.M{
			"enabled":    enabled,
			"updated_at": time.Now(),
			"updated_by": "optimizer",
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetTimeoutOverride задает таймаут для цели; пустой target = весь паблишер
func (r *ConfigRepository) SetTimeoutOverride(ctx context.Context, publisherID, target string, timeoutMs int64) error {
	_, err := r.timeouts.UpdateOne(
		ctx,
		bson.M{"publisher_id": publisherID, "target": target},
		bson.M{"$set": bson.M{
			"timeout_ms": timeoutMs,
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// UpsertFloorRule создает или обновляет флор для цели
func (r *ConfigRepository) UpsertFloorRule(ctx context.Context, publisherID, target string, floor float64) error {
	_, err := r.floors.UpdateOne(
		ctx,
		bson.M{"publisher_id": publisherID, "target": target},
		bson.M{
			"$set": bson.M{
				"floor":      floor,
				"updated_at": time.Now(),
			},
			"$setOnInsert": bson.M{"currency": "USD"},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// UpsertTrafficAllocation задает вес распределения трафика для цели
func (r *ConfigRepository) UpsertTrafficAllocation(ctx context.Context, publisherID, target string, weightPct float64) error {
	_, err := r.allocations.UpdateOne(
		ctx,
		bson.M{"publisher_id": publisherID, "target": target},
		bson.M{"$set": bson.M{
			"weight_pct": weightPct,
			"updated_at": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}
