package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BidderConfig конфигурация биддера паблишера (владелец — CRUD-слой,
// движок переключает только enabled)
type BidderConfig struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PublisherID string             `bson:"publisher_id" json:"publisher_id"`
	Code        string             `bson:"code" json:"code"`
	Enabled     bool               `bson:"enabled" json:"enabled"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	UpdatedBy   string             `bson:"updated_by,omitempty" json:"updated_by,omitempty"`
}

// TimeoutOverride переопределение таймаута аукциона;
// пустой target = значение для всего паблишера
type TimeoutOverride struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PublisherID string             `bson:"publisher_id" json:"publisher_id"`
	Target      string             `bson:"target,omitempty" json:"target,omitempty"`
	TimeoutMs   int64              `bson:"timeout_ms" json:"timeout_ms"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// FloorRule ценовой флор для цели (media type, биддер или ad unit)
type FloorRule struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PublisherID string             `bson:"publisher_id" json:"publisher_id"`
	Target      string             `bson:"target" json:"target"`
	Floor       float64            `bson:"floor" json:"floor"`
	Currency    string             `bson:"currency" json:"currency"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// TrafficAllocation вес распределения трафика в процентах [0,100]
type TrafficAllocation struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PublisherID string             `bson:"publisher_id" json:"publisher_id"`
	Target      string             `bson:"target" json:"target"`
	WeightPct   float64            `bson:"weight_pct" json:"weight_pct"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// AlertEvent событие алерта для шины платформы
type AlertEvent struct {
	Type      string                 `json:"type"`
	Publisher string                 `json:"publisher"`
	RuleName  string                 `json:"rule_name"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
