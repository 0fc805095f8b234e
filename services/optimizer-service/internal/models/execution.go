package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MetricKey ключ метрики в срезе: (метрика, цель, окно)
type MetricKey struct {
	Metric Metric
	Target string
	Window TimeWindow
}

// String сериализует ключ для снапшота в аудит-записи
func (k MetricKey) String() string {
	if k.Target == "" {
		return fmt.Sprintf("%s|%s", k.Metric, k.Window)
	}
	return fmt.Sprintf("%s|%s|%s", k.Metric, k.Target, k.Window)
}

// MetricSnapshot срез значений метрик на момент оценки цикла.
// Отсутствие ключа означает отсутствие трафика в окне, не ноль.
type MetricSnapshot map[MetricKey]float64

// Lookup возвращает значение метрики и признак его наличия
func (s MetricSnapshot) Lookup(key MetricKey) (float64, bool) {
	v, ok := s[key]
	return v, ok
}

// Flatten переводит срез в сериализуемый вид для записи в аудит
func (s MetricSnapshot) Flatten() map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k.String()] = v
	}
	return out
}

// ConditionResult трасса оценки одного условия
type ConditionResult struct {
	Condition Condition `bson:"condition" json:"condition"`
	Observed  *float64  `bson:"observed,omitempty" json:"observed,omitempty"` // nil = метрика отсутствовала
	Matched   bool      `bson:"matched" json:"matched"`
}

// ExecutionResult итог выполнения правила в цикле
type ExecutionResult string

const (
	ResultSuccess ExecutionResult = "success"
	ResultFailure ExecutionResult = "failure"
	ResultSkipped ExecutionResult = "skipped"
)

// ActionStatus статус отдельного действия внутри выполнения
type ActionStatus string

const (
	ActionExecuted ActionStatus = "executed"
	ActionSkipped  ActionStatus = "skipped"
	ActionFailed   ActionStatus = "failed"
)

// ActionOutcome результат одного действия правила
type ActionOutcome struct {
	Action   Action       `bson:"action" json:"action"`
	Status   ActionStatus `bson:"status" json:"status"`
	Mutation string       `bson:"mutation,omitempty" json:"mutation,omitempty"` // описание применённой мутации
	Error    string       `bson:"error,omitempty" json:"error,omitempty"`
}

// RuleExecution неизменяемая аудит-запись: одно правило в одном цикле
type RuleExecution struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CycleID         string             `bson:"cycle_id" json:"cycle_id"`
	RuleID          primitive.ObjectID `bson:"rule_id" json:"rule_id"`
	RuleName        string             `bson:"rule_name" json:"rule_name"`
	RuleType        RuleType           `bson:"rule_type" json:"rule_type"`
	PublisherID     string             `bson:"publisher_id" json:"publisher_id"`
	ConditionsMet   []ConditionResult  `bson:"conditions_met" json:"conditions_met"`
	Actions         []ActionOutcome    `bson:"actions" json:"actions"`
	Result          ExecutionResult    `bson:"result" json:"result"`
	ErrorMessage    string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	MetricsSnapshot map[string]float64 `bson:"metrics_snapshot" json:"metrics_snapshot"`
	ExecutedAt      time.Time          `bson:"executed_at" json:"executed_at"`
}
