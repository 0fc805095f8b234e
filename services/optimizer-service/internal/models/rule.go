package models

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Metric метрика производительности паблишера
type Metric string

const (
	MetricTimeoutRate  Metric = "timeout_rate"
	MetricResponseRate Metric = "response_rate"
	MetricAvgLatency   Metric = "avg_latency"
	MetricRevenue      Metric = "revenue"
	MetricWinRate      Metric = "win_rate"
	MetricFillRate     Metric = "fill_rate"
)

// Operator оператор сравнения в условии
type Operator string

const (
	OpGT  Operator = ">"
	OpLT  Operator = "<"
	OpGTE Operator = ">="
	OpLTE Operator = "<="
	OpEQ  Operator = "=="
	OpNEQ Operator = "!="
)

// TimeWindow окно агрегации метрики
type TimeWindow string

const (
	Window5m  TimeWindow = "5m"
	Window15m TimeWindow = "15m"
	Window30m TimeWindow = "30m"
	Window1h  TimeWindow = "1h"
	Window6h  TimeWindow = "6h"
	Window24h TimeWindow = "24h"
	Window7d  TimeWindow = "7d"
)

var windowDurations = map[TimeWindow]time.Duration{
	Window5m:  5 * time.Minute,
	Window15m: 15 * time.Minute,
	Window30m: 30 * time.Minute,
	Window1h:  time.Hour,
	Window6h:  6 * time.Hour,
	Window24h: 24 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
}

// Duration возвращает длительность окна; ошибка для неизвестного окна
func (w TimeWindow) Duration() (time.Duration, error) {
	d, ok := windowDurations[w]
	if !ok {
		return 0, fmt.Errorf("%w: unknown time window %q", ErrValidation, w)
	}
	return d, nil
}

// ActionType тип действия правила
type ActionType string

const (
	ActionDisableBidder ActionType = "disable_bidder"
	ActionEnableBidder  ActionType = "enable_bidder"
	ActionAdjustTimeout ActionType = "adjust_timeout"
	ActionAdjustFloor   ActionType = "adjust_floor"
	ActionAdjustTraffic ActionType = "adjust_traffic"
	ActionSendAlert     ActionType = "send_alert"
)

// RuleType категория намерения правила
type RuleType string

const (
	RuleAutoDisableBidder RuleType = "auto_disable_bidder"
	RuleAutoEnableBidder  RuleType = "auto_enable_bidder"
	RuleAutoAdjustTimeout RuleType = "auto_adjust_timeout"
	RuleAutoAdjustFloor   RuleType = "auto_adjust_floor"
	RuleAlertNotification RuleType = "alert_notification"
	RuleTrafficAllocation RuleType = "traffic_allocation"
)

// Condition одно условие правила: метрика против порога в окне
type Condition struct {
	Metric     Metric     `bson:"metric" json:"metric"`
	Operator   Operator   `bson:"operator" json:"operator"`
	Value      float64    `bson:"value" json:"value"`
	TimeWindow TimeWindow `bson:"time_window" json:"time_window"`
	Target     string     `bson:"target,omitempty" json:"target,omitempty"` // код биддера или ad unit, пусто = весь паблишер
}

// Validate проверяет условие при загрузке правила
func (c Condition) Validate() error {
	switch c.Metric {
	case MetricTimeoutRate, MetricResponseRate, MetricAvgLatency, MetricRevenue, MetricWinRate, MetricFillRate:
	default:
		return fmt.Errorf("%w: unknown metric %q", ErrValidation, c.Metric)
	}

	switch c.Operator {
	case OpGT, OpLT, OpGTE, OpLTE, OpEQ, OpNEQ:
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrValidation, c.Operator)
	}

	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("%w: condition value must be finite", ErrValidation)
	}

	if _, err := c.TimeWindow.Duration(); err != nil {
		return err
	}

	return nil
}

// Notification каналы и сообщение для send_alert
type Notification struct {
	Channels []string `bson:"channels" json:"channels"` // telegram, webhook, event
	Message  string   `bson:"message" json:"message"`
}

// Action одно действие правила
type Action struct {
	Type         ActionType    `bson:"type" json:"type"`
	Target       string        `bson:"target,omitempty" json:"target,omitempty"`
	Value        *float64      `bson:"value,omitempty" json:"value,omitempty"`
	Notification *Notification `bson:"notification,omitempty" json:"notification,omitempty"`
}

// Validate проверяет обязательные поля для типа действия
func (a Action) Validate() error {
	switch a.Type {
	case ActionDisableBidder, ActionEnableBidder:
		if a.Target == "" {
			return fmt.Errorf("%w: %s requires a target", ErrValidation, a.Type)
		}
	case ActionAdjustTimeout, ActionAdjustFloor, ActionAdjustTraffic:
		if a.Value == nil {
			return fmt.Errorf("%w: %s requires a numeric value", ErrValidation, a.Type)
		}
		if math.IsNaN(*a.Value) || math.IsInf(*a.Value, 0) {
			return fmt.Errorf("%w: %s value must be finite", ErrValidation, a.Type)
		}
	case ActionSendAlert:
		if a.Notification == nil || len(a.Notification.Channels) == 0 {
			return fmt.Errorf("%w: send_alert requires notification channels", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, a.Type)
	}
	return nil
}

// Schedule необязательное ограничение времени срабатывания правила
type Schedule struct {
	DaysOfWeek []int      `bson:"days_of_week,omitempty" json:"days_of_week,omitempty"` // 0-6, воскресенье = 0
	HoursOfDay []int      `bson:"hours_of_day,omitempty" json:"hours_of_day,omitempty"` // 0-23
	StartDate  *time.Time `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate    *time.Time `bson:"end_date,omitempty" json:"end_date,omitempty"`
}

// Allows отвечает, разрешён ли запуск в момент t; отсутствие поля = без ограничений
func (s *Schedule) Allows(t time.Time) bool {
	if s == nil {
		return true
	}

	if len(s.DaysOfWeek) > 0 {
		day := int(t.Weekday())
		if !containsInt(s.DaysOfWeek, day) {
			return false
		}
	}

	if len(s.HoursOfDay) > 0 {
		if !containsInt(s.HoursOfDay, t.Hour()) {
			return false
		}
	}

	if s.StartDate != nil && t.Before(*s.StartDate) {
		return false
	}
	if s.EndDate != nil && t.After(endOfDay(*s.EndDate)) {
		return false
	}

	return true
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// endOfDay: endDate включительно
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// OptimizationRule правило оптимизации паблишера
type OptimizationRule struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PublisherID    string             `bson:"publisher_id" json:"publisher_id"`
	Name           string             `bson:"name" json:"name"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty"`
	RuleType       RuleType           `bson:"rule_type" json:"rule_type"`
	Conditions     []Condition        `bson:"conditions" json:"conditions"`
	Actions        []Action           `bson:"actions" json:"actions"`
	Schedule       *Schedule          `bson:"schedule,omitempty" json:"schedule,omitempty"`
	Enabled        bool               `bson:"enabled" json:"enabled"`
	Priority       int                `bson:"priority" json:"priority"` // 1-10, выше = раньше
	LastExecuted   *time.Time         `bson:"last_executed,omitempty" json:"last_executed,omitempty"`
	ExecutionCount int64              `bson:"execution_count" json:"execution_count"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// Validate проверяет правило перед оценкой; движок пропускает невалидные правила
func (r *OptimizationRule) Validate() error {
	if r.PublisherID == "" {
		return fmt.Errorf("%w: rule %s has no publisher", ErrValidation, r.Name)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", ErrValidation, r.Name)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: rule %s has no actions", ErrValidation, r.Name)
	}
	if r.Priority < 1 || r.Priority > 10 {
		return fmt.Errorf("%w: rule %s priority must be 1-10", ErrValidation, r.Name)
	}

	for _, c := range r.Conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, a := range r.Actions {
		if err := a.Validate(); err != nil {
			return err
		}
	}

	return nil
}
