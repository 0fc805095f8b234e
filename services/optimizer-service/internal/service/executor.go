package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// ActionExecutor применяет действия правил к конфигурации паблишера.
// Каждый тип действия — ровно одна идемпотентная мутация.
type ActionExecutor struct {
	configs  ConfigStore
	notifier Notifier
	logger   *logger.Logger
}

// NewActionExecutor создает новый исполнитель действий
func NewActionExecutor(configs ConfigStore, notifier Notifier, log *logger.Logger) *ActionExecutor {
	return &ActionExecutor{
		configs:  configs,
		notifier: notifier,
		logger:   log,
	}
}

// Execute применяет одно действие. Возвращает описание применённой мутации
// либо MutationError с приложенным действием; ошибка одного действия никогда
// не прерывает цикл для остальных правил.
func (e *ActionExecutor) Execute(ctx context.Context, publisherID, ruleName string, action models.Action) (string, error) {
	if err := action.Validate(); err != nil {
		return "", models.NewMutationError(action, err)
	}

	start := time.Now()
	mutation, err := e.apply(ctx, publisherID, ruleName, action)
	actionDuration.WithLabelValues(string(action.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		actionsFailed.WithLabelValues(string(action.Type)).Inc()
		return "", models.NewMutationError(action, err)
	}

	actionsExecuted.WithLabelValues(string(action.Type)).Inc()
	return mutation, nil
}

func (e *ActionExecutor) apply(ctx context.Context, publisherID, ruleName string, action models.Action) (string, error) {
	switch action.Type {
	case models.ActionDisableBidder:
		if err := e.configs.SetBidderEnabled(ctx, publisherID, action.Target, false); err != nil {
			return "", err
		}
		return fmt.Sprintf("bidder %s disabled", action.Target), nil

	case models.ActionEnableBidder:
		if err := e.configs.SetBidderEnabled(ctx, publisherID, action.Target, true); err != nil {
			return "", err
		}
		return fmt.Sprintf("bidder %s enabled", action.Target), nil

	case models.ActionAdjustTimeout:
		ms := *action.Value
		if ms <= 0 {
			return "", fmt.Errorf("%w: timeout must be positive, got %v", models.ErrValidation, ms)
		}
		if err := e.configs.SetTimeoutOverride(ctx, publisherID, action.Target, int64(ms)); err != nil {
			return "", err
		}
		if action.Target == "" {
			return fmt.Sprintf("publisher timeout set to %dms", int64(ms)), nil
		}
		return fmt.Sprintf("timeout for %s set to %dms", action.Target, int64(ms)), nil

	case models.ActionAdjustFloor:
		floor := *action.Value
		if floor < 0 {
			return "", fmt.Errorf("%w: floor must be non-negative, got %v", models.ErrValidation, floor)
		}
		if err := e.configs.UpsertFloorRule(ctx, publisherID, action.Target, floor); err != nil {
			return "", err
		}
		return fmt.Sprintf("floor for %s set to %.4f", action.Target, floor), nil

	case models.ActionAdjustTraffic:
		// Вес трафика в процентах, строго [0,100]
		pct := *action.Value
		if pct < 0 || pct > 100 || math.IsNaN(pct) {
			return "", fmt.Errorf("%w: traffic weight must be within [0,100], got %v", models.ErrValidation, pct)
		}
		if err := e.configs.UpsertTrafficAllocation(ctx, publisherID, action.Target, pct); err != nil {
			return "", err
		}
		return fmt.Sprintf("traffic weight for %s set to %.2f%%", action.Target, pct), nil

	case models.ActionSendAlert:
		// Алерты best effort: сбой доставки логируется, но не валит правило
		if err := e.notifier.Send(ctx, publisherID, ruleName, *action.Notification); err != nil {
			notificationFailures.Inc()
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"publisher": publisherID,
				"rule":      ruleName,
			}).Warn("Alert delivery failed")
		}
		return fmt.Sprintf("alert dispatched to %v", action.Notification.Channels), nil

	default:
		return "", fmt.Errorf("%w: unknown action type %q", models.ErrValidation, action.Type)
	}
}
