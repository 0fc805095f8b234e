package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// EngineConfig настройки движка оптимизации
type EngineConfig struct {
	CheckInterval   time.Duration // период планировщика
	Cooldown        time.Duration // минимальный интервал между срабатываниями правила
	LockTTL         time.Duration // TTL блокировки цикла паблишера
	SnapshotTimeout time.Duration // бюджет на сбор среза метрик
}

// Engine движок оптимизации: оценивает правила паблишеров по расписанию
// и применяет действия к их конфигурации.
type Engine struct {
	rules    RuleStore
	recorder *Recorder
	executor *ActionExecutor
	metrics  MetricProvider
	locker   CycleLocker
	config   EngineConfig
	logger   *logger.Logger
}

// NewEngine создает новый движок оптимизации
func NewEngine(rules RuleStore, recorder *Recorder, executor *ActionExecutor, metrics MetricProvider, locker CycleLocker, config EngineConfig, log *logger.Logger) *Engine {
	return &Engine{
		rules:    rules,
		recorder: recorder,
		executor: executor,
		metrics:  metrics,
		locker:   locker,
		config:   config,
		logger:   log,
	}
}

// CycleSummary итог одного цикла оптимизации
type CycleSummary struct {
	CycleID         string `json:"cycle_id"`
	PublisherID     string `json:"publisher_id"`
	RulesEvaluated  int    `json:"rules_evaluated"`
	RulesMatched    int    `json:"rules_matched"`
	ActionsExecuted int    `json:"actions_executed"`
	ActionsSkipped  int    `json:"actions_skipped"`
	ActionsFailed   int    `json:"actions_failed"`
}

// Run запускает периодическую оценку правил всех паблишеров.
// Блокируется до отмены контекста.
func (e *Engine) Run(ctx context.Context) {
	e.logger.WithField("interval", e.config.CheckInterval.String()).Info("Optimization engine started")

	ticker := time.NewTicker(e.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Optimization engine stopped")
			return
		case <-ticker.C:
			e.runAll(ctx)
		}
	}
}

func (e *Engine) runAll(ctx context.Context) {
	publishers, err := e.rules.DistinctPublishers(ctx)
	if err != nil {
		e.logger.WithError(err).Error("Failed to list publishers with enabled rules")
		return
	}

	var wg sync.WaitGroup
	for _, pub := range publishers {
		wg.Add(1)
		go func(publisherID string) {
			defer wg.Done()
			if _, err := e.RunCycle(ctx, publisherID); err != nil {
				if errors.Is(err, models.ErrCycleInProgress) {
					return
				}
				e.logger.WithError(err).WithField("publisher", publisherID).Error("Optimization cycle failed")
			}
		}(pub)
	}
	wg.Wait()
}

// RunCycle выполняет один цикл оптимизации паблишера: собирает срез метрик,
// оценивает правила, разрешает конфликты и применяет действия. Для одного
// паблишера одновременно идёт не более одного цикла; при занятой блокировке
// возвращает ErrCycleInProgress.
func (e *Engine) RunCycle(ctx context.Context, publisherID string) (*CycleSummary, error) {
	token := uuid.New().String()
	lockKey := "optimizer:cycle:" + publisherID

	acquired, err := e.locker.AcquireLock(ctx, lockKey, token, e.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		lockContention.Inc()
		return nil, fmt.Errorf("%w: publisher %s", models.ErrCycleInProgress, publisherID)
	}
	defer func() {
		if err := e.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			e.logger.WithError(err).WithField("publisher", publisherID).Warn("Failed to release cycle lock")
		}
	}()

	start := time.Now()
	cycleID := uuid.New().String()
	log := e.logger.WithFields(map[string]interface{}{
		"cycle":     cycleID,
		"publisher": publisherID,
	})

	rules, err := e.rules.ListEnabled(ctx, publisherID)
	if err != nil {
		cyclesTotal.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	summary := &CycleSummary{CycleID: cycleID, PublisherID: publisherID}
	now := time.Now()

	// Гейты до оценки: валидность, расписание, cooldown
	eligible := make([]models.OptimizationRule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			rulesSkippedGate.WithLabelValues("invalid").Inc()
			log.WithError(err).WithField("rule", rule.Name).Warn("Skipping invalid rule")
			continue
		}
		if !rule.Schedule.Allows(now) {
			rulesSkippedGate.WithLabelValues("schedule").Inc()
			continue
		}
		if rule.LastExecuted != nil && now.Sub(*rule.LastExecuted) < e.config.Cooldown {
			rulesSkippedGate.WithLabelValues("cooldown").Inc()
			continue
		}
		eligible = append(eligible, rule)
	}

	if len(eligible) == 0 {
		cyclesTotal.WithLabelValues("success").Inc()
		cycleDuration.Observe(time.Since(start).Seconds())
		return summary, nil
	}

	snapshot, failedKeys := e.collectSnapshot(ctx, publisherID, eligible)
	flat := snapshot.Flatten()

	// Оценка условий
	matched := make([]models.OptimizationRule, 0, len(eligible))
	traces := make(map[string][]models.ConditionResult, len(eligible))
	for _, rule := range eligible {
		summary.RulesEvaluated++
		rulesEvaluated.Inc()

		// Правило, зависящее от несобранной метрики, получает failure-запись
		if key, failed := rulesFailedKey(rule, failedKeys); failed {
			e.recorder.Record(ctx, &models.RuleExecution{
				CycleID:         cycleID,
				RuleID:          rule.ID,
				RuleName:        rule.Name,
				RuleType:        rule.RuleType,
				PublisherID:     publisherID,
				Result:          models.ResultFailure,
				ErrorMessage:    fmt.Sprintf("metric snapshot unavailable: %s", key),
				MetricsSnapshot: flat,
				ExecutedAt:      now,
			}, false)
			continue
		}

		met, trace := Evaluate(rule.Conditions, snapshot)
		if !met {
			continue
		}

		summary.RulesMatched++
		rulesMatched.WithLabelValues(string(rule.RuleType)).Inc()
		matched = append(matched, rule)
		traces[rule.ID.Hex()] = trace
	}

	// Разрешение конфликтов и исполнение
	for _, res := range Resolve(matched) {
		exec, executedAny := e.executeResolution(ctx, publisherID, cycleID, res, traces[res.Rule.ID.Hex()], flat, summary)
		e.recorder.Record(ctx, exec, executedAny)
	}

	cyclesTotal.WithLabelValues("success").Inc()
	cycleDuration.Observe(time.Since(start).Seconds())

	log.WithFields(map[string]interface{}{
		"evaluated": summary.RulesEvaluated,
		"matched":   summary.RulesMatched,
		"executed":  summary.ActionsExecuted,
		"skipped":   summary.ActionsSkipped,
		"failed":    summary.ActionsFailed,
	}).Info("Optimization cycle finished")

	return summary, nil
}

// collectSnapshot собирает срез всех метрик, на которые ссылаются правила.
// Ключи собираются конкурентно; ошибка по ключу не валит остальные.
func (e *Engine) collectSnapshot(ctx context.Context, publisherID string, rules []models.OptimizationRule) (models.MetricSnapshot, map[models.MetricKey]error) {
	keys := make(map[models.MetricKey]struct{})
	for _, rule := range rules {
		for _, cond := range rule.Conditions {
			keys[models.MetricKey{Metric: cond.Metric, Target: cond.Target, Window: cond.TimeWindow}] = struct{}{}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.SnapshotTimeout)
	defer cancel()

	snapshot := make(models.MetricSnapshot, len(keys))
	failed := make(map[models.MetricKey]error)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for key := range keys {
		wg.Add(1)
		go func(key models.MetricKey) {
			defer wg.Done()
			value, ok, err := e.metrics.GetMetric(ctx, publisherID, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				snapshotFetchErrors.Inc()
				e.logger.WithError(err).WithFields(map[string]interface{}{
					"publisher": publisherID,
					"metric":    key.String(),
				}).Error("Failed to fetch metric")
				failed[key] = err
				return
			}
			if ok {
				snapshot[key] = value
			}
		}(key)
	}
	wg.Wait()

	return snapshot, failed
}

// rulesFailedKey проверяет, ссылается ли правило на несобранный ключ метрики
func rulesFailedKey(rule models.OptimizationRule, failed map[models.MetricKey]error) (models.MetricKey, bool) {
	if len(failed) == 0 {
		return models.MetricKey{}, false
	}
	for _, cond := range rule.Conditions {
		key := models.MetricKey{Metric: cond.Metric, Target: cond.Target, Window: cond.TimeWindow}
		if _, ok := failed[key]; ok {
			return key, true
		}
	}
	return models.MetricKey{}, false
}

// executeResolution применяет действия одного правила и строит аудит-запись.
// Второе возвращаемое значение — применилась ли хотя бы одна мутация.
func (e *Engine) executeResolution(ctx context.Context, publisherID, cycleID string, res Resolution, trace []models.ConditionResult, flat map[string]float64, summary *CycleSummary) (*models.RuleExecution, bool) {
	outcomes := make([]models.ActionOutcome, 0, len(res.Run)+len(res.Skipped))
	var (
		executedAny bool
		failedAny   bool
		firstErr    string
	)

	for _, action := range res.Run {
		mutation, err := e.executor.Execute(ctx, publisherID, res.Rule.Name, action)
		if err != nil {
			failedAny = true
			summary.ActionsFailed++
			if firstErr == "" {
				firstErr = err.Error()
			}
			outcomes = append(outcomes, models.ActionOutcome{
				Action: action,
				Status: models.ActionFailed,
				Error:  err.Error(),
			})
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"publisher": publisherID,
				"rule":      res.Rule.Name,
				"action":    string(action.Type),
			}).Error("Action failed")
			continue
		}

		executedAny = true
		summary.ActionsExecuted++
		outcomes = append(outcomes, models.ActionOutcome{
			Action:   action,
			Status:   models.ActionExecuted,
			Mutation: mutation,
		})
	}

	for _, action := range res.Skipped {
		summary.ActionsSkipped++
		actionsSkipped.WithLabelValues(string(action.Type)).Inc()
		outcomes = append(outcomes, models.ActionOutcome{
			Action: action,
			Status: models.ActionSkipped,
			Error:  "target claimed by higher priority rule",
		})
	}

	result := models.ResultSkipped
	switch {
	case failedAny:
		result = models.ResultFailure
	case executedAny:
		result = models.ResultSuccess
	}

	return &models.RuleExecution{
		CycleID:         cycleID,
		RuleID:          res.Rule.ID,
		RuleName:        res.Rule.Name,
		RuleType:        res.Rule.RuleType,
		PublisherID:     publisherID,
		ConditionsMet:   trace,
		Actions:         outcomes,
		Result:          result,
		ErrorMessage:    firstErr,
		MetricsSnapshot: flat,
		ExecutedAt:      time.Now(),
	}, executedAny
}
