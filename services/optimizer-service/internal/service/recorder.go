package service

import (
	"context"
	"errors"
	"time"

	"github.com/headwall/headwall/pkg/database"
	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// Recorder пишет аудит-записи и метаданные выполнения правил.
// Одна запись на каждое сработавшее правило цикла, включая skipped.
type Recorder struct {
	executions ExecutionStore
	rules      RuleStore
	logger     *logger.Logger
}

// NewRecorder создает новый recorder
func NewRecorder(executions ExecutionStore, rules RuleStore, log *logger.Logger) *Recorder {
	return &Recorder{
		executions: executions,
		rules:      rules,
		logger:     log,
	}
}

// Record сохраняет аудит-запись; при executed=true дополнительно
// обновляет last_executed/execution_count правила. Метаданные правила
// двигаются только когда хотя бы одно действие реально применилось.
func (r *Recorder) Record(ctx context.Context, execution *models.RuleExecution, executed bool) {
	if err := r.executions.Record(ctx, execution); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"rule":  execution.RuleName,
			"cycle": execution.CycleID,
		}).Error("Failed to record rule execution")
	}

	executionsRecorded.WithLabelValues(string(execution.Result)).Inc()

	if !executed {
		return
	}

	if err := r.rules.UpdateExecutionMeta(ctx, execution.RuleID, time.Now()); err != nil {
		// Правило могли удалить между оценкой и записью
		if errors.Is(err, database.ErrNotFound) {
			r.logger.WithField("rule", execution.RuleName).Warn("Rule disappeared before meta update")
			return
		}
		r.logger.WithError(err).WithField("rule", execution.RuleName).Error("Failed to update rule execution meta")
	}
}
