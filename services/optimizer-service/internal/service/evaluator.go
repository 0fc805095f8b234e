package service

import (
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// Evaluate проверяет условия правила против среза метрик.
// Условия соединены через AND; пустой список условий — «не выполнено»
// (fail closed), отсутствующая метрика — «не выполнено», не ошибка.
// Трасса содержит результат каждого условия для аудит-записи.
func Evaluate(conditions []models.Condition, snapshot models.MetricSnapshot) (bool, []models.ConditionResult) {
	if len(conditions) == 0 {
		return false, nil
	}

	met := true
	trace := make([]models.ConditionResult, 0, len(conditions))

	for _, cond := range conditions {
		key := models.MetricKey{
			Metric: cond.Metric,
			Target: cond.Target,
			Window: cond.TimeWindow,
		}

		observed, ok := snapshot.Lookup(key)
		if !ok {
			// Нет трафика в окне: условие не выполнено
			trace = append(trace, models.ConditionResult{Condition: cond, Matched: false})
			met = false
			continue
		}

		matched := compare(cond.Operator, observed, cond.Value)
		value := observed
		trace = append(trace, models.ConditionResult{
			Condition: cond,
			Observed:  &value,
			Matched:   matched,
		})
		if !matched {
			met = false
		}
	}

	return met, trace
}

// compare сравнивает наблюдаемое значение с порогом.
// Сравнение == и != точное, без эпсилона: источники метрик уже округляют.
func compare(op models.Operator, observed, threshold float64) bool {
	switch op {
	case models.OpGT:
		return observed > threshold
	case models.OpLT:
		return observed < threshold
	case models.OpGTE:
		return observed >= threshold
	case models.OpLTE:
		return observed <= threshold
	case models.OpEQ:
		return observed == threshold
	case models.OpNEQ:
		return observed != threshold
	default:
		return false
	}
}
