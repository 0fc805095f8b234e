package service

import (
	"fmt"
	"sort"

	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// Resolution решение резолвера по одному сработавшему правилу
type Resolution struct {
	Rule    models.OptimizationRule
	Run     []models.Action
	Skipped []models.Action
}

// Resolve упорядочивает сработавшие правила и разрешает конфликты действий.
// Правила сортируются по приоритету (убыв.), при равенстве — по id (возр.),
// порядок детерминированный. Ключ цели действия — (категория, цель): любые
// два мутирующих действия с одним ключом конфликтуют независимо от типа
// (disable и enable одного биддера — один ключ). Первый захват выигрывает,
// действия проигравших правил помечаются skipped. send_alert не мутирует
// конфигурацию и не конфликтует ни с чем.
func Resolve(matched []models.OptimizationRule) []Resolution {
	rules := make([]models.OptimizationRule, len(matched))
	copy(rules, matched)

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID.Hex() < rules[j].ID.Hex()
	})

	claimed := make(map[string]struct{})
	resolutions := make([]Resolution, 0, len(rules))

	for _, rule := range rules {
		res := Resolution{Rule: rule}

		for _, action := range rule.Actions {
			key, collidable := targetKey(action)
			if !collidable {
				res.Run = append(res.Run, action)
				continue
			}

			if _, taken := claimed[key]; taken {
				res.Skipped = append(res.Skipped, action)
				continue
			}

			claimed[key] = struct{}{}
			res.Run = append(res.Run, action)
		}

		resolutions = append(resolutions, res)
	}

	return resolutions
}

// targetKey возвращает ключ цели действия и признак участия в конфликтах
func targetKey(a models.Action) (string, bool) {
	var category string

	switch a.Type {
	case models.ActionDisableBidder, models.ActionEnableBidder:
		category = "bidder_state"
	case models.ActionAdjustTimeout:
		category = "timeout"
	case models.ActionAdjustFloor:
		category = "floor"
	case models.ActionAdjustTraffic:
		category = "traffic"
	case models.ActionSendAlert:
		return "", false
	default:
		return "", false
	}

	return fmt.Sprintf("%s|%s", category, a.Target), true
}
