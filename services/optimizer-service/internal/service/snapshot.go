package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"gonum.org/v1/gonum/stat"

	"github.com/headwall/headwall/pkg/logger"
	"github.com/headwall/headwall/services/optimizer-service/internal/models"
)

// PrometheusProvider источник оконных метрик из аналитического Prometheus.
// Аналитика пишет сырые счетчики аукционов; провайдер собирает из них
// оконные агрегаты запросами вида increase(...[окно]).
type PrometheusProvider struct {
	api          v1.API
	queryTimeout time.Duration
	logger       *logger.Logger
}

// NewPrometheusProvider создает новый провайдер метрик
func NewPrometheusProvider(url string, queryTimeout time.Duration, log *logger.Logger) (*PrometheusProvider, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusProvider{
		api:          v1.NewAPI(client),
		queryTimeout: queryTimeout,
		logger:       log,
	}, nil
}

// GetMetric возвращает значение метрики для ключа (метрика, цель, окно).
// false без ошибки = в окне нет данных.
func (p *PrometheusProvider) GetMetric(ctx context.Context, publisherID string, key models.MetricKey) (float64, bool, error) {
	query, err := buildQuery(publisherID, key)
	if err != nil {
		return 0, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.queryTimeout)
	defer cancel()

	start := time.Now()
	result, warnings, err := p.api.Query(ctx, query, time.Now())
	snapshotFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, false, fmt.Errorf("%w: prometheus query for %s", models.ErrDependencyTimeout, key)
		}
		return 0, false, fmt.Errorf("prometheus query failed: %w", err)
	}

	if len(warnings) > 0 {
		p.logger.WithField("warnings", warnings).Debug("Prometheus query warnings")
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		return 0, false, nil
	}

	// Запрос может вернуть серию на каждый инстанс аукционного кластера;
	// итог — среднее по сериям
	values := make([]float64, 0, len(vector))
	for _, sample := range vector {
		v := float64(sample.Value)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, false, nil
	}

	return stat.Mean(values, nil), true, nil
}

// buildQuery собирает PromQL для метрики; селектор цели опционален
func buildQuery(publisherID string, key models.MetricKey) (string, error) {
	if _, err := key.Window.Duration(); err != nil {
		return "", err
	}

	selector := fmt.Sprintf("publisher=%q", publisherID)
	if key.Target != "" {
		selector = fmt.Sprintf("%s,target=%q", selector, key.Target)
	}
	w := string(key.Window)

	switch key.Metric {
	case models.MetricTimeoutRate:
		return fmt.Sprintf(
			`100 * increase(hb_auction_timeouts_total{%s}[%s]) / increase(hb_auction_requests_total{%s}[%s])`,
			selector, w, selector, w), nil
	case models.MetricResponseRate:
		return fmt.Sprintf(
			`100 * increase(hb_bid_responses_total{%s}[%s]) / increase(hb_bid_requests_total{%s}[%s])`,
			selector, w, selector, w), nil
	case models.MetricAvgLatency:
		return fmt.Sprintf(
			`increase(hb_bid_latency_ms_sum{%s}[%s]) / increase(hb_bid_latency_ms_count{%s}[%s])`,
			selector, w, selector, w), nil
	case models.MetricRevenue:
		return fmt.Sprintf(`increase(hb_revenue_usd_total{%s}[%s])`, selector, w), nil
	case models.MetricWinRate:
		return fmt.Sprintf(
			`100 * increase(hb_auction_wins_total{%s}[%s]) / increase(hb_bid_responses_total{%s}[%s])`,
			selector, w, selector, w), nil
	case models.MetricFillRate:
		return fmt.Sprintf(
			`100 * increase(hb_impressions_filled_total{%s}[%s]) / increase(hb_ad_requests_total{%s}[%s])`,
			selector, w, selector, w), nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", models.ErrValidation, key.Metric)
	}
}
