// Package metrics собирает метрики Prometheus сервиса.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	// Счетчики
	ingestEvents  *prometheus.CounterVec
	registrations *prometheus.CounterVec
	rewards       *prometheus.CounterVec
	rewardJBC     prometheus.Counter

	// Гистограммы
	rewardLevels  prometheus.Histogram
	httpDurations *prometheus.HistogramVec
}

// New создает метрики в собственном реестре
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		ingestEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_total",
				Help: "Количество обработанных событий идентичностей",
			},
			[]string{"result"}, // created, updated, rejected, failed
		),

		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_registrations_total",
				Help: "Количество зарегистрированных участников программы",
			},
			[]string{"parent"}, // with_parent, without_parent
		),

		rewards: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_rewards_total",
				Help: "Количество начислений вознаграждений",
			},
			[]string{"status"}, // success, failed
		),

		rewardJBC: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "referral_reward_jbc_total",
				Help: "Сумма начисленных JBC",
			},
		),

		rewardLevels: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "referral_reward_level",
				Help:    "Уровень цепочки, на котором начислено вознаграждение",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
			},
		),

		httpDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Время обработки HTTP запросов в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestEvents,
		m.registrations,
		m.rewards,
		m.rewardJBC,
		m.rewardLevels,
		m.httpDurations,
	)

	return m
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordIngest записывает результат обработки события
func (m *Metrics) RecordIngest(result string) {
	m.ingestEvents.WithLabelValues(result).Inc()
}

// RecordRegistration записывает регистрацию участника
func (m *Metrics) RecordRegistration(withParent bool) {
	parent := "without_parent"
	if withParent {
		parent = "with_parent"
	}
	m.registrations.WithLabelValues(parent).Inc()
}

// RecordReward записывает начисление вознаграждения на уровне цепочки
func (m *Metrics) RecordReward(level int, amount float64, err error) {
	if err != nil {
		m.rewards.WithLabelValues("failed").Inc()
		m.logger.Debug("начисление не выполнено", zap.Int("level", level), zap.Error(err))
		return
	}

	m.rewards.WithLabelValues("success").Inc()
	m.rewardJBC.Add(amount)
	m.rewardLevels.Observe(float64(level))
}

// ObserveHTTP записывает длительность HTTP запроса
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpDurations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
