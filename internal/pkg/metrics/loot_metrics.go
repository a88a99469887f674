// File: internal/pkg/metrics/loot_metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tsu-loot/internal/pkg/xerrors"
)

// LootMetrics 掉落容器业务指标
type LootMetrics struct {
	// 当前存活的掉落容器数
	ContainersLive *prometheus.GaugeVec

	// 生成的掉落容器数
	ContainersSpawned *prometheus.CounterVec

	// 销毁的掉落容器数（按原因：timeout/admin/claimed/sweep/shutdown）
	ContainersDespawned *prometheus.CounterVec

	// 容器存活时长
	ContainerLifetime *prometheus.HistogramVec

	// 未生成容器的死亡事件（按原因）
	DeathsSkipped *prometheus.CounterVec

	// 掉落表抽取次数（按表类型 shared/unique 与结果 hit/empty）
	LootRolls *prometheus.CounterVec

	// 抽出的物品数
	ItemsRolled *prometheus.CounterVec

	// 附近掉落查询次数
	NearbyQueries *prometheus.CounterVec

	// 领域错误（按错误码）
	Errors *prometheus.CounterVec
}

// DefaultLootMetrics 默认实例
var DefaultLootMetrics *LootMetrics

// LifetimeBuckets 容器存活时长 buckets，默认超时为 60 秒
// 单位：秒
var LifetimeBuckets = []float64{1, 5, 15, 30, 45, 60, 90, 120}

func init() {
	DefaultLootMetrics = NewLootMetrics("tsu")
}

// NewLootMetrics 创建掉落指标收集器
func NewLootMetrics(namespace string) *LootMetrics {
	return NewLootMetricsWithRegistry(namespace, GetRegisterer())
}

// NewLootMetricsWithRegistry 创建掉落指标收集器（使用自定义注册表）
func NewLootMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *LootMetrics {
	factory := promauto.With(registerer)

	return &LootMetrics{
		ContainersLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "containers_live",
				Help:      "Current number of live loot containers",
			},
			[]string{"service"},
		),

		ContainersSpawned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "containers_spawned_total",
				Help:      "Total number of spawned loot containers",
			},
			[]string{"service"},
		),

		ContainersDespawned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "containers_despawned_total",
				Help:      "Total number of despawned loot containers by reason",
			},
			[]string{"reason", "service"},
		),

		ContainerLifetime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "container_lifetime_seconds",
				Help:      "Lifetime of loot containers in seconds by despawn reason",
				Buckets:   LifetimeBuckets,
			},
			[]string{"reason", "service"},
		),

		DeathsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "deaths_skipped_total",
				Help:      "Total number of death events that produced no container, by reason",
			},
			[]string{"reason", "service"},
		),

		LootRolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "rolls_total",
				Help:      "Total number of loot table rolls by table kind and result",
			},
			[]string{"kind", "result", "service"},
		),

		ItemsRolled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "items_rolled_total",
				Help:      "Total number of rolled loot items by table kind",
			},
			[]string{"kind", "service"},
		),

		NearbyQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "nearby_queries_total",
				Help:      "Total number of nearby loot queries",
			},
			[]string{"service"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "loot",
				Name:      "errors_total",
				Help:      "Total number of loot domain errors by code",
			},
			[]string{"code", "category", "level", "service"},
		),
	}
}

// RecordSpawned 记录容器生成
func (m *LootMetrics) RecordSpawned(service string) {
	service = normalizeServiceName(service)
	m.ContainersSpawned.WithLabelValues(service).Inc()
	m.ContainersLive.WithLabelValues(service).Inc()
}

// RecordDespawned 记录容器销毁
func (m *LootMetrics) RecordDespawned(reason string, lifetime time.Duration, service string) {
	service = normalizeServiceName(service)
	m.ContainersDespawned.WithLabelValues(reason, service).Inc()
	m.ContainerLifetime.WithLabelValues(reason, service).Observe(lifetime.Seconds())
	m.ContainersLive.WithLabelValues(service).Dec()
}

// SetLive 用注册表中的实际数量校正存活容器数
func (m *LootMetrics) SetLive(count int, service string) {
	service = normalizeServiceName(service)
	m.ContainersLive.WithLabelValues(service).Set(float64(count))
}

// RecordSkipped 记录未生成容器的死亡事件
//
// 参数:
//   - reason: "no_tables", "no_contributors", "no_eligible_owner", "invalid_contributor",
//     "empty_roll", "table_error", "id_exhausted", "activate_failed"
func (m *LootMetrics) RecordSkipped(reason, service string) {
	service = normalizeServiceName(service)
	m.DeathsSkipped.WithLabelValues(reason, service).Inc()
}

// RecordRoll 记录一次掉落表抽取
func (m *LootMetrics) RecordRoll(kind string, items int, service string) {
	service = normalizeServiceName(service)
	result := "hit"
	if items == 0 {
		result = "empty"
	}
	m.LootRolls.WithLabelValues(kind, result, service).Inc()
	if items > 0 {
		m.ItemsRolled.WithLabelValues(kind, service).Add(float64(items))
	}
}

// RecordNearbyQuery 记录附近掉落查询
func (m *LootMetrics) RecordNearbyQuery(service string) {
	service = normalizeServiceName(service)
	m.NearbyQueries.WithLabelValues(service).Inc()
}

// RecordAppError 记录领域错误
func (m *LootMetrics) RecordAppError(appErr *xerrors.AppError, service string) {
	if appErr == nil {
		return
	}
	service = normalizeServiceName(service)
	m.Errors.WithLabelValues(
		strconv.Itoa(int(appErr.Code)),
		appErr.Category,
		appErr.Level.String(),
		service,
	).Inc()
}
