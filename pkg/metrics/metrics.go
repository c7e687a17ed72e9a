package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Number of queries slower than the configured threshold",
		},
		[]string{"command"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"command"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 任务生成计数
	TaskGenerationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_generation_count",
			Help: "Total number of tasks generated",
		},
		[]string{"source"}, // source: phase, custom
	)

	// 优先级被重新计算并改写的次数
	PriorityChangeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_priority_change_count",
			Help: "Total number of stored task priorities overwritten by the resolver",
		},
		[]string{"to"},
	)

	// OFX 解析出的条目数
	OFXEntriesParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ofx_entries_parsed_count",
			Help: "Total number of transactions extracted from OFX uploads",
		},
	)

	// OFX 中无法解析而被丢弃的交易块
	OFXBlocksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ofx_blocks_skipped_count",
			Help: "Total number of OFX transaction blocks dropped as unreadable",
		},
	)

	// 缓存命中/未命中
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_lookup_count",
			Help: "Cache lookups by key kind and result",
		},
		[]string{"kind", "result"}, // result: hit, miss, error
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(command string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(command).Inc()
	DBQueryDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(command string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// AddTaskGeneration 增加任务生成计数
func AddTaskGeneration(source string, n int) {
	TaskGenerationCount.WithLabelValues(source).Add(float64(n))
}

// IncrementPriorityChange 记录优先级改写
func IncrementPriorityChange(to string) {
	PriorityChangeCount.WithLabelValues(to).Inc()
}

// AddOFXEntries 记录 OFX 解析条目数
func AddOFXEntries(n int) {
	OFXEntriesParsed.Add(float64(n))
}

// AddOFXSkipped 记录被丢弃的 OFX 交易块
func AddOFXSkipped(n int) {
	OFXBlocksSkipped.Add(float64(n))
}

// RecordCacheLookup 记录缓存查询结果
func RecordCacheLookup(kind, result string) {
	CacheLookups.WithLabelValues(kind, result).Inc()
}
