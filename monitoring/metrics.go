package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType 指标类型
type MetricType string

const (
	MetricTypeCounter MetricType = "counter"
	MetricTypeGauge   MetricType = "gauge"
	MetricTypeSummary MetricType = "summary"
)

// 服务指标名称
const (
	MetricUploads            = "downtime_uploads_total"
	MetricTrainings          = "downtime_trainings_total"
	MetricPredictions        = "downtime_predictions_total"
	MetricPredictionCacheHit = "downtime_prediction_cache_hits_total"
	MetricModelAccuracy      = "downtime_model_accuracy"
	MetricTrainingSeconds    = "downtime_training_seconds"
	MetricPredictionSeconds  = "downtime_prediction_seconds"
)

var metricHelp = map[string]string{
	MetricUploads:            "Dataset uploads by outcome",
	MetricTrainings:          "Training runs by outcome",
	MetricPredictions:        "Predictions by outcome",
	MetricPredictionCacheHit: "Predictions answered from the cache",
	MetricModelAccuracy:      "Held-out accuracy of the published model",
	MetricTrainingSeconds:    "Training duration in seconds",
	MetricPredictionSeconds:  "Prediction duration in seconds",
}

// Metric 单个时间序列
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Count     int64             `json:"count,omitempty"`
	Max       float64           `json:"max,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MetricsCollector 指标收集器
type MetricsCollector struct {
	metrics     map[string]*Metric
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string]*Metric),
		startTime: time.Now(),
	}
}

// IncrCounter 增加计数器
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.update(name, MetricTypeCounter, labels, func(m *Metric) {
		m.Value += value
	})
}

// SetGauge 设置仪表
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.update(name, MetricTypeGauge, labels, func(m *Metric) {
		m.Value = value
	})
}

// ObserveDuration 记录耗时，Value为总秒数
func (mc *MetricsCollector) ObserveDuration(name string, d time.Duration, labels map[string]string) {
	seconds := d.Seconds()
	mc.update(name, MetricTypeSummary, labels, func(m *Metric) {
		m.Value += seconds
		m.Count++
		if seconds > m.Max {
			m.Max = seconds
		}
	})
}

func (mc *MetricsCollector) update(name string, metricType MetricType, labels map[string]string, apply func(*Metric)) {
	key := seriesKey(name, labels)

	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	m, ok := mc.metrics[key]
	if !ok {
		m = &Metric{Name: name, Type: metricType, Labels: copyLabels(labels)}
		mc.metrics[key] = m
	}
	apply(m)
	m.Timestamp = time.Now()
}

// GetMetric 获取指定名称的所有序列
func (mc *MetricsCollector) GetMetric(name string) ([]Metric, error) {
	var result []Metric
	for _, m := range mc.GetAllMetrics() {
		if m.Name == name {
			result = append(result, m)
		}
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("metric %s not found", name)
	}
	return result, nil
}

// GetAllMetrics 获取所有指标副本，按序列排序
func (mc *MetricsCollector) GetAllMetrics() []Metric {
	mc.metricsLock.RLock()
	keys := make([]string, 0, len(mc.metrics))
	for key := range mc.metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	result := make([]Metric, 0, len(keys))
	for _, key := range keys {
		m := *mc.metrics[key]
		m.Labels = copyLabels(m.Labels)
		result = append(result, m)
	}
	mc.metricsLock.RUnlock()
	return result
}

// ExportPrometheus 导出Prometheus文本格式
func (mc *MetricsCollector) ExportPrometheus() string {
	var b strings.Builder
	described := make(map[string]bool)

	for _, m := range mc.GetAllMetrics() {
		if !described[m.Name] {
			help := metricHelp[m.Name]
			if help == "" {
				help = "Metric " + m.Name
			}
			fmt.Fprintf(&b, "# HELP %s %s\n", m.Name, help)
			fmt.Fprintf(&b, "# TYPE %s %s\n", m.Name, m.Type)
			described[m.Name] = true
		}
		labels := formatLabels(m.Labels)
		if m.Type == MetricTypeSummary {
			fmt.Fprintf(&b, "%s_sum%s %g\n", m.Name, labels, m.Value)
			fmt.Fprintf(&b, "%s_count%s %d\n", m.Name, labels, m.Count)
			continue
		}
		fmt.Fprintf(&b, "%s%s %g\n", m.Name, labels, m.Value)
	}
	return b.String()
}

// GetUptime 获取运行时间
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats 获取系统统计
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"heap_alloc": m.HeapAlloc,
			"heap_sys":   m.HeapSys,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + formatLabels(labels)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%q", k, labels[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	result := make(map[string]string, len(labels))
	for k, v := range labels {
		result[k] = v
	}
	return result
}
