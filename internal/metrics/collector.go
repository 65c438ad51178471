package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/backupwatch/backupwatch/internal/config"
)

type Collector struct {
	config *config.MimirConfig

	// Ingestion counters
	heartbeatsTotal  *prometheus.CounterVec
	hostsAutoCreated *prometheus.CounterVec
	samplesTotal     *prometheus.CounterVec
	executionsTotal  *prometheus.CounterVec
	autoLinksTotal   *prometheus.CounterVec
	retentionDeleted *prometheus.CounterVec

	// Latest telemetry snapshot per host
	hostCPUPercent    *prometheus.GaugeVec
	hostMemoryPercent *prometheus.GaugeVec
	hostDiskPercent   *prometheus.GaugeVec

	// Sweep
	hostsMarkedOffline prometheus.Counter

	ingestDuration *prometheus.HistogramVec
}

func NewCollector(cfg config.MimirConfig) *Collector {
	return &Collector{
		config: &cfg,

		heartbeatsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_heartbeats_total",
			Help: "Heartbeats accepted, by tenant",
		}, []string{"tenant_id"}),

		hostsAutoCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_hosts_autocreated_total",
			Help: "Hosts created implicitly by a first heartbeat",
		}, []string{"tenant_id"}),

		samplesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_telemetry_samples_total",
			Help: "Telemetry samples appended",
		}, []string{"tenant_id"}),

		executionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_executions_total",
			Help: "Backup reports by resulting action (created/updated/skipped)",
		}, []string{"tenant_id", "action"}),

		autoLinksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_routine_autolinks_total",
			Help: "Orphaned routines bound to a host during heartbeat processing",
		}, []string{"tenant_id"}),

		retentionDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "backupwatch_telemetry_pruned_total",
			Help: "Telemetry samples removed by retention",
		}, []string{"tenant_id"}),

		hostCPUPercent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backupwatch_host_cpu_percent",
			Help: "Latest reported CPU usage",
		}, []string{"tenant_id", "host"}),

		hostMemoryPercent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backupwatch_host_memory_percent",
			Help: "Latest reported memory usage",
		}, []string{"tenant_id", "host"}),

		hostDiskPercent: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backupwatch_host_disk_percent",
			Help: "Latest reported disk usage",
		}, []string{"tenant_id", "host"}),

		hostsMarkedOffline: promauto.NewCounter(prometheus.CounterOpts{
			Name: "backupwatch_hosts_marked_offline_total",
			Help: "Hosts flipped to offline by the sweep",
		}),

		ingestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backupwatch_ingest_duration_seconds",
			Help:    "Ingestion handler latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (c *Collector) RecordHeartbeat(tenantID string) {
	c.heartbeatsTotal.WithLabelValues(tenantID).Inc()
}

func (c *Collector) RecordHostAutoCreated(tenantID string) {
	c.hostsAutoCreated.WithLabelValues(tenantID).Inc()
}

func (c *Collector) RecordSample(tenantID, host string, cpu, memory, disk float64) {
	c.samplesTotal.WithLabelValues(tenantID).Inc()
	c.hostCPUPercent.WithLabelValues(tenantID, host).Set(cpu)
	c.hostMemoryPercent.WithLabelValues(tenantID, host).Set(memory)
	c.hostDiskPercent.WithLabelValues(tenantID, host).Set(disk)
}

func (c *Collector) RecordExecution(tenantID, action string) {
	c.executionsTotal.WithLabelValues(tenantID, action).Inc()
}

func (c *Collector) RecordAutoLink(tenantID string) {
	c.autoLinksTotal.WithLabelValues(tenantID).Inc()
}

func (c *Collector) RecordRetention(tenantID string, deleted int64) {
	if deleted > 0 {
		c.retentionDeleted.WithLabelValues(tenantID).Add(float64(deleted))
	}
}

func (c *Collector) RecordSweep(marked int64) {
	c.hostsMarkedOffline.Add(float64(marked))
}

func (c *Collector) ObserveIngest(endpoint string, seconds float64) {
	c.ingestDuration.WithLabelValues(endpoint).Observe(seconds)
}
