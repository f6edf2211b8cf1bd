package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests    prometheus.Counter
	ChatFailures    prometheus.Counter
	StreamChunks    prometheus.Counter
	SettingsUpdates prometheus.Counter
	ContextHits     prometheus.Counter
	ContextMisses   prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "chat_requests_total",
				Help:      "Total chat sends dispatched to a provider",
			}),
			ChatFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "chat_failures_total",
				Help:      "Total chat sends that ended in an error",
			}),
			StreamChunks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "stream_chunks_total",
				Help:      "Total incremental assistant snapshots emitted",
			}),
			SettingsUpdates: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "settings_updates_total",
				Help:      "Total provider configuration updates",
			}),
			ContextHits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "context_cache_hits_total",
				Help:      "Total codebase context cache hits",
			}),
			ContextMisses: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "december",
				Name:      "context_cache_misses_total",
				Help:      "Total codebase context cache misses",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ChatFailures,
			global.StreamChunks,
			global.SettingsUpdates,
			global.ContextHits,
			global.ContextMisses,
		)
	})
	return global
}
