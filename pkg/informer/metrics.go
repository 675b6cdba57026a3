package informer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	reflectorListsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "lists_total",
			Help:      "Total number of List calls made by a reflector.",
		},
		[]string{"name"},
	)
	reflectorListErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "list_errors_total",
			Help:      "Total number of failed List calls.",
		},
		[]string{"name"},
	)
	reflectorWatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "watches_total",
			Help:      "Total number of Watch calls made by a reflector.",
		},
		[]string{"name"},
	)
	reflectorExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "expired_relists_total",
			Help:      "Total number of relists caused by an expired resource version.",
		},
		[]string{"name"},
	)
	reflectorWatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "watch_events_total",
			Help:      "Total number of watch events received.",
		},
		[]string{"name", "type"},
	)
	reflectorLastListItems = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "watchcache",
			Subsystem: "reflector",
			Name:      "last_list_items",
			Help:      "Number of items returned by the last successful List.",
		},
		[]string{"name"},
	)
)

// RegisterMetrics 注册 reflector 指标
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		reflectorListsTotal,
		reflectorListErrorsTotal,
		reflectorWatchesTotal,
		reflectorExpiredTotal,
		reflectorWatchEventsTotal,
		reflectorLastListItems,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
