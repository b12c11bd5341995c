// Package metrics exposes the controller's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"petfeeder/internal/inventory"
	"petfeeder/internal/sensor"
)

// Metrics holds every collector the controller updates.
type Metrics struct {
	FillOutcomes    *prometheus.CounterVec
	ReportFailures  *prometheus.CounterVec
	ReportsDropped  prometheus.Counter
	DispenseResults *prometheus.CounterVec
	FetchFailures   prometheus.Counter
	OutboxDepth     prometheus.Gauge
	Inventory       *prometheus.GaugeVec
	Limits          *prometheus.GaugeVec
	Readings        *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FillOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_fill_sessions_total",
			Help: "Ended refill sessions by outcome.",
		}, []string{"outcome"}),
		ReportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_report_failures_total",
			Help: "Inventory reports that failed after retries, by kind.",
		}, []string{"kind"}),
		ReportsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeder_reports_dropped_total",
			Help: "Queued inventory reports evicted before delivery.",
		}),
		DispenseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feeder_dispenses_total",
			Help: "Finished dispense tasks by status.",
		}, []string{"status"}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feeder_fetch_failures_total",
			Help: "Failed inventory state polls.",
		}),
		OutboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feeder_outbox_depth",
			Help: "Inventory reports waiting for delivery.",
		}),
		Inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feeder_inventory_quantity",
			Help: "Server-side quantity by kind.",
		}, []string{"kind"}),
		Limits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feeder_inventory_limit",
			Help: "Server-side container limit by kind.",
		}, []string{"kind"}),
		Readings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feeder_sensor_reading",
			Help: "Last sensor reading by measurement point.",
		}, []string{"point"}),
	}

	reg.MustRegister(
		m.FillOutcomes,
		m.ReportFailures,
		m.ReportsDropped,
		m.DispenseResults,
		m.FetchFailures,
		m.OutboxDepth,
		m.Inventory,
		m.Limits,
		m.Readings,
	)
	return m
}

// ObserveState records the cached server state.
func (m *Metrics) ObserveState(st inventory.DeviceState) {
	for _, k := range []inventory.Kind{inventory.KindFood, inventory.KindWater} {
		m.Inventory.WithLabelValues(string(k)).Set(st.Quantity(k))
		m.Limits.WithLabelValues(string(k)).Set(st.Limit(k))
	}
}

// ObserveReadings records a sensor snapshot.
func (m *Metrics) ObserveReadings(r sensor.Readings) {
	m.Readings.WithLabelValues("bulk_food").Set(r.BulkFood)
	m.Readings.WithLabelValues("bulk_water").Set(r.BulkWater)
	m.Readings.WithLabelValues("tray").Set(r.Tray)
}
