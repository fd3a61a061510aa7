package mirror

import (
	_ "embed"

	"github.com/prometheus/client_golang/prometheus"
)

//go:embed dashboard.json
var dashboardJSON []byte

// Dashboard returns the Grafana dashboard for the robot mirror.
func Dashboard() []byte {
	return dashboardJSON
}

var (
	syncCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrobot_syncs_total",
			Help: "Status syncs by outcome (success, failure, superseded, discarded)",
		},
		[]string{"result"},
	)
	commandCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrobot_commands_total",
			Help: "Robot commands by command and outcome",
		},
		[]string{"command", "result"},
	)
)

// MetricsCollectors exposes the controller's shared counters.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{syncCounter, commandCounter}
}

// MetricsCollector exports the mirrored robot state. It reads the current
// view on scrape and never talks to the gateway.
type MetricsCollector struct {
	ctrl *Controller

	connected     prometheus.Gauge
	stale         prometheus.Gauge
	phase         *prometheus.GaugeVec
	generation    prometheus.Gauge
	battery       prometheus.Gauge
	pests         prometheus.Gauge
	dryness       prometheus.Gauge
	temperature   prometheus.Gauge
	humidity      prometheus.Gauge
	soilMoisture  prometheus.Gauge
	workProgress  prometheus.Gauge
	remainingArea prometheus.Gauge
	alerts        prometheus.Gauge
	lastUpdated   prometheus.Gauge
	status        *prometheus.GaugeVec
}

func NewMetricsCollector(ctrl *Controller) *MetricsCollector {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}
	return &MetricsCollector{
		ctrl:          ctrl,
		connected:     gauge("agrobot_robot_connected", "1 if the last applied sync reached the robot"),
		stale:         gauge("agrobot_robot_stale", "1 if the shown data predates a failed sync"),
		generation:    gauge("agrobot_robot_generation", "Generation of the applied state"),
		battery:       gauge("agrobot_robot_battery_percent", "Battery charge (%)"),
		pests:         gauge("agrobot_robot_pests", "Pests detected"),
		dryness:       gauge("agrobot_robot_dryness_percent", "Field dryness (%)"),
		temperature:   gauge("agrobot_robot_temperature_celsius", "Ambient temperature (celsius)"),
		humidity:      gauge("agrobot_robot_humidity_percent", "Relative humidity (%)"),
		soilMoisture:  gauge("agrobot_robot_soil_moisture_percent", "Soil moisture (%)"),
		workProgress:  gauge("agrobot_robot_work_progress_percent", "Covered share of the work area (%)"),
		remainingArea: gauge("agrobot_robot_remaining_area", "Work area left to cover"),
		alerts:        gauge("agrobot_robot_alerts", "Active alerts"),
		lastUpdated:   gauge("agrobot_robot_last_update_timestamp_seconds", "Robot-reported update time (epoch seconds)"),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agrobot_sync_phase",
			Help: "1 for the current sync phase",
		}, []string{"phase"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agrobot_robot_status",
			Help: "1 for the robot's current status",
		}, []string{"status"}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, col := range append(c.syncCollectors(), c.robotCollectors()...) {
		col.Describe(ch)
	}
	c.lastUpdated.Describe(ch)
}

// Collect reports robot readings only while the mirror holds data, so a
// failed start or a teardown does not keep exporting old values.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	view := c.ctrl.View()
	state := view.State

	c.connected.Set(boolValue(state.IsConnected))
	c.stale.Set(boolValue(view.Stale))
	c.generation.Set(float64(view.Generation))

	c.phase.Reset()
	c.phase.WithLabelValues(view.Phase.String()).Set(1)

	for _, col := range c.syncCollectors() {
		col.Collect(ch)
	}
	if !view.HasData {
		return
	}

	c.battery.Set(float64(state.Battery))
	c.pests.Set(float64(state.Pests))
	c.dryness.Set(float64(state.Dryness))
	c.temperature.Set(state.Sensors.Temperature)
	c.humidity.Set(float64(state.Sensors.Humidity))
	c.soilMoisture.Set(float64(state.Sensors.SoilMoisture))
	c.workProgress.Set(float64(state.WorkProgress()))
	c.remainingArea.Set(state.WorkArea.RemainingArea())
	c.alerts.Set(float64(state.ActiveAlertsCount()))
	c.status.Reset()
	c.status.WithLabelValues(string(state.Status)).Set(1)

	for _, col := range c.robotCollectors() {
		col.Collect(ch)
	}
	if !state.LastUpdated.IsZero() {
		c.lastUpdated.Set(float64(state.LastUpdated.Unix()))
		c.lastUpdated.Collect(ch)
	}
}

func (c *MetricsCollector) syncCollectors() []prometheus.Collector {
	return []prometheus.Collector{c.connected, c.stale, c.phase, c.generation}
}

func (c *MetricsCollector) robotCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.battery,
		c.pests,
		c.dryness,
		c.temperature,
		c.humidity,
		c.soilMoisture,
		c.workProgress,
		c.remainingArea,
		c.alerts,
		c.status,
	}
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
