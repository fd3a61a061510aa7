package robot

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	attentionBattery = 20
	attentionPests   = 10
	attentionDryness = 80

	// NeverUpdated is returned by TimeSinceUpdate when no sync has landed yet.
	NeverUpdated = "Never"
)

// Status color tokens for presentation layers.
const (
	ColorGreen  = "#4CAF50"
	ColorOrange = "#FF9800"
	ColorBlue   = "#2196F3"
	ColorRed    = "#F44336"
	ColorGray   = "#9E9E9E"
)

// BatteryLevel buckets the battery charge.
type BatteryLevel string

const (
	BatteryGood     BatteryLevel = "good"
	BatteryMedium   BatteryLevel = "medium"
	BatteryLow      BatteryLevel = "low"
	BatteryCritical BatteryLevel = "critical"
)

var updateMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "Just now", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 24 * time.Hour, Format: "%d hours %s", DivBy: time.Hour},
	{D: math.MaxInt64, Format: "%d days %s", DivBy: 24 * time.Hour},
}

func (s State) IsActive() bool {
	return s.Status == StatusActive || s.Status == StatusWorking
}

// NeedsAttention reports a low battery, a pest outbreak, or a dry field.
func (s State) NeedsAttention() bool {
	return s.Battery < attentionBattery || s.Pests > attentionPests || s.Dryness > attentionDryness
}

// StatusColor maps the status to a display token. Unknown statuses get gray.
func (s State) StatusColor() string {
	return StatusColor(s.Status)
}

func StatusColor(status Status) string {
	switch strings.ToLower(string(status)) {
	case "active", "working":
		return ColorGreen
	case "pause", "paused":
		return ColorOrange
	case "charging":
		return ColorBlue
	case "error", "offline":
		return ColorRed
	default:
		return ColorGray
	}
}

func (s State) BatteryLevel() BatteryLevel {
	switch {
	case s.Battery > 60:
		return BatteryGood
	case s.Battery > 30:
		return BatteryMedium
	case s.Battery > 15:
		return BatteryLow
	default:
		return BatteryCritical
	}
}

// WorkProgress is the covered share of the work area in whole percent.
func (s State) WorkProgress() int {
	if s.WorkArea.TotalArea <= 0 {
		return 0
	}
	pct := math.Round(s.WorkArea.CoveredArea / s.WorkArea.TotalArea * 100)
	switch {
	case math.IsNaN(pct) || pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

// TimeSinceUpdate renders the age of LastUpdated relative to now.
func (s State) TimeSinceUpdate(now time.Time) string {
	if s.LastUpdated.IsZero() {
		return NeverUpdated
	}
	if s.LastUpdated.After(now) {
		return updateMagnitudes[0].Format
	}
	return humanize.CustomRelTime(s.LastUpdated, now, "ago", "from now", updateMagnitudes)
}

// ActiveAlertsCount counts warnings and errors.
func (s State) ActiveAlertsCount() int {
	count := 0
	for _, alert := range s.Alerts {
		if alert.Type == AlertWarning || alert.Type == AlertError {
			count++
		}
	}
	return count
}

func (s State) PestsBySeverity(level Severity) []PestSite {
	out := make([]PestSite, 0, len(s.PestSites))
	for _, site := range s.PestSites {
		if site.Severity == level {
			out = append(out, site)
		}
	}
	return out
}

func (s State) AllPestSites() []PestSite {
	return append([]PestSite{}, s.PestSites...)
}

func (s State) CurrentPosition() (Coordinate, bool) {
	if len(s.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return s.Coordinates[0], true
}
