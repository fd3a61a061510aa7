package robot

import "time"

// Summary is the formatted view handed to presentation adapters. Every
// derived field is computed once from a single State.
type Summary struct {
	State
	StatusColor     string       `json:"statusColor"`
	IsActive        bool         `json:"isActive"`
	NeedsAttention  bool         `json:"needsAttention"`
	BatteryLevel    BatteryLevel `json:"batteryLevel"`
	WorkProgress    int          `json:"workProgress"`
	RemainingArea   float64      `json:"remainingArea"`
	ActiveAlerts    int          `json:"activeAlerts"`
	TimeSinceUpdate string       `json:"timeSinceUpdate"`
	CurrentPosition *Coordinate  `json:"currentPosition,omitempty"`
	PestsBySeverity PestCounts   `json:"pestsBySeverity"`
}

type PestCounts struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

func Summarize(s State, now time.Time) Summary {
	summary := Summary{
		State:           s.Clone(),
		StatusColor:     s.StatusColor(),
		IsActive:        s.IsActive(),
		NeedsAttention:  s.NeedsAttention(),
		BatteryLevel:    s.BatteryLevel(),
		WorkProgress:    s.WorkProgress(),
		RemainingArea:   s.WorkArea.RemainingArea(),
		ActiveAlerts:    s.ActiveAlertsCount(),
		TimeSinceUpdate: s.TimeSinceUpdate(now),
		PestsBySeverity: PestCounts{
			Low:    len(s.PestsBySeverity(SeverityLow)),
			Medium: len(s.PestsBySeverity(SeverityMedium)),
			High:   len(s.PestsBySeverity(SeverityHigh)),
		},
	}
	if pos, ok := s.CurrentPosition(); ok {
		summary.CurrentPosition = &pos
	}
	return summary
}
