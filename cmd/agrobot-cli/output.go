package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/robot"
)

type outputMode struct {
	format string
	w      io.Writer
}

func (o outputMode) print(value any) error {
	switch o.format {
	case "json":
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return fmt.Errorf("format json: %w", err)
		}
		_, err = fmt.Fprintln(o.w, string(data))
		return err
	case "yaml":
		// Round-trip through JSON so YAML keys match the API field names.
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(o.w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("format yaml: %w", err)
		}
		return enc.Close()
	case "", "table":
		return nil
	default:
		return fmt.Errorf("unknown output format %q", o.format)
	}
}

func (o outputMode) snapshot(snap mirror.Snapshot) error {
	if o.format != "" && o.format != "table" {
		return o.print(snap)
	}
	o.table(snapshotRows(snap))
	return nil
}

func (o outputMode) commandResult(result gateway.CommandResult) error {
	if o.format != "" && o.format != "table" {
		return o.print(result)
	}
	rows := [][]string{
		{"command", string(result.Command)},
		{"new status", string(result.NewStatus)},
	}
	if result.Message != "" {
		rows = append(rows, []string{"message", result.Message})
	}
	o.table(rows)
	return nil
}

func (o outputMode) watchLine(snap mirror.Snapshot) {
	r := snap.Robot
	line := fmt.Sprintf("%s\t%s\tbattery=%d%%\tprogress=%d%%\talerts=%d\tupdated=%s",
		snap.Phase, r.Status, r.Battery, r.WorkProgress, r.ActiveAlerts, r.TimeSinceUpdate)
	if snap.Stale {
		line += "\tSTALE"
	}
	if snap.Notice != nil {
		line += "\t! " + snap.Notice.Message
	}
	fmt.Fprintln(o.w, line)
}

func snapshotRows(snap mirror.Snapshot) [][]string {
	r := snap.Robot
	rows := [][]string{
		{"phase", snap.Phase.String()},
		{"connected", yesNo(r.IsConnected)},
	}
	if snap.Stale {
		rows = append(rows, []string{"stale", "yes (showing last known data)"})
	}
	if snap.Notice != nil {
		rows = append(rows, []string{"notice", fmt.Sprintf("[%s] %s", snap.Notice.Kind, snap.Notice.Message)})
	}
	if !snap.HasData {
		return rows
	}

	rows = append(rows,
		[]string{"id", r.ID},
		[]string{"status", fmt.Sprintf("%s (%s)", r.Status, r.StatusColor)},
		[]string{"battery", fmt.Sprintf("%d%% (%s)", r.Battery, r.BatteryLevel)},
		[]string{"pests", fmt.Sprintf("%d (low %d, medium %d, high %d)", r.Pests, r.PestsBySeverity.Low, r.PestsBySeverity.Medium, r.PestsBySeverity.High)},
		[]string{"dryness", fmt.Sprintf("%d%%", r.Dryness)},
		[]string{"temperature", fmt.Sprintf("%.1f°C", r.Sensors.Temperature)},
		[]string{"humidity", fmt.Sprintf("%.0f%%", r.Sensors.Humidity)},
		[]string{"soil moisture", fmt.Sprintf("%.0f%%", r.Sensors.SoilMoisture)},
		[]string{"progress", fmt.Sprintf("%d%% (%.0f of %.0f, %.0f left)", r.WorkProgress, r.WorkArea.CoveredArea, r.WorkArea.TotalArea, r.RemainingArea)},
		[]string{"position", position(r.CurrentPosition)},
		[]string{"waypoints", fmt.Sprintf("%d", len(r.Coordinates))},
		[]string{"attention", yesNo(r.NeedsAttention)},
		[]string{"updated", r.TimeSinceUpdate},
	)
	for _, alert := range r.Alerts {
		rows = append(rows, []string{"alert", fmt.Sprintf("[%s] %s", alert.Type, alert.Message)})
	}
	return rows
}

func position(c *robot.Coordinate) string {
	if c == nil {
		return "unknown"
	}
	out := fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lon)
	if c.Label != "" {
		out += " (" + c.Label + ")"
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (o outputMode) table(rows [][]string) {
	w := tabwriter.NewWriter(o.w, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
