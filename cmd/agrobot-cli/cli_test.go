package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/robot"
	"github.com/joshp123/agrobot/internal/server"
)

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	mock, err := gateway.NewMock(gateway.MockConfig{})
	if err != nil {
		t.Fatalf("NewMock: %v", err)
	}
	ctrl := mirror.New(mock, mirror.Options{PollInterval: time.Hour, Logger: logr.Discard()})
	ts := httptest.NewServer(server.NewHandler(server.HandlerOptions{Controller: ctrl, Logger: logr.Discard()}))
	t.Cleanup(ts.Close)
	return newAPIClient(ts.URL + "/")
}

func TestAPIClientFlow(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	snap, err := api.refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if snap.Robot.ID != "agrobot-001" || !snap.HasData {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	result, err := api.command(ctx, "pause")
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if result.NewStatus != robot.StatusPause {
		t.Fatalf("unexpected result: %+v", result)
	}

	_, err = api.command(ctx, "fly")
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Kind != "validation" {
		t.Fatalf("expected validation api error, got %v", err)
	}

	coords, err := parseCoordinates([]string{"52.1,4.3,north gate"})
	if err != nil {
		t.Fatalf("parseCoordinates: %v", err)
	}
	snap, err = api.coordinates(ctx, coords)
	if err != nil {
		t.Fatalf("coordinates: %v", err)
	}
	if snap.Robot.CurrentPosition == nil || snap.Robot.CurrentPosition.Label != "north gate" {
		t.Fatalf("unexpected position: %+v", snap.Robot.CurrentPosition)
	}

	dismissed, err := api.dismiss(ctx)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if !dismissed {
		t.Fatalf("expected the rejected command's banner to be dismissible")
	}

	snap, err = api.status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snap.Robot.Status != robot.StatusPause {
		t.Fatalf("expected Pause, got %s", snap.Robot.Status)
	}
}

func TestSnapshotOutputFormats(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	state := robot.Normalize(robot.Payload{
		ID:          ptr("bot"),
		Status:      ptr("Charging"),
		Battery:     ptr(12.0),
		Coordinates: []robot.Coordinate{{Lat: 1.5, Lon: 2.5, Label: "dock"}},
		LastUpdated: ptr(now.Add(-3 * time.Hour)),
	}, now)
	snap := mirror.View{State: state, Phase: mirror.PhaseReady, HasData: true}.Snapshot(now)

	var buf bytes.Buffer
	if err := (outputMode{format: "table", w: &buf}).snapshot(snap); err != nil {
		t.Fatalf("table: %v", err)
	}
	table := buf.String()
	for _, want := range []string{"12% (critical)", "Charging (#2196F3)", "1.50000, 2.50000 (dock)", "3 hours ago"} {
		if !strings.Contains(table, want) {
			t.Fatalf("table missing %q:\n%s", want, table)
		}
	}

	buf.Reset()
	if err := (outputMode{format: "yaml", w: &buf}).snapshot(snap); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "batteryLevel: critical") || !strings.Contains(buf.String(), "phase: ready") {
		t.Fatalf("unexpected yaml:\n%s", buf.String())
	}

	buf.Reset()
	if err := (outputMode{format: "json", w: &buf}).snapshot(snap); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"statusColor": "#2196F3"`) {
		t.Fatalf("unexpected json:\n%s", buf.String())
	}

	if err := (outputMode{format: "xml", w: &buf}).snapshot(snap); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestParseCoordinatesRejectsGarbage(t *testing.T) {
	for _, arg := range []string{"52.1", "north,4.3", "52.1,east"} {
		if _, err := parseCoordinates([]string{arg}); err == nil {
			t.Fatalf("expected error for %q", arg)
		}
	}
}

func TestDialAddr(t *testing.T) {
	cases := map[string]string{
		"0.0.0.0:8080":   "localhost:8080",
		":9000":          "localhost:9000",
		"10.0.0.5:9000":  "10.0.0.5:9000",
		"robot.lan:8080": "robot.lan:8080",
	}
	for in, want := range cases {
		if got := dialAddr(in); got != want {
			t.Fatalf("dialAddr(%q) = %q, want %q", in, got, want)
		}
	}
}

func ptr[T any](v T) *T { return &v }

func TestPrintHealth(t *testing.T) {
	resp := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}

	var buf bytes.Buffer
	if err := printHealth(&buf, server.RobotService, resp, false); err != nil {
		t.Fatalf("print health: %v", err)
	}
	if buf.String() != "agrobot.Robot\tNOT_SERVING\n" {
		t.Fatalf("unexpected text output: %q", buf.String())
	}

	buf.Reset()
	if err := printHealth(&buf, server.RobotService, resp, true); err != nil {
		t.Fatalf("print health json: %v", err)
	}
	if !strings.Contains(buf.String(), `"NOT_SERVING"`) {
		t.Fatalf("unexpected json output: %q", buf.String())
	}
}
