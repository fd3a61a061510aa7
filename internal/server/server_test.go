package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/rate"
	"github.com/joshp123/agrobot/internal/robot"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestStack(t *testing.T) (*httptest.Server, *mirror.Controller, *gateway.Mock) {
	t.Helper()
	id, status, battery := "agrobot-001", "Working", 81.0
	mock := gateway.NewMockWithPayload(gateway.MockConfig{}, robot.Payload{ID: &id, Status: &status, Battery: &battery})
	ctrl := mirror.New(mock, mirror.Options{PollInterval: time.Hour, Logger: testr.New(t), Now: func() time.Time { return testNow }})

	registry, err := NewRegistry("test", append(mirror.MetricsCollectors(), mirror.NewMetricsCollector(ctrl))...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	handler := NewHandler(HandlerOptions{
		Controller: ctrl,
		Registry:   registry,
		Dashboards: map[string][]byte{"agrobot/agrobot-overview.json": mirror.Dashboard()},
		Logger:     testr.New(t),
		Now:        func() time.Time { return testNow },
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server, ctrl, mock
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRobotAPIFlow(t *testing.T) {
	server, _, mock := newTestStack(t)
	base := server.URL + "/api/robot"

	var snap mirror.Snapshot
	if code := doJSON(t, http.MethodGet, base, "", &snap); code != http.StatusOK {
		t.Fatalf("GET robot: %d", code)
	}
	if snap.HasData || snap.Phase != mirror.PhaseIdle {
		t.Fatalf("expected idle snapshot before first sync, got %+v", snap)
	}

	if code := doJSON(t, http.MethodPost, base+"/refresh", "", &snap); code != http.StatusOK {
		t.Fatalf("refresh: %d", code)
	}
	if snap.Robot.Battery != 81 || snap.Robot.BatteryLevel != robot.BatteryGood || !snap.Robot.IsConnected {
		t.Fatalf("unexpected robot after refresh: %+v", snap.Robot)
	}

	var apiErr errorResponse
	if code := doJSON(t, http.MethodPost, base+"/command", `{"command":"launch"}`, &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown command, got %d", code)
	}
	if apiErr.Kind != "validation" {
		t.Fatalf("unexpected error kind: %+v", apiErr)
	}

	var result gateway.CommandResult
	if code := doJSON(t, http.MethodPost, base+"/command", `{"command":"start"}`, &result); code != http.StatusOK {
		t.Fatalf("command: %d", code)
	}
	if result.NewStatus != robot.StatusActive {
		t.Fatalf("unexpected command result: %+v", result)
	}

	body := `{"coordinates":[{"lat":1,"lon":2}]}`
	if code := doJSON(t, http.MethodPut, base+"/coordinates", body, &snap); code != http.StatusOK {
		t.Fatalf("coordinates: %d", code)
	}
	if snap.Robot.CurrentPosition == nil || snap.Robot.CurrentPosition.Lat != 1 {
		t.Fatalf("expected current position from new coordinates, got %+v", snap.Robot.CurrentPosition)
	}
	if snap.Robot.Status != robot.StatusActive {
		t.Fatalf("expected reconciled Active status, got %s", snap.Robot.Status)
	}

	mock.SetReachable(false)
	if code := doJSON(t, http.MethodPost, base+"/refresh", "", &apiErr); code != http.StatusBadGateway {
		t.Fatalf("expected 502 while unreachable, got %d", code)
	}
	doJSON(t, http.MethodGet, base, "", &snap)
	if !snap.Stale || snap.Robot.IsConnected || snap.Robot.Battery != 81 {
		t.Fatalf("expected stale snapshot keeping last data, got %+v", snap)
	}
	if snap.Notice == nil || snap.Notice.Kind != mirror.NoticeBanner {
		t.Fatalf("expected banner notice, got %+v", snap.Notice)
	}

	var dismissed dismissResponse
	doJSON(t, http.MethodDelete, base+"/notice", "", &dismissed)
	if !dismissed.Dismissed {
		t.Fatalf("expected banner dismissed")
	}
}

func TestRobotAPIRejectsBadBody(t *testing.T) {
	server, _, _ := newTestStack(t)
	var apiErr errorResponse
	if code := doJSON(t, http.MethodPost, server.URL+"/api/robot/command", "{", &apiErr); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestDashboardsAndMetrics(t *testing.T) {
	server, ctrl, _ := newTestStack(t)
	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	resp, err := http.Get(server.URL + "/dashboards/agrobot/agrobot-overview.json")
	if err != nil {
		t.Fatalf("get dashboard: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !json.Valid(data) {
		t.Fatalf("unexpected dashboard response: %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/dashboards/agrobot/missing.json")
	if err != nil {
		t.Fatalf("get missing dashboard: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"agrobot_build_info", "agrobot_robot_battery_percent 81", `agrobot_syncs_total{result="success"}`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("metrics missing %s", want)
		}
	}
}

func TestWriteDashboards(t *testing.T) {
	if err := WriteDashboards("", map[string][]byte{"bad": nil}); err != nil {
		t.Fatalf("empty dir should be a no-op: %v", err)
	}

	dir := t.TempDir()
	if err := WriteDashboards(dir, map[string][]byte{"agrobot/overview.json": []byte(`{}`)}); err != nil {
		t.Fatalf("write dashboards: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "agrobot", "overview.json"))
	if err != nil || string(data) != `{}` {
		t.Fatalf("unexpected dashboard file: %q %v", data, err)
	}

	if err := WriteDashboards(dir, map[string][]byte{"../escape.json": nil}); err == nil {
		t.Fatalf("expected error for key escaping the directory")
	}
}

func TestEventsStreamViews(t *testing.T) {
	server, ctrl, _ := newTestStack(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/robot/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() mirror.Snapshot {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read event: %v", err)
			}
			if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
				var snap mirror.Snapshot
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				return snap
			}
		}
	}

	if first := next(); first.HasData {
		t.Fatalf("expected initial empty snapshot, got %+v", first)
	}
	go func() { _ = ctrl.Refresh(context.Background()) }()
	for {
		snap := next()
		if snap.HasData {
			if snap.Robot.Battery != 81 {
				t.Fatalf("unexpected streamed battery %d", snap.Robot.Battery)
			}
			return
		}
	}
}

func TestTrackHealthFollowsConnection(t *testing.T) {
	mock := gateway.NewMockWithPayload(gateway.MockConfig{}, robot.Payload{})
	ctrl := mirror.New(mock, mirror.Options{PollInterval: time.Hour, Logger: testr.New(t)})
	hs := health.NewServer()
	cancel := TrackHealth(hs, ctrl)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RobotService})
		if err != nil {
			t.Fatalf("health check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first sync, got %s", got)
	}
	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING once connected, got %s", got)
	}
	mock.SetReachable(false)
	_ = ctrl.Refresh(context.Background())
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after failed sync, got %s", got)
	}
}

func TestGRPCServerStopReleasesUnservedListener(t *testing.T) {
	srv, err := NewGRPCServer("127.0.0.1:0")
	if err != nil {
		t.Fatalf("new grpc server: %v", err)
	}
	addr := srv.Listener.Addr().String()

	srv.Stop()
	srv.Stop()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("listener still bound after Stop: %v", err)
	}
	ln.Close()
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&gateway.ValidationError{Command: "dock"}, http.StatusBadRequest},
		{mirror.ErrStopped, http.StatusServiceUnavailable},
		{&gateway.TransportError{Op: "send command", Err: rate.RateLimitError{Provider: "robot"}}, http.StatusTooManyRequests},
		{&gateway.TransportError{Op: "fetch status", Err: fmt.Errorf("HTTP 500")}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		if got, _ := classify(tc.err); got != tc.want {
			t.Fatalf("classify(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
