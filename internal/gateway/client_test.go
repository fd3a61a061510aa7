package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"

	"github.com/joshp123/agrobot/internal/robot"
)

func TestClientFlow(t *testing.T) {
	var commandBody, coordsBody, requestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/robot/status":
			if r.Method != http.MethodGet {
				t.Fatalf("expected GET for status, got %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"bot-7","status":"Working","battery":64,"coordinates":[{"lat":1,"lon":2}]}`)
		case "/api/robot/command":
			if r.Method != http.MethodPost {
				t.Fatalf("expected POST for command, got %s", r.Method)
			}
			body, _ := io.ReadAll(r.Body)
			commandBody = string(body)
			requestID = r.Header.Get("X-Request-ID")
			_, _ = io.WriteString(w, `{"success":true,"newStatus":"Pause"}`)
		case "/api/robot/coordinates":
			if r.Method != http.MethodPut {
				t.Fatalf("expected PUT for coordinates, got %s", r.Method)
			}
			body, _ := io.ReadAll(r.Body)
			coordsBody = string(body)
			_, _ = io.WriteString(w, `{"success":true}`)
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL + "/api/", Logger: testr.New(t)})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	payload, err := client.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if payload.ID == nil || *payload.ID != "bot-7" || payload.Battery == nil || *payload.Battery != 64 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	result, err := client.SendCommand(ctx, "PAUSE")
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if result.NewStatus != robot.StatusPause || result.Command != CommandPause {
		t.Fatalf("unexpected command result: %+v", result)
	}
	if commandBody != `{"command":"pause"}` {
		t.Fatalf("unexpected command payload: %s", commandBody)
	}
	if requestID == "" {
		t.Fatalf("expected request id header")
	}

	if err := client.UpdateCoordinates(ctx, []robot.Coordinate{{Lat: 1, Lon: 2}}); err != nil {
		t.Fatalf("UpdateCoordinates: %v", err)
	}
	if !strings.Contains(coordsBody, `"coordinates":[{"lat":1,"lon":2}]`) {
		t.Fatalf("unexpected coordinates payload: %s", coordsBody)
	}
}

func TestClientRejectsUnknownCommandLocally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected, got %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.SendCommand(context.Background(), "launch")
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestClientTransportErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robot/status":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/robot/command":
			_, _ = io.WriteString(w, `{"success":false,"error":"motor fault"}`)
		case "/robot/coordinates":
			_, _ = io.WriteString(w, `not json`)
		}
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	_, err = client.FetchStatus(ctx)
	var transport *TransportError
	if !errors.As(err, &transport) || !strings.Contains(err.Error(), "HTTP 500") {
		t.Fatalf("expected transport error with status, got %v", err)
	}

	_, err = client.SendCommand(ctx, "start")
	if !errors.As(err, &transport) || !strings.Contains(err.Error(), "motor fault") {
		t.Fatalf("expected remote failure as transport error, got %v", err)
	}

	err = client.UpdateCoordinates(ctx, nil)
	if !errors.As(err, &transport) {
		t.Fatalf("expected decode failure as transport error, got %v", err)
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
}

func TestClientAgainstMockHandler(t *testing.T) {
	mock := NewMockWithPayload(MockConfig{}, robot.Payload{Status: ptr("Working")})
	server := httptest.NewServer(NewHandler(mock, testr.New(t)))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	if _, err := client.SendCommand(ctx, "charge"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := client.UpdateCoordinates(ctx, []robot.Coordinate{{Lat: 5, Lon: 6, Label: "gate"}}); err != nil {
		t.Fatalf("UpdateCoordinates: %v", err)
	}

	payload, err := client.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if payload.Status == nil || *payload.Status != "Charging" {
		t.Fatalf("expected Charging after command, got %v", payload.Status)
	}
	if len(payload.Coordinates) != 1 || payload.Coordinates[0].Label != "gate" {
		t.Fatalf("expected stored coordinates, got %+v", payload.Coordinates)
	}

	mock.SetReachable(false)
	if _, err := client.FetchStatus(ctx); err == nil {
		t.Fatalf("expected error while mock unreachable")
	}
}

func ptr[T any](v T) *T { return &v }
