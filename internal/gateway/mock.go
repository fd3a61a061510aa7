package gateway

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/tidwall/jsonc"

	"github.com/joshp123/agrobot/internal/robot"
)

//go:embed mock_data.jsonc
var defaultMockData []byte

// ErrUnreachable is returned by the mock while it simulates a dropped link.
var ErrUnreachable = errors.New("robot unreachable")

// MockConfig configures the in-memory backend.
type MockConfig struct {
	// DataPath points at a JSON (comments allowed) payload. Empty uses the
	// embedded demo robot.
	DataPath string
	Latency  time.Duration
	Jitter   time.Duration
	Logger   logr.Logger
	Now      func() time.Time
}

// Mock serves a robot from memory. Commands move its status along the
// advisory mapping and coordinate updates are kept, so later fetches observe
// them.
type Mock struct {
	cfg MockConfig
	log logr.Logger

	mu          sync.Mutex
	payload     robot.Payload
	unreachable bool
}

func NewMock(cfg MockConfig) (*Mock, error) {
	data := defaultMockData
	if cfg.DataPath != "" {
		raw, err := os.ReadFile(cfg.DataPath)
		if err != nil {
			return nil, fmt.Errorf("read mock data: %w", err)
		}
		data = raw
	}
	payload, err := ParsePayload(data)
	if err != nil {
		return nil, fmt.Errorf("parse mock data: %w", err)
	}
	return NewMockWithPayload(cfg, payload), nil
}

// NewMockWithPayload builds a mock around an explicit payload.
func NewMockWithPayload(cfg MockConfig, payload robot.Payload) *Mock {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Mock{cfg: cfg, log: cfg.Logger, payload: payload.Clone()}
}

// ParsePayload decodes a status document, tolerating comments.
func ParsePayload(data []byte) (robot.Payload, error) {
	var payload robot.Payload
	if err := json.Unmarshal(jsonc.ToJSON(data), &payload); err != nil {
		return robot.Payload{}, err
	}
	return payload, nil
}

// SetReachable toggles simulated transport failure.
func (m *Mock) SetReachable(reachable bool) {
	m.mu.Lock()
	m.unreachable = !reachable
	m.mu.Unlock()
	m.log.Info("mock reachability changed", "reachable", reachable)
}

// SetPayload replaces the backing payload.
func (m *Mock) SetPayload(payload robot.Payload) {
	m.mu.Lock()
	m.payload = payload.Clone()
	m.mu.Unlock()
}

func (m *Mock) FetchStatus(ctx context.Context) (robot.Payload, error) {
	if err := m.delay(ctx); err != nil {
		return robot.Payload{}, transportErr("fetch status", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return robot.Payload{}, transportErr("fetch status", ErrUnreachable)
	}
	return m.payload.Clone(), nil
}

func (m *Mock) SendCommand(ctx context.Context, command string) (CommandResult, error) {
	cmd, err := ParseCommand(command)
	if err != nil {
		return CommandResult{}, err
	}
	if err := m.delay(ctx); err != nil {
		return CommandResult{}, transportErr("send command", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return CommandResult{}, transportErr("send command", ErrUnreachable)
	}
	status := string(cmd.Status())
	now := m.cfg.Now()
	m.payload.Status = &status
	m.payload.LastUpdated = &now
	m.log.V(1).Info("mock executed command", "command", cmd, "status", status)

	return CommandResult{
		Command:   cmd,
		NewStatus: cmd.Status(),
		Message:   fmt.Sprintf("Command %q executed successfully", cmd),
	}, nil
}

func (m *Mock) UpdateCoordinates(ctx context.Context, coords []robot.Coordinate) error {
	if err := m.delay(ctx); err != nil {
		return transportErr("update coordinates", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return transportErr("update coordinates", ErrUnreachable)
	}
	now := m.cfg.Now()
	m.payload.Coordinates = append([]robot.Coordinate{}, coords...)
	m.payload.LastUpdated = &now
	m.log.V(1).Info("mock stored coordinates", "count", len(coords))
	return nil
}

func (m *Mock) delay(ctx context.Context) error {
	wait := m.cfg.Latency
	if m.cfg.Jitter > 0 {
		wait += rand.N(m.cfg.Jitter)
	}
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
