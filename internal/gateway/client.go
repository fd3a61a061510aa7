package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/joshp123/agrobot/internal/rate"
	"github.com/joshp123/agrobot/internal/robot"
)

const (
	defaultRequestTimeout = 10 * time.Second

	statusPath      = "/robot/status"
	commandPath     = "/robot/command"
	coordinatesPath = "/robot/coordinates"

	requestIDHeader = "X-Request-ID"
)

// ClientConfig configures the live backend.
type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	CommandsPerMinute int
	Logger            logr.Logger
}

// Client talks to a live robot backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logr.Logger
}

type commandRequest struct {
	Command string `json:"command"`
}

type commandResponse struct {
	Success   bool   `json:"success"`
	NewStatus string `json:"newStatus,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type coordinatesRequest struct {
	Coordinates []robot.Coordinate `json:"coordinates"`
}

type ackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("robot base_url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	decl := rate.Provider("robot").
		MaxRequestsPerMinute(cfg.CommandsPerMinute).
		OnlyMethods(http.MethodPost, http.MethodPut)

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: rate.WrapHTTP(decl, &http.Client{Timeout: timeout}),
		log:        cfg.Logger,
	}, nil
}

func (c *Client) FetchStatus(ctx context.Context) (robot.Payload, error) {
	var payload robot.Payload
	if err := c.doJSON(ctx, http.MethodGet, statusPath, nil, &payload); err != nil {
		return robot.Payload{}, transportErr("fetch status", err)
	}
	return payload, nil
}

func (c *Client) SendCommand(ctx context.Context, command string) (CommandResult, error) {
	cmd, err := ParseCommand(command)
	if err != nil {
		return CommandResult{}, err
	}

	var resp commandResponse
	if err := c.doJSON(ctx, http.MethodPost, commandPath, commandRequest{Command: string(cmd)}, &resp); err != nil {
		return CommandResult{}, transportErr("send command", err)
	}
	if !resp.Success {
		return CommandResult{}, transportErr("send command", remoteFailure(resp.Error))
	}

	result := CommandResult{Command: cmd, NewStatus: robot.Status(resp.NewStatus), Message: resp.Message}
	if result.NewStatus == "" {
		result.NewStatus = cmd.Status()
	}
	return result, nil
}

func (c *Client) UpdateCoordinates(ctx context.Context, coords []robot.Coordinate) error {
	if coords == nil {
		coords = []robot.Coordinate{}
	}
	var resp ackResponse
	if err := c.doJSON(ctx, http.MethodPut, coordinatesPath, coordinatesRequest{Coordinates: coords}, &resp); err != nil {
		return transportErr("update coordinates", err)
	}
	if !resp.Success {
		return transportErr("update coordinates", remoteFailure(resp.Error))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, dest any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		requestID := uuid.NewString()
		req.Header.Set(requestIDHeader, requestID)
		c.log.V(1).Info("robot request", "method", method, "path", path, "request_id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request %s: HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func remoteFailure(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return errors.New("robot rejected request")
	}
	return errors.New(msg)
}
