package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/mirror"
	"github.com/joshp123/agrobot/internal/robot"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: strings.TrimRight(base, "/") + "/api/robot", http: &http.Client{}}
}

type apiError struct {
	Status int    `json:"-"`
	Kind   string `json:"kind"`
	Msg    string `json:"error"`
}

func (e *apiError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d, %s)", e.Msg, e.Status, e.Kind)
}

func (c *apiClient) status(ctx context.Context) (mirror.Snapshot, error) {
	var snap mirror.Snapshot
	err := c.do(ctx, http.MethodGet, "", nil, &snap)
	return snap, err
}

func (c *apiClient) refresh(ctx context.Context) (mirror.Snapshot, error) {
	var snap mirror.Snapshot
	err := c.do(ctx, http.MethodPost, "/refresh", nil, &snap)
	return snap, err
}

func (c *apiClient) command(ctx context.Context, command string) (gateway.CommandResult, error) {
	var result gateway.CommandResult
	err := c.do(ctx, http.MethodPost, "/command", map[string]string{"command": command}, &result)
	return result, err
}

func (c *apiClient) coordinates(ctx context.Context, coords []robot.Coordinate) (mirror.Snapshot, error) {
	var snap mirror.Snapshot
	err := c.do(ctx, http.MethodPut, "/coordinates", map[string]any{"coordinates": coords}, &snap)
	return snap, err
}

func (c *apiClient) dismiss(ctx context.Context) (bool, error) {
	var resp struct {
		Dismissed bool `json:"dismissed"`
	}
	err := c.do(ctx, http.MethodDelete, "/notice", nil, &resp)
	return resp.Dismissed, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// watch follows the event stream until ctx ends, calling fn per snapshot.
func (c *apiClient) watch(ctx context.Context, fn func(mirror.Snapshot)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/events", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &apiError{Status: resp.StatusCode}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var snap mirror.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fn(snap)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func watchCmd(api *apiClient, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("watch takes no arguments")
	}
	ctx, stop := signalContext()
	defer stop()
	out := outputMode{w: os.Stdout}
	err := api.watch(ctx, out.watchLine)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
