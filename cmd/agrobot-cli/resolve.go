package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joshp123/agrobot/internal/config"
	"github.com/joshp123/agrobot/internal/robot"
)

func resolveHTTPBase() string {
	if value := os.Getenv("AGROBOT_URL"); value != "" {
		return value
	}
	if cfg := loadConfig(); cfg != nil {
		return "http://" + dialAddr(cfg.HTTPAddr)
	}
	return "http://localhost:8080"
}

func resolveGRPCAddr() string {
	if value := os.Getenv("AGROBOT_GRPC_ADDR"); value != "" {
		return value
	}
	if cfg := loadConfig(); cfg != nil {
		return dialAddr(cfg.GRPCAddr)
	}
	return "localhost:9000"
}

func loadConfig() *config.Config {
	for _, path := range configSearchPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if cfg, err := config.Load(path, nil); err == nil {
			return cfg
		}
	}
	return nil
}

func configSearchPaths() []string {
	paths := []string{"/etc/agrobot/config.yaml"}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "agrobot", "config.yaml"))
	}
	return paths
}

// dialAddr turns a listen address into one a client can dial.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// parseCoordinates reads "lat,lon" or "lat,lon,label" arguments.
func parseCoordinates(args []string) ([]robot.Coordinate, error) {
	coords := make([]robot.Coordinate, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, ",", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("coordinate %q: want lat,lon[,label]", arg)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: latitude: %w", arg, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: longitude: %w", arg, err)
		}
		coord := robot.Coordinate{Lat: lat, Lon: lon}
		if len(parts) == 3 {
			coord.Label = strings.TrimSpace(parts[2])
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
