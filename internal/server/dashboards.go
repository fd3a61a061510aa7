package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// DashboardsHandler serves dashboard JSON keyed by "<group>/<file>".
// Mount it under /dashboards.
func DashboardsHandler(dashboards map[string][]byte) http.Handler {
	r := chi.NewRouter()
	r.Get("/{group}/{file}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "group") + "/" + chi.URLParam(r, "file")
		data, ok := dashboards[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
	return r
}

// WriteDashboards writes dashboards under dir, one subdirectory per group,
// for Grafana file provisioning. An empty dir is a no-op.
func WriteDashboards(dir string, dashboards map[string][]byte) error {
	if dir == "" {
		return nil
	}
	for key, data := range dashboards {
		group, file, ok := strings.Cut(key, "/")
		if !ok || !validSegment(group) || !validSegment(file) || strings.Contains(file, "/") {
			return fmt.Errorf("invalid dashboard key %q", key)
		}
		groupDir := filepath.Join(dir, group)
		if err := os.MkdirAll(groupDir, 0o755); err != nil {
			return fmt.Errorf("create dashboard dir: %w", err)
		}
		path := filepath.Join(groupDir, file)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write dashboard %s: %w", path, err)
		}
	}
	return nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".."
}
