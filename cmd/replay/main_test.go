package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"backend-tourguide/internal/circuit"
	"backend-tourguide/internal/config"
	"backend-tourguide/internal/ledger"
)

const trackJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-5.0, 34.06]}, "properties": {"timestampMs": 1700000000000, "accuracyM": 4}},
    {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-5.0, 34.0601]}, "properties": {}},
    {"type": "Feature", "geometry": {"type": "LineString", "coordinates": [[-5.0, 34.0602], [-5.0, 34.0603]]}, "properties": {}}
  ]
}`

func TestLoadFixes(t *testing.T) {
	fixes, err := loadFixes([]byte(trackJSON))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fixes) != 4 {
		t.Fatalf("expected 4 fixes, got %d", len(fixes))
	}
	if fixes[0].Lat != 34.06 || fixes[0].Lng != -5.0 || fixes[0].AccuracyM != 4 {
		t.Fatalf("unexpected first fix: %+v", fixes[0])
	}
	for i := 1; i < len(fixes); i++ {
		if fixes[i].TimestampMillis != fixes[i-1].TimestampMillis+defaultStepMs {
			t.Fatalf("fix %d not spaced by default step: %+v", i, fixes)
		}
	}
}

func TestLoadFixesErrors(t *testing.T) {
	cases := map[string]string{
		"invalid":   `{"type":`,
		"empty":     `{"type":"FeatureCollection","features":[]}`,
		"polygon":   `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{}}]}`,
		"out range": `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[10,95]},"properties":{}}]}`,
	}
	for name, body := range cases {
		if _, err := loadFixes([]byte(body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadFixes([]byte(`{"type":"FeatureCollection","features":[]}`)); !errors.Is(err, errNoFixes) {
		t.Fatalf("expected errNoFixes, got %v", err)
	}
}

func TestRunRequiresFlags(t *testing.T) {
	deps := mainDeps{
		loadConfig: func() config.Config { return config.Config{ServerPort: ":0"} },
		readFile:   os.ReadFile,
		stdout:     &bytes.Buffer{},
		wait:       noWait,
	}
	if err := run(context.Background(), []string{"-route", "route-1"}, deps); !errors.Is(err, errMissingFlags) {
		t.Fatalf("expected errMissingFlags, got %v", err)
	}
	if err := run(context.Background(), []string{"-bogus"}, deps); err == nil {
		t.Fatalf("expected flag parse error")
	}

	deps.readFile = func(string) ([]byte, error) { return nil, os.ErrNotExist }
	if err := run(context.Background(), []string{"-file", "x.geojson", "-route", "route-1", "-user", "user-1"}, deps); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestRunReplaysTrack(t *testing.T) {
	var gotAuth atomic.Value
	gotAuth.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("/routes/route-1", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(ledger.Route{
			ID:     "route-1",
			UserID: "user-1",
			POIs:   []circuit.POI{{ID: "poi-far", Label: "far", Lat: 34.07, Lng: -5.0}},
		})
	})
	mux.HandleFunc("/routes/trace", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ledger.TraceResult{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	deps := mainDeps{
		loadConfig: func() config.Config {
			return config.Config{JWTSecret: "secret", RoutingURL: srv.URL, RoutingProfile: "foot", RoutingTimeoutMs: 2000}
		},
		readFile: func(string) ([]byte, error) { return []byte(trackJSON), nil },
		stdout:   &out,
		wait:     noWait,
	}
	args := []string{"-file", "track.geojson", "-route", "route-1", "-user", "user-1", "-server", srv.URL, "-linger", "0s"}
	if err := run(context.Background(), args, deps); err != nil {
		t.Fatalf("run: %v", err)
	}

	if auth := gotAuth.Load().(string); !strings.HasPrefix(auth, "Bearer ") {
		t.Fatalf("expected bearer token, got %q", auth)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var types []string
	for _, line := range lines {
		var ev struct {
			Type    string `json:"type"`
			RouteID string `json:"routeId"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("event line %q: %v", line, err)
		}
		if ev.RouteID != "route-1" {
			t.Fatalf("unexpected route in %q", line)
		}
		types = append(types, ev.Type)
	}
	if len(types) == 0 || types[0] != "session_ready" {
		t.Fatalf("expected session_ready first, got %v", types)
	}
	zones := 0
	for _, typ := range types {
		if typ == "zones_changed" {
			zones++
		}
	}
	if zones < 4 {
		t.Fatalf("expected a zones event per fix, got %d in %v", zones, types)
	}
}

func TestRunStartsRouteOnCircuit(t *testing.T) {
	var started atomic.Value
	started.Store("")
	mux := http.NewServeMux()
	mux.HandleFunc("/routes/start", func(w http.ResponseWriter, r *http.Request) {
		var req ledger.StartRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		started.Store(req.CircuitID)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"routeId": "route-2"})
	})
	mux.HandleFunc("/routes/route-2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ledger.Route{ID: "route-2", UserID: "user-1"})
	})
	mux.HandleFunc("/routes/trace", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ledger.TraceResult{})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	deps := mainDeps{
		loadConfig: func() config.Config {
			return config.Config{JWTSecret: "secret", RoutingURL: srv.URL, RoutingTimeoutMs: 2000}
		},
		readFile: func(string) ([]byte, error) { return []byte(trackJSON), nil },
		stdout:   &out,
		wait:     noWait,
	}
	args := []string{"-file", "track.geojson", "-circuit", "circuit-9", "-user", "user-1", "-server", srv.URL, "-linger", "0s"}
	if err := run(context.Background(), args, deps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := started.Load().(string); got != "circuit-9" {
		t.Fatalf("expected route started on circuit-9, got %q", got)
	}
	if !strings.Contains(out.String(), `"routeId":"route-2"`) {
		t.Fatalf("expected events for route-2, got %s", out.String())
	}
}

func TestReplayRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleep: %v", err)
	}
}

func noWait(ctx context.Context, _ time.Duration) error { return ctx.Err() }
