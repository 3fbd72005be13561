package routing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"backend-tourguide/internal/shared/geo"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const okBody = `{
	"code": "Ok",
	"routes": [{
		"geometry": {"type": "LineString", "coordinates": [[-5.0, 34.06], [-5.0005, 34.0595], [-5.001, 34.061]]},
		"duration": 120.5,
		"distance": 240.0,
		"legs": [{"steps": [{}, {}]}, {"steps": [{}]}]
	}]
}`

func routingServer(t *testing.T, body string, status int, hits *int32, gotPath *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if gotPath != nil {
			*gotPath = r.URL.Path
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func coords() []geo.Point {
	return []geo.Point{geo.NewPoint(34.06, -5.0), geo.NewPoint(34.061, -5.001)}
}

func TestRouteSuccess(t *testing.T) {
	var path string
	srv := routingServer(t, okBody, http.StatusOK, nil, &path)
	client := NewClient(srv.URL, "foot", time.Second, nil, 0)

	route, err := client.Route(context.Background(), coords())
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(route.Geometry) != 3 {
		t.Fatalf("unexpected geometry: %+v", route.Geometry)
	}
	if route.Geometry[0].Lat != 34.06 || route.Geometry[0].Lng != -5.0 {
		t.Fatalf("expected lat/lng swapped from geojson order, got %+v", route.Geometry[0])
	}
	if route.DistanceM != 240 || route.DurationSec != 120.5 || route.StepCount != 3 {
		t.Fatalf("unexpected route summary: %+v", route)
	}
	if !strings.HasPrefix(path, "/route/v1/foot/-5.000000,34.060000") || !strings.HasSuffix(path, "-5.001000,34.061000") {
		t.Fatalf("unexpected request path: %s", path)
	}
}

func TestRouteNoRouteCode(t *testing.T) {
	srv := routingServer(t, `{"code":"NoRoute","message":"Impossible route"}`, http.StatusBadRequest, nil, nil)
	client := NewClient(srv.URL, "foot", time.Second, nil, 0)

	_, err := client.Route(context.Background(), coords())
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestRouteEmptyRoutes(t *testing.T) {
	srv := routingServer(t, `{"code":"Ok","routes":[]}`, http.StatusOK, nil, nil)
	client := NewClient(srv.URL, "foot", time.Second, nil, 0)

	if _, err := client.Route(context.Background(), coords()); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestRouteServerError(t *testing.T) {
	srv := routingServer(t, `oops`, http.StatusBadGateway, nil, nil)
	client := NewClient(srv.URL, "foot", time.Second, nil, 0)

	_, err := client.Route(context.Background(), coords())
	if err == nil || errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRouteTooFewCoords(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "", 0, nil, 0)
	if _, err := client.Route(context.Background(), coords()[:1]); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestRouteCanceledContext(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "foot", time.Second, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Route(ctx, coords()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestRouteCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var hits int32
	srv := routingServer(t, okBody, http.StatusOK, &hits, nil)
	client := NewClient(srv.URL, "foot", time.Second, rdb, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := client.Route(context.Background(), coords()); err != nil {
			t.Fatalf("route %d: %v", i, err)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single upstream hit, got %d", hits)
	}

	keys := mr.Keys()
	if len(keys) != 1 || !strings.HasPrefix(keys[0], "routing:foot:") {
		t.Fatalf("unexpected cache keys: %v", keys)
	}
}

func TestRouteNoRouteNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	srv := routingServer(t, `{"code":"NoRoute"}`, http.StatusOK, nil, nil)
	client := NewClient(srv.URL, "foot", time.Second, rdb, time.Minute)

	if _, err := client.Route(context.Background(), coords()); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected failed lookups to stay uncached")
	}
}
