package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"backend-tourguide/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/redis/go-redis/v9"
)

var ErrNoRoute = errors.New("routing: no route found")

// Route is the first route returned by the routing service.
type Route struct {
	Geometry    []geo.Point `json:"geometry"`
	DistanceM   float64     `json:"distance_m"`
	DurationSec float64     `json:"duration_sec"`
	StepCount   int         `json:"step_count"`
}

type response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
		Duration float64           `json:"duration"`
		Distance float64           `json:"distance"`
		Legs     []struct {
			Steps []json.RawMessage `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

type Client struct {
	baseURL  string
	profile  string
	timeout  time.Duration
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewClient(baseURL, profile string, timeout time.Duration, cache *redis.Client, cacheTTL time.Duration) *Client {
	if profile == "" {
		profile = "foot"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		profile:  profile,
		timeout:  timeout,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Route asks the service for a path through coords in the given order.
// Any non-Ok code or an empty route list is reported as ErrNoRoute.
func (c *Client) Route(ctx context.Context, coords []geo.Point) (Route, error) {
	if len(coords) < 2 {
		return Route{}, ErrNoRoute
	}
	waypoints := encodeWaypoints(coords)

	if body, ok := c.cached(ctx, waypoints); ok {
		return decode(body)
	}

	body, err := c.fetch(ctx, waypoints)
	if err != nil {
		return Route{}, err
	}
	route, err := decode(body)
	if err != nil {
		return Route{}, err
	}
	c.store(ctx, waypoints, body)
	return route, nil
}

func (c *Client) fetch(ctx context.Context, waypoints string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson&steps=true", c.baseURL, c.profile, waypoints)

	type result struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan result, 1)
	go func() {
		agent := fiber.Get(url)
		agent.Timeout(c.timeout)
		code, body, errs := agent.Bytes()
		done <- result{code: code, body: body, errs: errs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if len(res.errs) > 0 {
			return nil, fmt.Errorf("routing request: %w", errors.Join(res.errs...))
		}
		// OSRM answers 400 with a JSON code for unroutable input.
		if res.code >= 500 {
			return nil, fmt.Errorf("routing request: status %d", res.code)
		}
		return res.body, nil
	}
}

func decode(body []byte) (Route, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Route{}, fmt.Errorf("routing decode: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return Route{}, ErrNoRoute
	}

	first := resp.Routes[0]
	if first.Geometry == nil {
		return Route{}, ErrNoRoute
	}
	line, ok := first.Geometry.Coordinates.(orb.LineString)
	if !ok || len(line) == 0 {
		return Route{}, ErrNoRoute
	}

	route := Route{
		Geometry:    make([]geo.Point, 0, len(line)),
		DistanceM:   first.Distance,
		DurationSec: first.Duration,
	}
	for _, p := range line {
		route.Geometry = append(route.Geometry, geo.FromOrb(p))
	}
	for _, leg := range first.Legs {
		route.StepCount += len(leg.Steps)
	}
	return route, nil
}

func encodeWaypoints(coords []geo.Point) string {
	parts := make([]string, 0, len(coords))
	for _, p := range coords {
		parts = append(parts, fmt.Sprintf("%.6f,%.6f", p.Lng, p.Lat))
	}
	return strings.Join(parts, ";")
}

func (c *Client) cacheKey(waypoints string) string {
	return "routing:" + c.profile + ":" + waypoints
}

func (c *Client) cached(ctx context.Context, waypoints string) ([]byte, bool) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return nil, false
	}
	body, err := c.cache.Get(ctx, c.cacheKey(waypoints)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("routing: cache read error: %v", err)
		}
		return nil, false
	}
	return body, true
}

func (c *Client) store(ctx context.Context, waypoints string, body []byte) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(waypoints), body, c.cacheTTL).Err(); err != nil {
		log.Printf("routing: cache write error: %v", err)
	}
}
