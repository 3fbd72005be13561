// Command replay drives a navigation session from a recorded GeoJSON track.
// Visits and breadcrumbs are written through the API's trace endpoints and
// every navigation event is printed to stdout as a JSON line.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-tourguide/internal/auth"
	"backend-tourguide/internal/config"
	"backend-tourguide/internal/ledger"
	"backend-tourguide/internal/navigation"
	"backend-tourguide/internal/routing"
)

var errMissingFlags = errors.New("replay: -file, -user and one of -route or -circuit are required")

type mainDeps struct {
	loadConfig func() config.Config
	readFile   func(string) ([]byte, error)
	stdout     io.Writer
	wait       waitFunc
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		readFile:   os.ReadFile,
		stdout:     os.Stdout,
		wait:       sleepCtx,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], defaultDeps()); err != nil {
		log.Printf("replay failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, deps mainDeps) error {
	cfg := deps.loadConfig()

	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	file := fs.String("file", "", "GeoJSON file with the recorded fixes")
	routeID := fs.String("route", "", "route to navigate")
	circuitID := fs.String("circuit", "", "start a new route on this circuit when -route is empty")
	userID := fs.String("user", "", "user owning the route")
	server := fs.String("server", "http://localhost"+cfg.ServerPort, "API base URL")
	speed := fs.Float64("speed", 1, "playback speed multiplier")
	linger := fs.Duration("linger", 2*time.Second, "wait after the last fix for pending routes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" || *userID == "" || (*routeID == "" && *circuitID == "") {
		return errMissingFlags
	}

	data, err := deps.readFile(*file)
	if err != nil {
		return err
	}
	fixes, err := loadFixes(data)
	if err != nil {
		return err
	}

	token, err := auth.IssueToken(cfg.JWTSecret, *userID, auth.DefaultTokenTTL)
	if err != nil {
		return err
	}
	trace := ledger.NewClient(*server, token, cfg.RoutingTimeout())
	router := routing.NewClient(cfg.RoutingURL, cfg.RoutingProfile, cfg.RoutingTimeout(), nil, 0)

	if *routeID == "" {
		route, err := trace.StartRoute(ctx, ledger.StartRequest{CircuitID: *circuitID, Latitude: fixes[0].Lat, Longitude: fixes[0].Lng})
		if err != nil {
			return err
		}
		*routeID = route.ID
		log.Printf("replay: started route %s on circuit %s", route.ID, *circuitID)
	}

	mgr := navigation.NewManager(navigation.SettingsFromConfig(cfg), router, trace, &eventPrinter{out: deps.stdout})

	log.Printf("replay: %d fixes on route %s at %.1fx", len(fixes), *routeID, *speed)
	snap, err := replay(ctx, mgr, fixes, replayOptions{
		RouteID: *routeID,
		UserID:  *userID,
		Speed:   *speed,
		Linger:  *linger,
	}, deps.wait)
	if err != nil {
		return err
	}

	visited := 0
	for _, v := range snap.Visits {
		if v.Status == navigation.Visited {
			visited++
		}
	}
	log.Printf("replay: done, %d/%d visited, %d points, completed=%t", visited, len(snap.Visits), snap.PointsAwarded, snap.Completed)
	return nil
}
