package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/entrywatch"
	"github.com/jpalmerr/entrywatch/dashboard"
	"github.com/jpalmerr/entrywatch/example/mocksite"
	"github.com/jpalmerr/entrywatch/internal/notify"
	"github.com/jpalmerr/entrywatch/internal/server"
)

const mockAddr = "localhost:9999"

func main() {
	logger := slog.Default()

	// contest opens after 30s, épreuve 2 frees a slot after 90s
	site := mocksite.New(clockwork.NewRealClock(), 30*time.Second, 90*time.Second).WithLatency()
	go func() {
		if err := http.ListenAndServe(mockAddr, site.Handler()); err != nil {
			logger.Error("mock site error", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// hot window around now, so the demo polls at the fast rate
	now := time.Now()
	hotFrom := now.Add(-time.Minute).Format("15:04")
	hotTo := now.Add(time.Hour).Format("15:04")

	contest, err := entrywatch.NewTarget("Grand Prix 7", "http://"+mockAddr+"/concours/7",
		entrywatch.WithInterval(time.Minute),
		entrywatch.WithHotInterval(5*time.Second),
		entrywatch.WithHotWindow(hotFrom, hotTo),
	)
	if err != nil {
		logger.Error("failed to create target", "error", err)
		os.Exit(1)
	}

	// grid API: one target per épreuve from a single declaration
	events, err := entrywatch.NewTargetGrid("Grand Prix 7",
		entrywatch.WithURLTemplate("http://"+mockAddr+"/concours/7?watch_epreuve={{.epreuve}}"),
		entrywatch.WithDimensions(map[string][]string{
			"epreuve": {"1", "2", "3"},
		}),
		entrywatch.WithGridKind(entrywatch.KindEvent),
		entrywatch.WithGridIntervals(time.Minute, 5*time.Second),
		entrywatch.WithGridHotWindow(hotFrom, hotTo),
	)
	if err != nil {
		logger.Error("failed to create target grid", "error", err)
		os.Exit(1)
	}

	feed := server.NewAlertFeed()
	printer := entrywatch.NotifierFunc(func(_ context.Context, a entrywatch.Alert) error {
		fmt.Printf("\n  >>> %s: %s (%s, %d slots)\n      %s\n\n", a.Kind, a.Label, a.Status, a.Slots, a.URL)
		return nil
	})

	w, err := entrywatch.New(
		entrywatch.WithTargets(append(events, contest)...),
		entrywatch.WithNotifier(notify.Multi{printer, feed}),
		entrywatch.WithCooldown(time.Minute),
	)
	if err != nil {
		logger.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  entrywatch demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println()
	fmt.Println("  Targets:")
	fmt.Println("  - 1 contest page, opens after 30s")
	fmt.Println("  - 3 épreuves via Grid, épreuve 2 frees a slot after 90s")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(w, 8080, dashboard.Assets, "entrywatch demo", logger, server.WithAlertFeed(feed))
	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	if err := w.Start(ctx); err != nil {
		logger.Error("watcher error", "error", err)
		os.Exit(1)
	}
}
