// Standalone mock registration site for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/entrywatch serve -c example/config.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jpalmerr/entrywatch/example/mocksite"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	openAfter := flag.Duration("open-after", time.Minute, "delay before contests open")
	slotAfter := flag.Duration("slot-after", 3*time.Minute, "delay before épreuve 2 frees a slot")
	flag.Parse()

	fmt.Printf("Mock registration site starting on %s\n", *addr)
	fmt.Printf("Contests open after %s, épreuve 2 frees a slot after %s\n", *openAfter, *slotAfter)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	site := mocksite.New(clockwork.NewRealClock(), *openAfter, *slotAfter).WithLatency()
	if err := http.ListenAndServe(*addr, site.Handler()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
