// Package mocksite serves a fake contest registration site for the demo and
// for trying the CLI without hitting a real one.
//
// Every contest page reads closed until openAfter has elapsed, then open with
// links to its épreuves. Épreuve pages read full until slotAfter, after which
// épreuve 2 frees one slot.
package mocksite

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
)

const (
	epreuves = 3
	capacity = 40
)

// Site is the fake registration site.
type Site struct {
	clock     clockwork.Clock
	start     time.Time
	openAfter time.Duration
	slotAfter time.Duration
	latency   bool
}

// New creates a site whose clock starts now.
func New(clock clockwork.Clock, openAfter, slotAfter time.Duration) *Site {
	return &Site{
		clock:     clock,
		start:     clock.Now(),
		openAfter: openAfter,
		slotAfter: slotAfter,
	}
}

// WithLatency makes every response wait 50 to 200ms, like a busy server.
func (s *Site) WithLatency() *Site {
	s.latency = true
	return s
}

// Handler returns the site's routes.
func (s *Site) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/concours/{id}", s.handleContest)
	return r
}

func (s *Site) elapsed() time.Duration {
	return s.clock.Since(s.start)
}

func (s *Site) handleContest(w http.ResponseWriter, r *http.Request) {
	if s.latency {
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)
	}

	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if ep := r.URL.Query().Get("watch_epreuve"); ep != "" {
		n, err := strconv.Atoi(ep)
		if err != nil || n < 1 || n > epreuves {
			http.NotFound(w, r)
			return
		}
		s.writeEpreuve(w, id, n)
		return
	}
	s.writeContest(w, id)
}

func (s *Site) writeContest(w http.ResponseWriter, id string) {
	fmt.Fprintf(w, "<html><head><title>Concours %s</title></head><body>\n", id)
	fmt.Fprintf(w, "<h1>Grand Prix %s</h1>\n", id)

	if s.elapsed() < s.openAfter {
		opensAt := s.start.Add(s.openAfter).Format("15:04:05")
		fmt.Fprintf(w, "<p id=\"bloc-engagement\">Engagements fermés. Ouverture le %s.</p>\n", opensAt)
		fmt.Fprint(w, "</body></html>\n")
		return
	}

	fmt.Fprint(w, "<p id=\"bloc-engagement\">Engagements ouverts</p>\n<ul>\n")
	for n := 1; n <= epreuves; n++ {
		fmt.Fprintf(w, "<li><a href=\"/concours/%s?watch_epreuve=%d\">Épreuve %d</a></li>\n", id, n, n)
	}
	fmt.Fprint(w, "</ul></body></html>\n")
	slog.Debug("mock contest served open", "contest", id)
}

func (s *Site) writeEpreuve(w http.ResponseWriter, id string, n int) {
	entered := capacity
	if n == 2 && s.elapsed() >= s.slotAfter {
		entered = capacity - 1
	}

	fmt.Fprintf(w, "<html><body><h1>Grand Prix %s - Épreuve %d</h1>\n", id, n)
	fmt.Fprintf(w, "<p>Engagés %d / %d</p>\n", entered, capacity)
	if entered == capacity {
		fmt.Fprint(w, "<p>Complet</p>\n")
	}
	fmt.Fprint(w, "</body></html>\n")
}
