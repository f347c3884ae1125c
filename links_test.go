package entrywatch

import (
	"errors"
	"testing"
)

func TestExtractEventLinks(t *testing.T) {
	page := `<html><body>
		<ul>
			<li><a href="/concours/2026?watch_epreuve=1">Épreuve 1 - 1m10</a></li>
			<li><a href="https://EXAMPLE.com:443/concours/2026?watch_epreuve=2#top">Épreuve 2</a></li>
			<li><a href="/concours/2026?watch_epreuve=1">Épreuve 1 (doublon)</a></li>
			<li><a href="/contact">Contact</a></li>
		</ul>
		<script>openEpreuve("/concours/2026?watch_epreuve=3&amp;tab=engages");</script>
		<div class="epreuve-list"></div>
	</body></html>`

	links, err := ExtractEventLinks("https://example.com/concours/2026", []byte(page))
	if err != nil {
		t.Fatalf("ExtractEventLinks() error = %v", err)
	}

	want := []EventLink{
		{Label: "Épreuve 1 - 1m10", URL: "https://example.com/concours/2026?watch_epreuve=1"},
		{Label: "Épreuve 2", URL: "https://example.com/concours/2026?watch_epreuve=2"},
		{Label: "https://example.com/concours/2026?watch_epreuve=3&tab=engages", URL: "https://example.com/concours/2026?watch_epreuve=3&tab=engages"},
	}
	if len(links) != len(want) {
		t.Fatalf("ExtractEventLinks() returned %d links, want %d: %v", len(links), len(want), links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %+v, want %+v", i, links[i], want[i])
		}
	}
}

func TestExtractEventLinks_AnchorLabelWinsOverFallback(t *testing.T) {
	page := `<a href="/c/1?watch_epreuve=7">  Grand
		Prix  </a>`

	links, err := ExtractEventLinks("https://example.com/c/1", []byte(page))
	if err != nil {
		t.Fatalf("ExtractEventLinks() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("ExtractEventLinks() returned %d links, want 1", len(links))
	}
	if links[0].Label != "Grand Prix" {
		t.Errorf("Label = %q, want %q", links[0].Label, "Grand Prix")
	}
}

func TestExtractEventLinks_NoLinks(t *testing.T) {
	links, err := ExtractEventLinks("https://example.com/", []byte(`<p>rien</p>`))
	if err != nil {
		t.Fatalf("ExtractEventLinks() error = %v", err)
	}
	if len(links) != 0 {
		t.Errorf("ExtractEventLinks() = %v, want none", links)
	}
}

func TestExtractEventLinks_RelativeBase(t *testing.T) {
	_, err := ExtractEventLinks("/concours/1", nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("ExtractEventLinks() error = %v, want *ValidationError", err)
	}
}
