package entrywatch

import (
	"bytes"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jpalmerr/entrywatch/internal/urlutil"
)

// EventLink is one event (épreuve) page found on a contest page.
type EventLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Fallback for links that only appear inside inline scripts or broken markup.
var eventHrefPattern = regexp.MustCompile(`(?i)["'(]((?:https?://|/|\?)[^"'()\s<>]*epreuve[^"'()\s<>]*)["')]`)

// ExtractEventLinks lists the event pages linked from a contest page.
//
// Anchors are read with an HTML parser first; a pattern scan of the raw page
// then picks up links the parser cannot see. Relative links are resolved
// against baseURL. Results are deduplicated by canonical URL regardless of
// which strategy found them, in first-seen order; anchor text wins over a
// label derived from the URL.
func ExtractEventLinks(baseURL string, body []byte) ([]EventLink, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || !base.IsAbs() {
		return nil, invalid("url", "base url must be absolute")
	}

	var out []EventLink
	seen := make(map[string]int)

	add := func(label, href string) {
		canonical, err := urlutil.Resolve(base, href)
		if err != nil {
			return
		}
		label = strings.Join(strings.Fields(label), " ")
		if i, ok := seen[canonical]; ok {
			if out[i].Label == "" && label != "" {
				out[i].Label = label
			}
			return
		}
		seen[canonical] = len(out)
		out = append(out, EventLink{Label: label, URL: canonical})
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if isEventHref(href) {
				add(s.Text(), href)
			}
		})
	}

	for _, m := range eventHrefPattern.FindAllSubmatch(body, -1) {
		add("", html.UnescapeString(string(m[1])))
	}

	for i := range out {
		if out[i].Label == "" {
			out[i].Label = out[i].URL
		}
	}
	return out, nil
}

func isEventHref(href string) bool {
	f := fold(href)
	return strings.Contains(f, "epreuve")
}
