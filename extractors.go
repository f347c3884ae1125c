package entrywatch

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Default keyword sets, matched after lowercasing and accent folding.
var (
	DefaultFullKeywords = []string{
		"complet", "plus de place", "liste d'attente", "liste d’attente", "full",
	}
	DefaultOpenKeywords = []string{
		"engager", "engagement ouvert", "engagements ouverts",
		"inscription ouverte", "inscriptions ouvertes", "ouvert",
	}
	DefaultClosedKeywords = []string{
		"engagement ferme", "engagements fermes", "ferme",
		"ouverture", "ouvre le", "pas encore ouvert",
	}
)

// fold lowercases s and strips combining accents, so "Épreuve" matches "epreuve".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// KeywordExtractor returns an [Extractor] that looks for keyword phrases in
// the page, accent and case insensitively.
//
// Precedence is FULL over OPEN over CLOSED. Before OPEN keywords are checked,
// every CLOSED phrase is blanked out of the text, so "pas encore ouvert" or
// "ouverture le 3 mars" never reads as open. No match yields [Unknown].
// Slots are always SlotsUnknown; combine with [SlotRatioExtractor] via
// [WithSlots] to count them.
func KeywordExtractor(full, open, closed []string) Extractor {
	full, open, closed = foldAll(full), foldAll(open), foldAll(closed)

	return func(body []byte) Observation {
		text := fold(string(body))

		if containsAny(text, full) {
			return Observation{Status: StatusFull, Slots: SlotsUnknown}
		}

		masked := text
		for _, k := range closed {
			masked = strings.ReplaceAll(masked, k, " ")
		}
		if containsAny(masked, open) {
			return Observation{Status: StatusOpen, Slots: SlotsUnknown}
		}

		if containsAny(text, closed) {
			return Observation{Status: StatusClosed, Slots: SlotsUnknown}
		}
		return Unknown
	}
}

func foldAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = fold(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var ratioPattern = regexp.MustCompile(`(\d{1,6})\s*/\s*(\d{1,6})`)

// SlotRatioExtractor returns an [Extractor] that reads a "taken / capacity"
// counter such as "engagés 52 / 60" and reports capacity minus taken as free
// slots.
//
// The first ratio after the word "engag" is preferred; otherwise the first
// ratio in the page is used. Ratios whose taken part exceeds the capacity and
// ratios that belong to a date such as 03/04/2026 are skipped. The status is
// always [StatusUnknown].
func SlotRatioExtractor() Extractor {
	return func(body []byte) Observation {
		text := fold(string(body))

		if idx := strings.Index(text, "engag"); idx >= 0 {
			if slots, ok := firstRatio(text[idx:]); ok {
				return Observation{Status: StatusUnknown, Slots: slots}
			}
		}
		if slots, ok := firstRatio(text); ok {
			return Observation{Status: StatusUnknown, Slots: slots}
		}
		return Unknown
	}
}

func firstRatio(s string) (int, bool) {
	for _, m := range ratioPattern.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[0], m[1]
		if (start > 0 && s[start-1] == '/') || (end < len(s) && s[end] == '/') {
			continue
		}
		taken, err1 := strconv.Atoi(s[m[2]:m[3]])
		capacity, err2 := strconv.Atoi(s[m[4]:m[5]])
		if err1 != nil || err2 != nil {
			continue
		}
		if capacity >= taken {
			return capacity - taken, true
		}
	}
	return 0, false
}

// WithSlots combines a status extractor with a slot extractor: the status
// comes from status, the slot count from slots unless status already found one.
func WithSlots(status, slots Extractor) Extractor {
	return func(body []byte) Observation {
		obs := status(body)
		if obs.Slots == SlotsUnknown {
			obs.Slots = slots(body).Slots
		}
		return obs
	}
}

// ContainsExtractor returns an [Extractor] that reports [StatusOpen] when the
// body contains text (accent and case insensitive) and [StatusClosed] otherwise.
//
// Example:
//
//	extractor := entrywatch.ContainsExtractor("Engager un cheval")
func ContainsExtractor(text string) Extractor {
	needle := fold(text)
	return func(body []byte) Observation {
		if strings.Contains(fold(string(body)), needle) {
			return Observation{Status: StatusOpen, Slots: SlotsUnknown}
		}
		return Observation{Status: StatusClosed, Slots: SlotsUnknown}
	}
}

// RegexExtractor returns an [Extractor] that matches the body against a
// regular expression.
//
// The pattern must contain at least one capture group. The first capture group
// is compared (accent and case insensitively) against openMatch:
//   - If equal: [StatusOpen]
//   - If not equal: [StatusClosed]
//   - If no match found: [StatusUnknown]
//
// Returns an error if the pattern is invalid.
func RegexExtractor(pattern, openMatch string) (Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	want := fold(openMatch)

	return func(body []byte) Observation {
		matches := re.FindSubmatch(body)
		if len(matches) < 2 {
			return Unknown
		}
		if fold(string(matches[1])) == want {
			return Observation{Status: StatusOpen, Slots: SlotsUnknown}
		}
		return Observation{Status: StatusClosed, Slots: SlotsUnknown}
	}, nil
}

// MustRegexExtractor is like [RegexExtractor] but panics if the pattern
// is invalid. Use it for compile-time constant patterns.
func MustRegexExtractor(pattern, openMatch string) Extractor {
	extractor, err := RegexExtractor(pattern, openMatch)
	if err != nil {
		panic("entrywatch: invalid regex pattern: " + err.Error())
	}
	return extractor
}

// SelectorExtractor returns an [Extractor] that narrows the page to the text
// of the elements matching a CSS selector before handing it to inner.
//
// Use it to keep keyword matching away from navigation menus and footers.
// A page where nothing matches yields [Unknown]. Returns an error if the
// selector does not compile.
//
// Example:
//
//	extractor, err := entrywatch.SelectorExtractor("#bloc-engagement",
//	    entrywatch.DefaultExtractor(entrywatch.KindContest))
func SelectorExtractor(selector string, inner Extractor) (Extractor, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, invalid("selector", "%v", err)
	}

	return func(body []byte) Observation {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return Unknown
		}
		found := doc.FindMatcher(sel)
		if found.Length() == 0 {
			return Unknown
		}
		var b strings.Builder
		found.Each(func(_ int, s *goquery.Selection) {
			b.WriteString(s.Text())
			b.WriteByte('\n')
		})
		return inner([]byte(b.String()))
	}, nil
}

// FirstMatch returns an [Extractor] that tries extractors in order and
// returns the first observation whose status is not [StatusUnknown].
// When all are unknown, the first known slot count is kept.
func FirstMatch(extractors ...Extractor) Extractor {
	return func(body []byte) Observation {
		result := Unknown
		for _, extractor := range extractors {
			obs := extractor(body)
			if obs.Status != StatusUnknown {
				return obs
			}
			if result.Slots == SlotsUnknown {
				result.Slots = obs.Slots
			}
		}
		return result
	}
}

// VisibleText returns an [Extractor] that strips markup, scripts and styles
// from an HTML page and hands the remaining text to inner. Keyword matching
// on raw HTML would otherwise trip over class names and inline scripts.
func VisibleText(inner Extractor) Extractor {
	return func(body []byte) Observation {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return inner(body)
		}
		doc.Find("script, style, noscript, template").Remove()
		return inner([]byte(doc.Text()))
	}
}

// DefaultExtractor returns the [Extractor] used for a kind when neither the
// target nor the engine supplies one.
//
// Both kinds read the visible page text with the default keyword sets and the
// slot ratio counter. Event pages additionally read a counter with no free
// slot as [StatusFull] when the wording is inconclusive, so a later free slot
// classifies as BECAME_AVAILABLE.
func DefaultExtractor(kind Kind) Extractor {
	base := VisibleText(WithSlots(
		KeywordExtractor(DefaultFullKeywords, DefaultOpenKeywords, DefaultClosedKeywords),
		SlotRatioExtractor(),
	))
	if kind != KindEvent {
		return base
	}
	return func(body []byte) Observation {
		obs := base(body)
		if obs.Status == StatusUnknown && obs.Slots == 0 {
			obs.Status = StatusFull
		}
		return obs
	}
}
