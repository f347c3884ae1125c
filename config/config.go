// Package config provides YAML configuration parsing for the entrywatch
// binary.
//
// Example configuration:
//
//	port: 8080
//	location: Europe/Paris
//	database: entrywatch.db
//	headers:
//	  Cookie: "${ENTRY_SESSION:-}"
//
//	notifiers:
//	  - type: log
//	  - type: webhook
//	    url: http://localhost:8000/notify/apprise
//
//	targets:
//	  - label: Grand Prix de Printemps
//	    url: https://example.com/concours/202612345
//	    hot_window: {from: "08:55", to: "09:30"}
//	    hot_interval: 15s
//
//	grids:
//	  - label: Grand Prix de Printemps
//	    url_template: "https://example.com/concours/202612345?watch_epreuve={{.epreuve}}"
//	    dimensions:
//	      epreuve: ["3", "4"]
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/entrywatch"
)

const (
	defaultPort  = 8080
	minInterval  = time.Second
	maxInterval  = 24 * time.Hour
	minTimeout   = time.Second
	defaultTitle = "entrywatch"
)

// Config is the root configuration structure for entrywatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "entrywatch".
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Location is the IANA time zone hot windows are evaluated in.
	// Defaults to the local zone.
	Location string `yaml:"location"`

	// UserAgent overrides the User-Agent header of every fetch.
	UserAgent string `yaml:"user_agent"`

	// FetchTimeout is the default per-request timeout. Defaults to 12s.
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// Cooldown is the minimum time between two alerts for one dedup key.
	// Defaults to 30s.
	Cooldown Duration `yaml:"cooldown"`

	// DispatchTimeout bounds the wait for the alert surface. Defaults to 10s.
	DispatchTimeout Duration `yaml:"dispatch_timeout"`

	// ConfirmOpen, when set, re-fetches a page that just read OPEN after
	// this delay and keeps the second reading.
	ConfirmOpen Duration `yaml:"confirm_open"`

	// FlushInterval is the persistence snapshot period. Defaults to 5s.
	FlushInterval Duration `yaml:"flush_interval"`

	// Headers are sent with every fetch, for example an exported session
	// cookie. Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Database is a SQLite path, a sqlite:// URL or a postgres:// URL.
	// Empty means targets added at runtime are not kept across restarts.
	Database string `yaml:"database"`

	// Ledger configures a shared cooldown ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Notifiers lists the alert surfaces. Defaults to a single log notifier.
	Notifiers []NotifierConfig `yaml:"notifiers"`

	// Targets defines individual pages to watch.
	Targets []TargetConfig `yaml:"targets"`

	// Grids defines target grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// LedgerConfig selects where alert cooldowns are recorded.
type LedgerConfig struct {
	// RedisURL points at a Redis server, e.g. redis://localhost:6379/0.
	// Empty keeps cooldowns in memory.
	RedisURL string `yaml:"redis_url"`

	// Prefix namespaces the cooldown keys.
	Prefix string `yaml:"prefix"`
}

// NotifierConfig defines one alert surface.
type NotifierConfig struct {
	// Type is "log", "webhook" or "command".
	Type string `yaml:"type"`

	// URL is the webhook endpoint (type: webhook).
	URL string `yaml:"url"`

	// Headers are sent with every webhook request.
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds one webhook request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Command is the program and its arguments (type: command).
	Command []string `yaml:"command"`
}

// HotWindowConfig is a daily "HH:MM" range with faster polling.
type HotWindowConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// TargetConfig defines a single watched page.
type TargetConfig struct {
	// Label is the display name.
	Label string `yaml:"label"`

	// URL is the page to poll.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Kind is "contest" or "event". Inferred from the URL and label when empty.
	Kind string `yaml:"kind"`

	// Interval is the normal polling interval. Defaults to 300s.
	Interval Duration `yaml:"interval"`

	// HotInterval is the polling interval inside the hot window. Defaults to 45s.
	HotInterval Duration `yaml:"hot_interval"`

	// HotWindow is the optional daily window of fast polling.
	HotWindow HotWindowConfig `yaml:"hot_window"`

	// Timeout is the request timeout. Defaults to the global fetch_timeout.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Extractor determines how the page is read.
	Extractor ExtractorConfig `yaml:"extractor"`

	// DedupKey groups targets that should alert only once between them.
	DedupKey string `yaml:"dedup_key"`
}

// GridConfig defines a target grid that expands via cartesian product,
// typically one event target per épreuve of a contest.
type GridConfig struct {
	// Label is the base label for generated targets.
	Label string `yaml:"label"`

	// URLTemplate is a Go template for generating target URLs.
	// Dimension keys are available as template variables: {{.epreuve}}
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Kind applies to every generated target.
	Kind string `yaml:"kind"`

	Interval    Duration          `yaml:"interval"`
	HotInterval Duration          `yaml:"hot_interval"`
	HotWindow   HotWindowConfig   `yaml:"hot_window"`
	Timeout     Duration          `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers"`
	Extractor   ExtractorConfig   `yaml:"extractor"`
}

// ExtractorConfig specifies how a page is turned into a status.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	extractor: default
//	extractor: contains:Engager un cheval
//	extractor: selector:#bloc-engagement
//
// Structured object:
//
//	extractor:
//	  type: regex
//	  pattern: 'Engagements\s*:\s*(\w+)'
//	  open: ouverts
type ExtractorConfig struct {
	// Type is "default", "contains", "selector" or "regex".
	Type string

	// Text is the substring to search for (type: contains).
	Text string

	// Selector is a CSS selector narrowing the page (type: selector).
	Selector string

	// Pattern is a regular expression with one capture group (type: regex).
	Pattern string

	// Open is the captured value that means open (type: regex).
	Open string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type     string `yaml:"type"`
			Text     string `yaml:"text"`
			Selector string `yaml:"selector"`
			Pattern  string `yaml:"pattern"`
			Open     string `yaml:"open"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*e = ExtractorConfig(raw)
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// ParseExtractor parses the shorthand extractor syntax accepted in config
// files, for use by command-line flags.
func ParseExtractor(s string) (ExtractorConfig, error) {
	var e ExtractorConfig
	err := e.parseShorthand(s)
	return e, err
}

// parseShorthand parses extractor shorthand syntax.
//
// Supported formats:
//   - "default" → keyword and slot extractor for the target's kind
//   - "contains:text" → open when the page contains text
//   - "selector:css" → default extractor on the selected elements only
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if idx := strings.Index(s, ":"); idx != -1 {
		e.Type = s[:idx]
		value := s[idx+1:]

		switch e.Type {
		case "contains":
			e.Text = value
		case "selector":
			e.Selector = value
		default:
			return fmt.Errorf("unknown extractor type %q", e.Type)
		}
		return nil
	}

	if s != "default" {
		return fmt.Errorf("unknown extractor %q (expected 'default', 'contains:text', or 'selector:css')", s)
	}
	e.Type = s
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		varName := sub[1]
		hasDefault := sub[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

func expandHeaders(h map[string]string, context string) error {
	for k, v := range h {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", context, k, err)
		}
		h[k] = expanded
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URLs, URL templates, header values,
// the database DSN and the Redis URL. Defaults are applied for Title, Port
// and Notifiers. An empty target list is valid: targets can be added through
// the admin API.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if len(cfg.Notifiers) == 0 {
		cfg.Notifiers = []NotifierConfig{{Type: "log"}}
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Location != "" {
		if _, err := time.LoadLocation(c.Location); err != nil {
			return fmt.Errorf("location: %w", err)
		}
	}

	for name, d := range map[string]Duration{
		"fetch_timeout":    c.FetchTimeout,
		"cooldown":         c.Cooldown,
		"dispatch_timeout": c.DispatchTimeout,
		"confirm_open":     c.ConfirmOpen,
		"flush_interval":   c.FlushInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %s", name, d.Duration())
		}
	}

	if err := expandHeaders(c.Headers, "global"); err != nil {
		return err
	}

	var err error
	if c.Database, err = expandEnvVars(c.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Ledger.RedisURL, err = expandEnvVars(c.Ledger.RedisURL); err != nil {
		return fmt.Errorf("ledger: redis_url: %w", err)
	}

	for i := range c.Notifiers {
		if err := c.Notifiers[i].validate(i); err != nil {
			return err
		}
	}

	for i := range c.Targets {
		tc := &c.Targets[i]
		if err := tc.validate(i); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]
		if err := g.validate(i); err != nil {
			return err
		}
	}

	return nil
}

func (n *NotifierConfig) validate(i int) error {
	context := fmt.Sprintf("notifiers[%d]", i)
	switch n.Type {
	case "log":
	case "webhook":
		if n.URL == "" {
			return fmt.Errorf("%s: webhook requires a url", context)
		}
		expanded, err := expandEnvVars(n.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", context, err)
		}
		n.URL = expanded
		if err := validateURL(n.URL, context); err != nil {
			return err
		}
		if err := expandHeaders(n.Headers, context); err != nil {
			return err
		}
		if n.Timeout < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", context, n.Timeout.Duration())
		}
	case "command":
		if len(n.Command) == 0 || n.Command[0] == "" {
			return fmt.Errorf("%s: command requires a program", context)
		}
	case "":
		return fmt.Errorf("%s: type is required", context)
	default:
		return fmt.Errorf("%s: unknown notifier type %q (expected log, webhook, or command)", context, n.Type)
	}
	return nil
}

func (tc *TargetConfig) validate(i int) error {
	if strings.TrimSpace(tc.Label) == "" {
		return fmt.Errorf("targets[%d]: label is required", i)
	}
	context := fmt.Sprintf("targets[%d] (%s)", i, tc.Label)

	if tc.URL == "" {
		return fmt.Errorf("%s: url is required", context)
	}
	expanded, err := expandEnvVars(tc.URL)
	if err != nil {
		return fmt.Errorf("%s: url: %w", context, err)
	}
	tc.URL = expanded
	if err := validateURL(tc.URL, context); err != nil {
		return err
	}

	if err := expandHeaders(tc.Headers, context); err != nil {
		return err
	}
	return validateShared(context, tc.Kind, tc.Interval, tc.HotInterval, tc.HotWindow, tc.Timeout, tc.Extractor)
}

func (g *GridConfig) validate(i int) error {
	if strings.TrimSpace(g.Label) == "" {
		return fmt.Errorf("grids[%d]: label is required", i)
	}
	context := fmt.Sprintf("grids[%d] (%s)", i, g.Label)

	if g.URLTemplate == "" {
		return fmt.Errorf("%s: url_template is required", context)
	}
	expanded, err := expandEnvVars(g.URLTemplate)
	if err != nil {
		return fmt.Errorf("%s: url_template: %w", context, err)
	}
	g.URLTemplate = expanded

	// fail fast before the grid is expanded
	if _, err := template.New("").Parse(g.URLTemplate); err != nil {
		return fmt.Errorf("%s: invalid url_template: %w", context, err)
	}

	if len(g.Dimensions) == 0 {
		return fmt.Errorf("%s: at least one dimension is required", context)
	}
	for dimName, dimValues := range g.Dimensions {
		if len(dimValues) == 0 {
			return fmt.Errorf("%s: dimension %q has no values", context, dimName)
		}
		seen := make(map[string]struct{}, len(dimValues))
		for _, v := range dimValues {
			if _, exists := seen[v]; exists {
				return fmt.Errorf("%s: dimension %q has duplicate value %q", context, dimName, v)
			}
			seen[v] = struct{}{}
		}
	}

	if err := expandHeaders(g.Headers, context); err != nil {
		return err
	}
	return validateShared(context, g.Kind, g.Interval, g.HotInterval, g.HotWindow, g.Timeout, g.Extractor)
}

func validateURL(raw, context string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", context, err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (http:// or https://)", context)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", context, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: url must have a host", context)
	}
	return nil
}

func validateShared(context, kind string, interval, hot Duration, w HotWindowConfig, timeout Duration, e ExtractorConfig) error {
	if _, err := entrywatch.ParseKind(kind); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}

	for name, d := range map[string]Duration{"interval": interval, "hot_interval": hot} {
		if d == 0 {
			continue
		}
		if d.Duration() < minInterval {
			return fmt.Errorf("%s: %s must be at least %s, got %s", context, name, minInterval, d.Duration())
		}
		if d.Duration() > maxInterval {
			return fmt.Errorf("%s: %s must not exceed %s, got %s", context, name, maxInterval, d.Duration())
		}
		if d.Duration()%time.Second != 0 {
			return fmt.Errorf("%s: %s must be whole seconds, got %s", context, name, d.Duration())
		}
	}

	if _, err := entrywatch.ParseHotWindow(w.From, w.To); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}

	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("%s: timeout cannot be negative, got %s", context, timeout.Duration())
		}
		if timeout.Duration() < minTimeout {
			return fmt.Errorf("%s: timeout must be at least %s if specified, got %s", context, minTimeout, timeout.Duration())
		}
	}

	return validateExtractor(e, context)
}

// validateExtractor validates an extractor configuration.
func validateExtractor(e ExtractorConfig, context string) error {
	switch e.Type {
	case "", "default":
	case "contains":
		if e.Text == "" {
			return fmt.Errorf("%s: extractor type 'contains' requires text", context)
		}
	case "selector":
		if e.Selector == "" {
			return fmt.Errorf("%s: extractor type 'selector' requires a selector", context)
		}
	case "regex":
		if e.Pattern == "" || e.Open == "" {
			return fmt.Errorf("%s: extractor type 'regex' requires pattern and open", context)
		}
		re, err := regexp.Compile(e.Pattern)
		if err != nil {
			return fmt.Errorf("%s: invalid extractor pattern: %w", context, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s: extractor pattern needs a capture group", context)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", context, e.Type)
	}
	return nil
}

// TargetCount returns the number of targets the config defines, with grids
// counted after expansion.
func (c *Config) TargetCount() (direct, fromGrids int) {
	for _, g := range c.Grids {
		size := 1
		for _, vals := range g.Dimensions {
			size *= len(vals)
		}
		fromGrids += size
	}
	return len(c.Targets), fromGrids
}
