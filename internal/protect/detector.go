package protect

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// Finding is one sensitive value located in a payload.
type Finding struct {
	// Path is the dotted location, with [i] for list items.
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (f Finding) String() string {
	return f.Path + ": " + f.Reason
}

// Detector checks payload fields for credentials using three strategies:
// glob patterns over the field path, keywords in the field name, and
// markers on the value itself.
type Detector struct {
	patterns []string
	keywords []string
	markers  []ValueMarker
	mu       sync.RWMutex
}

// fileConfig is the protected_fields section of the project config.
type fileConfig struct {
	ProtectedFields struct {
		Patterns []string `yaml:"patterns"`
		Keywords []string `yaml:"keywords"`
		Markers  []struct {
			Name    string `yaml:"name"`
			Pattern string `yaml:"pattern"`
		} `yaml:"markers"`
	} `yaml:"protected_fields"`
}

// New creates a detector with the default rules.
func New() *Detector {
	return &Detector{
		patterns: slices.Clone(DefaultPatterns),
		keywords: slices.Clone(DefaultKeywords),
		markers:  slices.Clone(DefaultMarkers),
	}
}

// Check reports whether the string value stored at fieldPath is sensitive.
// fieldPath segments are separated by "/" or ".".
func (d *Detector) Check(fieldPath, value string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	normalized := strings.ReplaceAll(fieldPath, ".", "/")
	for _, pattern := range d.patterns {
		if matchGlobPattern(normalized, pattern) {
			return true, "field matches protected pattern " + pattern
		}
	}

	name := strings.ToLower(normalized[strings.LastIndex(normalized, "/")+1:])
	for _, keyword := range d.keywords {
		if strings.Contains(name, strings.ToLower(keyword)) {
			return true, "plaintext credential (" + keyword + ")"
		}
	}

	if marker, ok := matchValue(d.markers, value); ok {
		return true, marker + " in value"
	}
	return false, ""
}

// Scan walks maps and lists and reports every non-empty string leaf that
// Check flags, in key order.
func (d *Detector) Scan(payload any) []Finding {
	findings := []Finding{}
	var walk func(dotted, slashed string, v any)
	walk = func(dotted, slashed string, v any) {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				walk(join(dotted, ".", k), join(slashed, "/", k), t[k])
			}
		case []any:
			for i, item := range t {
				walk(fmt.Sprintf("%s[%d]", dotted, i), slashed, item)
			}
		case string:
			if t == "" {
				return
			}
			if ok, reason := d.Check(slashed, t); ok {
				findings = append(findings, Finding{Path: dotted, Reason: reason})
			}
		}
	}
	walk("", "", payload)
	return findings
}

func join(prefix, sep, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + sep + key
}

// AddPattern adds a glob pattern.
func (d *Detector) AddPattern(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, pattern)
}

// AddKeyword adds a field name keyword.
func (d *Detector) AddKeyword(keyword string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keywords = append(d.keywords, keyword)
}

// AddMarker adds a value marker.
func (d *Detector) AddMarker(name string, pattern *regexp.Regexp) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markers = append(d.markers, ValueMarker{Name: name, Pattern: pattern})
}

// LoadConfig appends the protected_fields rules of a YAML config file.
func (d *Detector) LoadConfig(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	markers := make([]ValueMarker, 0, len(config.ProtectedFields.Markers))
	for _, m := range config.ProtectedFields.Markers {
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return fmt.Errorf("marker %q: %w", m.Name, err)
		}
		markers = append(markers, ValueMarker{Name: m.Name, Pattern: re})
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.patterns = append(d.patterns, config.ProtectedFields.Patterns...)
	d.keywords = append(d.keywords, config.ProtectedFields.Keywords...)
	d.markers = append(d.markers, markers...)

	return nil
}
