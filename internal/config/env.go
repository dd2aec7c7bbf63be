package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/polyglot-runner/internal/model"
)

// Environment variables that override file values.
const (
	EnvURL       = "POLYGLOT_URL"
	EnvBackend   = "POLYGLOT_BACKEND"
	EnvAPIKey    = "POLYGLOT_API_KEY"
	EnvModels    = "POLYGLOT_MODELS"
	EnvOutputDir = "POLYGLOT_OUTPUT_DIR"
	EnvWorkers   = "POLYGLOT_WORKERS"
	EnvLogLevel  = "POLYGLOT_LOG_LEVEL"
)

// Duration is a time.Duration that reads and writes as a Go duration string ("5s", "2m").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvURL); ok && v != "" {
		cfg.URL = v
	}
	if v, ok := lookup(EnvBackend); ok && v != "" {
		cfg.Backend = strings.ToLower(v)
	}
	if v, ok := lookup(EnvAPIKey); ok {
		cfg.APIKey = v
	}
	if v, ok := lookup(EnvModels); ok && v != "" {
		targets, err := ParseModelTargets(strings.Split(v, ","))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvModels, err)
		}
		cfg.Models = targets
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		cfg.OutputDir = v
	}
	if v, ok := lookup(EnvWorkers); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = n
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// ParseModelTargets parses "name" or "name@priority" entries.
// Entries without an explicit priority get their position (1-based).
func ParseModelTargets(specs []string) ([]model.ModelTarget, error) {
	var out []model.ModelTarget
	for _, raw := range specs {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		t := model.ModelTarget{Name: s, Priority: len(out) + 1}
		if i := strings.LastIndex(s, "@"); i > 0 {
			p, err := strconv.Atoi(s[i+1:])
			if err != nil {
				return nil, fmt.Errorf("invalid priority in %q: %w", s, err)
			}
			t.Name, t.Priority = s[:i], p
		}
		out = append(out, t)
	}
	return out, nil
}
