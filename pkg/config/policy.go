package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy is the operator policy file. Unset fields keep the environment
// values.
type Policy struct {
	BannedPrefixes     []string       `yaml:"banned_prefixes,omitempty"`
	BannedExactPhrases []string       `yaml:"banned_exact_phrases,omitempty"`
	MinWords           *int           `yaml:"min_words,omitempty"`
	MaxWords           *int           `yaml:"max_words,omitempty"`
	Cooldown           *time.Duration `yaml:"cooldown,omitempty"`
	HistoryLimit       *int           `yaml:"history_limit,omitempty"`
	ScheduleDelay      *time.Duration `yaml:"schedule_delay,omitempty"`
	CustomRules        []string       `yaml:"custom_rules,omitempty"`
	FallbackText       string         `yaml:"fallback_text,omitempty"`
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}
	return &p, nil
}

// ApplyPolicy overlays the fields p sets.
func (c *Config) ApplyPolicy(p *Policy) {
	if p == nil {
		return
	}
	if p.BannedPrefixes != nil {
		c.BannedPrefixes = p.BannedPrefixes
	}
	if p.BannedExactPhrases != nil {
		c.BannedExactPhrases = p.BannedExactPhrases
	}
	if p.MinWords != nil {
		c.MinWords = *p.MinWords
	}
	if p.MaxWords != nil {
		c.MaxWords = *p.MaxWords
	}
	if p.Cooldown != nil {
		c.Cooldown = *p.Cooldown
	}
	if p.HistoryLimit != nil {
		c.HistoryLimit = *p.HistoryLimit
	}
	if p.ScheduleDelay != nil {
		c.ScheduleDelay = *p.ScheduleDelay
	}
	if len(p.CustomRules) > 0 {
		c.CustomRules = p.CustomRules
	}
	if p.FallbackText != "" {
		c.FallbackText = p.FallbackText
	}
}
