package csp

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Top-level config keys that are flags rather than directives.
const (
	keyReportOnly      = "report-only"
	keyReportURI       = "report-uri"
	keyUpgradeInsecure = "upgrade-insecure-requests"
)

// FromConfig builds a Policy from a nested configuration value: directive
// names (or anything else, stored but never emitted) mapped to clause
// values, plus the report-only, report-uri and upgrade-insecure-requests
// flags. Clause shapes are validated here, once.
func FromConfig(cfg map[string]any, opts ...Option) (*Policy, error) {
	p := New(opts...)
	for key, value := range cfg {
		switch key {
		case keyReportOnly:
			p.SetReportOnly(truthy(value))
		case keyReportURI:
			uri, ok := value.(string)
			if !ok {
				return nil, errors.Errorf("%s: expected string, got %T", keyReportURI, value)
			}
			p.SetReportURI(uri)
		case keyUpgradeInsecure:
			p.SetUpgradeInsecureRequests(truthy(value))
		default:
			clause, err := decodeClause(key, value)
			if err != nil {
				return nil, err
			}
			p.SetDirective(key, clause)
		}
	}
	return p, nil
}

// Load reads a policy document from disk and builds a Policy from it. The
// file is parsed as YAML, which also covers JSON documents.
func Load(path string, opts ...Option) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading policy file %s", path)
	}
	var cfg map[string]any
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing policy file %s", path)
	}
	return FromConfig(cfg, opts...)
}

// truthy mirrors the loose boolean coercion of the config format: absent and
// false are false, everything else is true.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}
