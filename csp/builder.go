package csp

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/projectdiscovery/gologger"
)

// Builder drives the csp-header tool: load a policy document, optionally
// extend it from a scanned page, and print the compiled header.
type Builder struct {
	options *Options
	policy  *Policy
}

// NewBuilder creates a Builder from parsed options.
func NewBuilder(options *Options) (*Builder, error) {
	if options.PolicyFile == "" && options.ScanURL == "" && options.ScanFile == "" {
		return nil, errors.New("a policy document or a scan target must be specified")
	}

	policy := New()
	if options.PolicyFile != "" {
		loaded, err := Load(options.PolicyFile)
		if err != nil {
			return nil, err
		}
		policy = loaded
	}
	if options.ReportOnly {
		policy.SetReportOnly(true)
	}

	return &Builder{options: options, policy: policy}, nil
}

// Run performs the scan steps, compiles the policy and writes the header
// line to stdout.
func (b *Builder) Run() error {
	scanner := &Scanner{Policy: b.policy, Algorithm: b.options.Algorithm}

	if b.options.ScanURL != "" {
		gologger.Info().Msgf("Scanning page %s", b.options.ScanURL)
		body, final, err := FetchPage(b.options.ScanURL)
		if err != nil {
			return err
		}
		if err := scanner.Scan(*final, strings.NewReader(body)); err != nil {
			return err
		}
	}

	if b.options.ScanFile != "" {
		gologger.Info().Msgf("Scanning file %s", b.options.ScanFile)
		f, err := os.Open(b.options.ScanFile)
		if err != nil {
			return errors.Wrapf(err, "opening %s", b.options.ScanFile)
		}
		defer f.Close()
		// Without an origin, relative references in the file count as
		// same-origin and compile to 'self'.
		if err := scanner.Scan(url.URL{}, f); err != nil {
			return err
		}
	}

	name, value := b.policy.Header(ConnectionContext{IsSecure: b.options.Secure})
	fmt.Printf("%s: %s\n", name, value)
	return nil
}
