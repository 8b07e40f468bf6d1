package csp

import (
	"flag"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/levels"
)

// Options holds the command line settings of the csp-header tool.
type Options struct {
	// PolicyFile is the YAML or JSON policy document to compile.
	PolicyFile string
	// ScanURL is a page to fetch and scan for additional sources.
	ScanURL string
	// ScanFile is a local HTML file to scan for additional sources.
	ScanFile string
	// Algorithm is the digest algorithm for inline content found while
	// scanning.
	Algorithm string
	// ReportOnly compiles the report-only header variant.
	ReportOnly bool
	// Secure compiles as if serving over HTTPS, enabling the http:// to
	// https:// rewrite of allow entries.
	Secure bool
	// Verbose enables debug output.
	Verbose bool
}

// ParseOptions parses the command line flags and configures logging.
func ParseOptions() *Options {
	options := &Options{}

	flag.StringVar(&options.PolicyFile, "policy", "", "policy document to compile (YAML or JSON)")
	flag.StringVar(&options.ScanURL, "scan-url", "", "page to fetch and scan for additional sources")
	flag.StringVar(&options.ScanFile, "scan-file", "", "local HTML file to scan for additional sources")
	flag.StringVar(&options.Algorithm, "algorithm", "sha256", "digest algorithm for inline content (sha256, sha384 or sha512)")
	flag.BoolVar(&options.ReportOnly, "report-only", false, "compile the report-only header variant")
	flag.BoolVar(&options.Secure, "secure", false, "compile for an HTTPS connection")
	flag.BoolVar(&options.Verbose, "verbose", false, "enable debug output")
	flag.Parse()

	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}

	return options
}
