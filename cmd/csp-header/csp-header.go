package main

import (
	"github.com/projectdiscovery/gologger"
	"github.com/secinto/go-csp-header/csp"
)

func main() {
	// Parse the command line flags
	options := csp.ParseOptions()

	builder, err := csp.NewBuilder(options)
	if err != nil {
		gologger.Fatal().Msgf("Could not create csp-header builder: %s\n", err)
	}

	err = builder.Run()
	if err != nil {
		gologger.Fatal().Msgf("Could not compile policy: %s\n", err)
	}
}
