package main

import (
	"context"
	"log"

	"github.com/gatekey-io/gatekey/cmd/gatekeyctl/cmd"
	"github.com/gatekey-io/gatekey/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("gatekeyctl")
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	// Flush buffered spans on exit. Shutdown gets its own context because
	// the command's context may already be canceled.
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
