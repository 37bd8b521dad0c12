package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/igasovic/PKM-sub000/internal/app"
)

// Collects every pending Tier-1 batch once and prints the sweep report.
func main() {
	_ = godotenv.Load()

	a, err := app.NewHeadless()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	if a.Services.Tier1Worker == nil {
		a.Log.Error("Tier-1 sweep unavailable: OPENAI_API_KEY not set")
		a.Close()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	report := a.Services.Tier1Worker.RunOnce(ctx)
	stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		a.Log.Error("encode sweep report", "error", err)
	}
	a.Close()

	if report.Failed() {
		os.Exit(1)
	}
}
