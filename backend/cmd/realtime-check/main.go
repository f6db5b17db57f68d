// Command realtime-check verifies that the configured API key can use the
// realtime model before a shop goes live.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pizza-phone-agent/backend/internal/adapter"
)

func main() {
	exitFn(run(os.Args[1:], os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("realtime-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("base-url", envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "REST API base URL")
	apiKey := fs.String("key", os.Getenv("OPENAI_API_KEY"), "API key")
	model := fs.String("model", envOrDefault("REALTIME_MODEL", "gpt-4o-realtime-preview"), "realtime model to check")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	jsonOut := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *apiKey == "" {
		fmt.Fprintln(stderr, "OPENAI_API_KEY (or -key) is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := adapter.NewModelChecker(*baseURL, *apiKey).Check(ctx, *model)
	if err != nil {
		fmt.Fprintln(stderr, "model check failed:", err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		fmt.Fprintf(stdout, "models=%d realtime=%d\n", report.Total, len(report.Realtime))
		for _, id := range report.Realtime {
			fmt.Fprintf(stdout, "  %s\n", id)
		}
		fmt.Fprintf(stdout, "model=%s available=%t\n", report.Model, report.Available)
	}

	if !report.Available {
		return 1
	}
	return 0
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
