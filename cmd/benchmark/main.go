package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"quotesearch/config"
	"quotesearch/internal/app"
	"quotesearch/internal/domain"
	"quotesearch/internal/logging"
	"quotesearch/internal/render"
)

func main() {
	dir := flag.String("dir", ".", "directory holding quotesearch.yaml and the index")
	query := flag.String("q", "", "query to test")
	topK := flag.Int("k", 5, "number of results")
	namespace := flag.String("n", "", "namespace")
	runs := flag.Int("runs", 50, "timed repetitions")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"doh\" [-k 5] [-n ns] [-runs 50]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Model and index readiness")
		fmt.Println("  2. Match quality for the query")
		fmt.Println("  3. Retrieval latency percentiles")
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// every run must reach the index
	cfg.Retrieve.CacheSize = 0

	ctx := context.Background()
	svc, err := app.Open(ctx, cfg, *dir, logging.Noop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval not available: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	fmt.Println("RETRIEVAL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	stats, _ := svc.Index.Stats(ctx)
	fmt.Printf("Records indexed: %d (%s)\n", stats.Total, cfg.Index.Backend)
	fmt.Printf("Model: %s (%s)\n", svc.Embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", svc.Embedder.Dimension())
	fmt.Println()

	q := domain.Query{Text: *query, TopK: *topK, Namespace: *namespace}
	fmt.Printf("Query: %q namespace=%q\n", q.Text, q.Namespace)
	fmt.Println(strings.Repeat("-", 70))

	result, err := svc.Retriever.Retrieve(ctx, q)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Retrieval error: %s\n", domain.DetailOf(err))
		os.Exit(1)
	}
	if result.Empty() {
		fmt.Println(render.NoMatchesMessage)
		os.Exit(0)
	}

	totalScore := 0.0
	for i, r := range render.Rows(result.Matches) {
		totalScore += r.Score
		fmt.Printf("%d. [%s %.3f] %s (%s)\n", i+1, rating(r.Score), r.Score, r.Speaker, r.ID)
		fmt.Printf("   %s\n\n", r.Quote)
	}

	latencies := make([]time.Duration, 0, *runs)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		if _, err := svc.Retriever.Retrieve(ctx, q); err != nil {
			fmt.Fprintf(os.Stderr, "Retrieval error on run %d: %s\n", i, domain.DetailOf(err))
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	avgScore := totalScore / float64(len(result.Matches))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", result.Matches[0].Score)
	if len(latencies) > 0 {
		fmt.Printf("LATENCY (%d runs):\n", len(latencies))
		fmt.Printf("  p50: %s\n", percentile(latencies, 0.50))
		fmt.Printf("  p95: %s\n", percentile(latencies, 0.95))
		fmt.Printf("  max: %s\n", latencies[len(latencies)-1])
	}
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(float64(len(sorted)-1) * p)
	return sorted[i]
}
