// Command benchmark drives synthetic play-event traffic against a running
// API instance and reports ingest throughput, dedup hit rate, and ranking
// read latency.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultEvents  = 1000
	defaultWorkers = 8
)

type Config struct {
	BaseURL     string
	APIKey      string
	Events      int // Total number of play events to post
	Workers     int // Number of concurrent workers
	Makers      int // Distinct maker ids to spread events over
	Players     int // Distinct player hashes; fewer players means more dedup hits
	ReadRatio   int // Issue one ranking read every N writes (0 = never)
	HTTPTimeout time.Duration
}

type stats struct {
	posted    atomic.Int64
	failed    atomic.Int64
	reads     atomic.Int64
	readFails atomic.Int64
}

func main() {
	cfg := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: cfg.HTTPTimeout}

	fmt.Printf("Benchmarking %s: %d events, %d workers, %d makers, %d players\n",
		cfg.BaseURL, cfg.Events, cfg.Workers, cfg.Makers, cfg.Players)

	var s stats
	start := time.Now()

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, client, cfg, jobs, &s)
		}()
	}

	for i := 0; i < cfg.Events; i++ {
		select {
		case <-ctx.Done():
			i = cfg.Events
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	printSummary(cfg, &s, elapsed)

	if s.failed.Load() > 0 || s.readFails.Load() > 0 {
		os.Exit(1)
	}
}

func parseFlags() Config {
	var cfg Config
	var configPath string

	flag.StringVar(&configPath, "config", "", "Path to JSON config file")
	flag.StringVar(&cfg.BaseURL, "url", defaultBaseURL, "API base URL")
	flag.IntVar(&cfg.Events, "events", defaultEvents, "Total play events to post")
	flag.IntVar(&cfg.Workers, "workers", defaultWorkers, "Concurrent workers")
	flag.IntVar(&cfg.Makers, "makers", 50, "Distinct maker ids")
	flag.IntVar(&cfg.Players, "players", 200, "Distinct player hashes")
	flag.IntVar(&cfg.ReadRatio, "read-ratio", 10, "Ranking read per N writes (0 disables)")
	flag.DurationVar(&cfg.HTTPTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()

	if configPath != "" {
		fileCfg, err := LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Failed to load config file: %v\n", err)
			os.Exit(1)
		}
		if fileCfg.BaseURL != "" {
			cfg.BaseURL = fileCfg.BaseURL
		}
		cfg.APIKey = fileCfg.APIKey
	}

	if cfg.Makers < 1 {
		cfg.Makers = 1
	}
	if cfg.Players < 1 {
		cfg.Players = 1
	}
	return cfg
}

func worker(ctx context.Context, client *http.Client, cfg Config, jobs <-chan int, s *stats) {
	for seq := range jobs {
		if ctx.Err() != nil {
			return
		}

		if err := postItem(ctx, client, cfg, seq); err != nil {
			s.failed.Add(1)
		} else {
			s.posted.Add(1)
		}

		if cfg.ReadRatio > 0 && seq%cfg.ReadRatio == 0 {
			if err := readRanking(ctx, client, cfg); err != nil {
				s.readFails.Add(1)
			} else {
				s.reads.Add(1)
			}
		}
	}
}

func postItem(ctx context.Context, client *http.Client, cfg Config, seq int) error {
	body, err := json.Marshal(map[string]any{
		"text":       fmt.Sprintf("benchmark play %d", seq),
		"created_at": time.Now().Unix(),
		"maker_id":   rand.Intn(cfg.Makers) + 1, //nolint:gosec
		"user_hash":  fmt.Sprintf("bench-player-%d", rand.Intn(cfg.Players)), //nolint:gosec
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/items", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func readRanking(ctx context.Context, client *http.Client, cfg Config) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/ranking?limit=10", nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func printSummary(cfg Config, s *stats, elapsed time.Duration) {
	posted := int(s.posted.Load())
	failed := int(s.failed.Load())
	reads := int(s.reads.Load())
	readFails := int(s.readFails.Load())
	total := posted + failed

	fmt.Printf("\n%s Benchmark finished in %s\n", statusEmoji(posted, failed+readFails), elapsed.Round(time.Millisecond))
	fmt.Printf("  writes: %d ok, %d failed (%s success), %s\n",
		posted, failed, percentageString(posted, total), formatRate(posted, elapsed))
	if cfg.ReadRatio > 0 {
		fmt.Printf("  ranking reads: %d ok, %d failed, %s\n",
			reads, readFails, formatRate(reads, elapsed))
	}
}
