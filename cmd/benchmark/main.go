package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	replayPct   float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Completed transfers
	fail409       uint64 // Idempotency conflicts (replays)
	fail422       uint64 // Insufficient funds
	failOther     uint64
)

// Seeded demo accounts and assets.
var (
	accountIDs = []string{
		"00000000-0000-0000-0000-000000000002", // Alice
		"00000000-0000-0000-0000-000000000003", // Bob
	}
	assetTypes = []string{"Gold", "Diamonds"}
	endpoints  = []string{"spend", "top-up", "bonus"}
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.Float64Var(&replayPct, "replay", 0.05, "Fraction of requests that reuse a previous idempotency key")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s | Replay: %.0f%%",
		workload, concurrency, duration, replayPct*100)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	var lastKey string
	for time.Since(start) < duration {
		accountID, assetType, endpoint := pickRequest()
		amount := int64(rand.Intn(10) + 1)

		key := fmt.Sprintf("bench-%s-%d", endpoint, time.Now().UnixNano())
		if lastKey != "" && rand.Float64() < replayPct {
			key = lastKey
		}

		payload := map[string]interface{}{
			"accountId": accountID,
			"assetType": assetType,
			"amount":    amount,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/transactions/"+endpoint, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&success200, 1)
			lastKey = key
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickRequest() (accountID, assetType, endpoint string) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hammers Alice's Gold balance. Every
		// transfer shares the treasury leg, so this maximizes contention
		// on a single (account, asset) pair.
		if rand.Float32() < 0.90 {
			return accountIDs[0], "Gold", endpoints[rand.Intn(len(endpoints))]
		}
	}

	return accountIDs[rand.Intn(len(accountIDs))],
		assetTypes[rand.Intn(len(assetTypes))],
		endpoints[rand.Intn(len(endpoints))]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_completed":  s200,
		"replay_conflicts":   f409,
		"insufficient_funds": f422,
		"errors":             fErr,
	}

	// Print JSON for the plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
