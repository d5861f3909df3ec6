package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var phases = []string{"observation", "analysis", "plan", "decision", "execute", "verify"}

func main() {
	targetURL := flag.String("url", "http://localhost:8080/records", "Target URL for record ingestion")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 1000, "Requests per second limit")
	reasoningPct := flag.Int("reasoning-pct", 30, "Percentage of records sent as reasoning entries")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", *concurrency, *duration, *rps)

	var wg sync.WaitGroup
	var successCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 100) // Allow bursts up to 100

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{
				Timeout: 5 * time.Second,
			}

			taskID := fmt.Sprintf("task-%d", workerID)
			seq := 0

			for {
				select {
				case <-ctx.Done():
					return
				default:
					limiter.Wait(ctx) // Wait for token from rate limiter

					seq++
					var payload string
					if seq%100 < *reasoningPct {
						payload = fmt.Sprintf(
							`{"record_id": "%s", "category": "reasoning", "phase": "%s", "agent_id": "worker-%d", "task_id": "%s", "confidence": 0.8, "content": "synthetic reasoning step %d"}`,
							uuid.NewString(), phases[seq%len(phases)], workerID, taskID, seq)
					} else {
						payload = fmt.Sprintf(
							`{"record_id": "%s", "category": "event", "type": "load_test", "severity": "info", "agent_id": "worker-%d", "task_id": "%s", "timestamp": "%s"}`,
							uuid.NewString(), workerID, taskID, time.Now().UTC().Format(time.RFC3339Nano))
					}

					req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, bytes.NewBufferString(payload))
					if err != nil {
						continue // Should not happen
					}
					req.Header.Set("Content-Type", "application/json")

					resp, err := client.Do(req)
					if err != nil {
						errorCount.Add(1)
						continue
					}

					if resp.StatusCode == http.StatusAccepted {
						successCount.Add(1)
					} else {
						errorCount.Add(1)
					}
					resp.Body.Close()
				}
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (202 Accepted): %d", successCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}
