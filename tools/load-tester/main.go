package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

func main() {
	targetURL := flag.String("url", "http://localhost:8080/ingest", "Target URL for ingestion")
	tenants := flag.Int("tenants", 5, "Number of distinct tenants to spread submissions over")
	textRatio := flag.Float64("text-ratio", 0.5, "Fraction of submissions sent as text/plain instead of JSON")
	crashRatio := flag.Float64("crash-ratio", 0, "Fraction of submissions carrying the fault marker")
	marker := flag.String("marker", "CRASH_ONCE", "Fault marker placed in crash submissions")
	textLen := flag.Int("len", 40, "Approximate text length; processing time scales with it")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the load test")
	rps := flag.Int("rps", 100, "Requests per second limit")
	flag.Parse()

	log.Printf("Starting load test on %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d, Tenants: %d", *concurrency, *duration, *rps, *tenants)

	var wg sync.WaitGroup
	var successCount, errorCount, crashCount atomic.Int64
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

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				tenantID := fmt.Sprintf("tenant-%d", rand.IntN(max(*tenants, 1)))
				text := fmt.Sprintf("load test event from worker %d at %s", workerID, time.Now().Format(time.RFC3339Nano))
				for len(text) < *textLen {
					text += " lorem ipsum"
				}
				if rand.Float64() < *crashRatio {
					text += " " + *marker
					crashCount.Add(1)
				}

				req, err := newSubmission(ctx, *targetURL, tenantID, text, rand.Float64() < *textRatio)
				if err != nil {
					continue // Should not happen
				}

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errorCount.Add(1)
					continue
				}

				if resp.StatusCode == http.StatusAccepted {
					successCount.Add(1)
				} else {
					errorCount.Add(1)
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
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
	log.Printf("With fault marker: %d", crashCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
}

// newSubmission builds either a JSON submission carrying its own tenant and
// log IDs or a text submission identified by the X-Tenant-ID header.
func newSubmission(ctx context.Context, url, tenantID, text string, asText bool) (*http.Request, error) {
	if asText {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(text))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("X-Tenant-ID", tenantID)
		return req, nil
	}

	payload, err := json.Marshal(map[string]string{
		"tenant_id": tenantID,
		"log_id":    uuid.NewString(),
		"text":      text,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
