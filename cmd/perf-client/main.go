package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"connectrpc.com/connect"

	"github.com/guildops/challenge-engine/internal/service"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock‑contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	AcceptedCount int64
	RejectedCount int64
	RateLimited   int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
)

func main() {
	baseURL := envOr("PERF_BASE_URL", "http://localhost:8080")
	campaignID := envInt("PERF_CAMPAIGN_ID", 1)
	challengeID := envInt("PERF_CHALLENGE_ID", 1)
	answer := envOr("PERF_ANSWER", "42")

	rps := fixedRPSTarget
	duration := fixedDuration
	workers := fixedWorkers

	// ─── HTTP Client & Transport ─────────────────────────────────
	transport := &http.Transport{
		MaxIdleConns:        workers * 4,
		MaxIdleConnsPerHost: workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}

	submitClient := connect.NewClient[service.SubmitRequest, service.SubmitResponse](
		httpClient, baseURL+service.SubmitProcedure, service.WithJSONCodec())

	// ─── Banner ──────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("🚀 challenge-engine submit load client")
	fmt.Println("==========================================")
	fmt.Printf("campaign  : %d\n", campaignID)
	fmt.Printf("challenge : %d\n", challengeID)
	fmt.Printf("RPS       : %d\n", rps)
	fmt.Printf("duration  : %v\n", duration)
	fmt.Println("==========================================")

	// ─── Rate limiter & context ─────────────────────────────────
	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	go trackP95(latencyChan, &result)

	// ─── Workers ────────────────────────────────────────────────
	// Each worker submits as its own requester so attempts spread
	// across distinct rate-limit keys.
	var requesterSeq int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled → exit
					return
				}
				requesterID := atomic.AddInt64(&requesterSeq, 1)
				doRequest(submitClient, campaignID, challengeID, requesterID, answer, &result, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	// ─── Cleanup ────────────────────────────────────────────────
	wg.Wait()
	close(latencyChan)

	totalDur := time.Since(start)

	// ─── Report ─────────────────────────────────────────────────
	fmt.Println("==========================================")
	fmt.Println("📊 load test results")
	fmt.Println("==========================================")
	fmt.Printf("elapsed        : %.2fs\n", totalDur.Seconds())
	fmt.Printf("total requests : %d\n", result.TotalRequests)
	fmt.Printf("accepted       : %d\n", result.AcceptedCount)
	fmt.Printf("rejected       : %d\n", result.RejectedCount)
	fmt.Printf("rate limited   : %d\n", result.RateLimited)
	fmt.Printf("errors         : %d\n", result.ErrorCount)

	completed := result.TotalRequests - result.ErrorCount
	actualRPS := float64(completed) / totalDur.Seconds()

	var avgLatency time.Duration
	if completed > 0 {
		avgLatency = time.Duration(result.LatencySum / completed)
	}

	fmt.Printf("actual RPS     : %.2f\n", actualRPS)
	fmt.Printf("avg latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency    : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")
}

// doRequest performs a single Submit RPC and collects metrics.
func doRequest(client *connect.Client[service.SubmitRequest, service.SubmitResponse],
	campaignID, challengeID, requesterID int64, answer string,
	result *PerfResult, latencyChan chan<- time.Duration) {
	// Use independent context to avoid cancellation when test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := connect.NewRequest(&service.SubmitRequest{
		CampaignID:  campaignID,
		ChallengeID: challengeID,
		RequesterID: requesterID,
		Answer:      answer,
	})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.CallUnary(ctx, req)
	latency := time.Since(start)

	if err != nil {
		if connect.CodeOf(err) == connect.CodeResourceExhausted {
			atomic.AddInt64(&result.RateLimited, 1)
		} else {
			atomic.AddInt64(&result.ErrorCount, 1)
			return
		}
	} else if resp.Msg.Accepted {
		atomic.AddInt64(&result.AcceptedCount, 1)
	} else {
		atomic.AddInt64(&result.RejectedCount, 1)
	}

	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}
}

// trackP95 maintains a best‑effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			quickSort(copyBuf)
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

// quickSort sorts the array in ascending order
func quickSort(arr []int64) {
	if len(arr) < 2 {
		return
	}

	left, right := 0, len(arr)-1
	pivot := len(arr) / 2

	arr[pivot], arr[right] = arr[right], arr[pivot]

	for i := range arr {
		if arr[i] < arr[right] {
			arr[left], arr[i] = arr[i], arr[left]
			left++
		}
	}

	arr[left], arr[right] = arr[right], arr[left]

	quickSort(arr[:left])
	quickSort(arr[left+1:])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
