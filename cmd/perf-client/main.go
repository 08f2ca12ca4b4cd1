package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/kkkkikiki/contest/internal/rpc"
)

// PerfResult gathers aggregated metrics for the test run.
// LatencySum & P95Latency are in nanoseconds.
type PerfResult struct {
	TotalRequests int64
	WonCount      int64
	LostCount     int64
	ReplayCount   int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const (
	fixedWorkers   = 50
	fixedRPSTarget = 700
	fixedDuration  = 30 * time.Second
	defaultTimeout = 30 * time.Second
	fixedCapacity  = 5000
	// fixedStudents bounds the student pool; draws beyond its size become replays
	fixedStudents = 20000
	// repeatRatio is the share of requests re-sent for a student already seen
	repeatRatio = 0.2
)

func main() {
	baseURL := envOr("PERF_BASE_URL", "http://localhost:8080")
	adminToken := os.Getenv("APP_ADMIN_TOKEN")
	rps := fixedRPSTarget
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

	admin := rpc.NewContestServiceClient(httpClient, baseURL, adminToken)
	client := rpc.NewVerificationServiceClient(httpClient, baseURL)

	contestID, err := createNewContest(admin, fixedCapacity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create contest: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("==========================================")
	fmt.Println("Contest load test")
	fmt.Println("==========================================")
	fmt.Printf("Contest ID : %d (%d codes)\n", contestID, fixedCapacity)
	fmt.Printf("RPS        : %d\n", rps)
	fmt.Printf("Duration   : %v\n", fixedDuration)
	fmt.Println("==========================================")

	burst := rps / workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), fixedDuration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var nextStudent atomic.Int64
	codes := newCodeBook()

	latencyChan := make(chan time.Duration, 4096)
	p95Done := make(chan struct{})
	go func() {
		trackP95(latencyChan, &result)
		close(p95Done)
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				student := pickStudent(&nextStudent)
				doRequest(client, contestID, student, &result, codes, latencyChan)
			}
		}()
	}

	start := time.Now()
	<-ctx.Done()

	wg.Wait()
	close(latencyChan)
	<-p95Done

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed        : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Requests       : %d\n", result.TotalRequests)
	fmt.Printf("Won            : %d\n", result.WonCount)
	fmt.Printf("Lost           : %d\n", result.LostCount)
	fmt.Printf("Replays        : %d\n", result.ReplayCount)
	fmt.Printf("Errors         : %d\n", result.ErrorCount)

	succeeded := result.TotalRequests - result.ErrorCount
	var avgLatency time.Duration
	if succeeded > 0 {
		avgLatency = time.Duration(result.LatencySum / succeeded)
	}
	fmt.Printf("Actual RPS     : %.2f\n", float64(succeeded)/totalDur.Seconds())
	fmt.Printf("Avg latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency    : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	fmt.Println("Consistency check")
	fmt.Println("==========================================")
	if err := verifyDataConsistency(admin, contestID, codes); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
	fmt.Println("==========================================")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// createNewContest creates an open first-come contest with the given capacity
func createNewContest(admin *rpc.ContestServiceClient, capacity int) (int64, error) {
	now := time.Now().UTC()
	req := connect.NewRequest(&rpc.CreateContestRequest{
		SchoolName:  "Load Test University",
		Name:        fmt.Sprintf("load-test-%d", now.Unix()),
		StartAt:     now.Add(-time.Minute),
		EndAt:       now.Add(time.Hour),
		MailDomains: []string{"loadtest.edu"},
		Capacity:    capacity,
		Policy:      "first_come",
		Prize:       "Load test prize",
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	resp, err := admin.CreateContest(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("create contest failed: %w", err)
	}
	if resp.Msg.Contest == nil {
		return 0, fmt.Errorf("contest response is nil")
	}
	return resp.Msg.Contest.ID, nil
}

// pickStudent returns an email, repeating a previously used one at repeatRatio
func pickStudent(next *atomic.Int64) string {
	seen := next.Load()
	if seen > 0 && rand.Float64() < repeatRatio {
		return studentEmail(rand.Int64N(seen))
	}
	return studentEmail(next.Add(1))
}

func studentEmail(n int64) string {
	return fmt.Sprintf("student%06d@loadtest.edu", n%fixedStudents)
}

// codeBook records which code each student was told they won
type codeBook struct {
	mu     sync.Mutex
	byUser map[string]string
	errors []string
}

func newCodeBook() *codeBook {
	return &codeBook{byUser: make(map[string]string)}
}

func (b *codeBook) record(email, code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.byUser[email]; ok && prev != code {
		b.errors = append(b.errors, fmt.Sprintf("%s received %s then %s", email, prev, code))
		return
	}
	b.byUser[email] = code
}

// doRequest performs a single FinishVerification RPC and collects metrics
func doRequest(client *rpc.VerificationServiceClient, contestID int64, email string, result *PerfResult, codes *codeBook, latencyChan chan<- time.Duration) {
	// Independent context so in-flight calls finish when the test ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := connect.NewRequest(&rpc.FinishVerificationRequest{
		ContestID: contestID,
		FirstName: "Load",
		LastName:  "Tester",
		Email:     email,
	})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.FinishVerification(ctx, req)
	latency := time.Since(start)

	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return
	}

	atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
	select {
	case latencyChan <- latency:
	default:
	}

	if resp.Msg.Replayed {
		atomic.AddInt64(&result.ReplayCount, 1)
	}
	if resp.Msg.Won {
		codes.record(email, resp.Msg.Code)
		if !resp.Msg.Replayed {
			atomic.AddInt64(&result.WonCount, 1)
		}
		return
	}
	if !resp.Msg.Replayed {
		atomic.AddInt64(&result.LostCount, 1)
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := rand.IntN(size * 10); idx < size {
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := make([]int64, len(buf))
			copy(sorted, buf)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			p95Index := int(float64(len(sorted)) * 0.95)
			if p95Index >= len(sorted) {
				p95Index = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// verifyDataConsistency checks issued codes against what clients observed
func verifyDataConsistency(admin *rpc.ContestServiceClient, contestID int64, codes *codeBook) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := admin.GetContest(ctx, connect.NewRequest(&rpc.GetContestRequest{ContestID: contestID}))
	if err != nil {
		return fmt.Errorf("failed to get contest: %w", err)
	}
	contest := resp.Msg.Contest
	if contest == nil {
		return fmt.Errorf("contest not found")
	}

	codes.mu.Lock()
	defer codes.mu.Unlock()

	issued := make(map[string]struct{}, len(contest.IssuedCodes))
	for _, code := range contest.IssuedCodes {
		issued[code] = struct{}{}
	}

	fmt.Printf("Capacity          : %d\n", contest.Capacity)
	fmt.Printf("Issued (server)   : %d\n", len(contest.IssuedCodes))
	fmt.Printf("Winners (server)  : %d\n", contest.Won)
	fmt.Printf("Winners (client)  : %d\n", len(codes.byUser))
	fmt.Printf("Remaining         : %d\n", contest.Remaining)

	if len(codes.errors) > 0 {
		return fmt.Errorf("replay mismatch: %s", codes.errors[0])
	}
	if len(issued) != len(contest.IssuedCodes) {
		return fmt.Errorf("duplicate issued codes reported")
	}
	if len(contest.IssuedCodes) > contest.Capacity {
		return fmt.Errorf("over-issuance: issued=%d > capacity=%d", len(contest.IssuedCodes), contest.Capacity)
	}
	if contest.Won != len(contest.IssuedCodes) {
		return fmt.Errorf("winners=%d but issued codes=%d", contest.Won, len(contest.IssuedCodes))
	}

	seen := make(map[string]string, len(codes.byUser))
	for email, code := range codes.byUser {
		if _, ok := issued[code]; !ok {
			return fmt.Errorf("%s holds code %s that the server never issued", email, code)
		}
		if other, dup := seen[code]; dup {
			return fmt.Errorf("code %s handed to both %s and %s", code, other, email)
		}
		seen[code] = email
	}
	return nil
}
