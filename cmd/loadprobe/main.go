// Command loadprobe drives concurrent UseCampaign calls against a running
// campaign engine and checks that every user keeps seeing one token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/kkkkikiki/campaign/internal/model"
	"github.com/kkkkikiki/campaign/internal/rpc"
	"github.com/kkkkikiki/campaign/internal/service"
)

// ProbeResult gathers aggregated metrics for the run.
// LatencySum & P95Latency are in nanoseconds.
type ProbeResult struct {
	TotalRequests int64
	SuccessCount  int64
	LimitedCount  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const defaultTimeout = 30 * time.Second

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Campaign engine base URL")
	users := flag.Int("users", 20, "Number of simulated users")
	rps := flag.Int("rps", 200, "Target requests per second")
	duration := flag.Duration("duration", 30*time.Second, "Probe duration")
	firstUser := flag.Int64("first-user", 1_000_000, "First simulated user ID")
	adminUser := flag.Int64("admin-user", 1, "Administrator user ID that creates the probe campaign")
	flag.Parse()

	transport := &http.Transport{
		MaxIdleConns:        *users * 4,
		MaxIdleConnsPerHost: *users * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{Transport: transport, Timeout: defaultTimeout}
	client := rpc.NewCampaignServiceClient(httpClient, *baseURL)

	campaignID, err := createProbeCampaign(client, *adminUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create campaign: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created probe campaign %d\n", campaignID)

	assignments := make(map[int64]int64, *users) // user -> assignment
	for i := 0; i < *users; i++ {
		userID := *firstUser + int64(i)
		assignmentID, err := assignProbeUser(client, userID, campaignID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to assign user %d: %v\n", userID, err)
			os.Exit(1)
		}
		assignments[userID] = assignmentID
	}

	fmt.Println("==========================================")
	fmt.Printf("campaign : %d\n", campaignID)
	fmt.Printf("users    : %d\n", *users)
	fmt.Printf("rps      : %d\n", *rps)
	fmt.Printf("duration : %v\n", *duration)
	fmt.Println("==========================================")

	burst := *rps / *users
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(*rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var result ProbeResult
	var wg sync.WaitGroup
	tokens := newTokenLedger()

	latencyChan := make(chan time.Duration, 4096)
	trackerDone := make(chan struct{})
	go func() {
		trackP95(latencyChan, &result)
		close(trackerDone)
	}()

	for userID, assignmentID := range assignments {
		wg.Add(1)
		go func(userID, assignmentID int64) {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				doRequest(client, userID, assignmentID, tokens, &result, latencyChan)
			}
		}(userID, assignmentID)
	}

	start := time.Now()
	<-ctx.Done()

	wg.Wait()
	close(latencyChan)
	<-trackerDone

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Printf("elapsed        : %.2fs\n", totalDur.Seconds())
	fmt.Printf("requests       : %d\n", result.TotalRequests)
	fmt.Printf("succeeded      : %d\n", result.SuccessCount)
	fmt.Printf("rate limited   : %d\n", result.LimitedCount)
	fmt.Printf("failed         : %d\n", result.ErrorCount)

	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}
	fmt.Printf("actual rps     : %.2f\n", float64(result.SuccessCount)/totalDur.Seconds())
	fmt.Printf("avg latency    : %v\n", avgLatency)
	fmt.Printf("p95 latency    : %v\n", time.Duration(result.P95Latency))
	fmt.Println("==========================================")

	if err := tokens.verify(); err != nil {
		fmt.Printf("consistency check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("consistency check passed: one token per user")
}

func createProbeCampaign(client *rpc.CampaignServiceClient, adminUserID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	req := connect.NewRequest(&rpc.CreateCampaignRequest{Campaign: model.Campaign{
		Title:                "loadprobe " + now.Format(time.RFC3339),
		StartDate:            now.Add(-time.Minute),
		EndDate:              now.Add(24 * time.Hour),
		IsActive:             true,
		IsSingleUse:          true,
		UsageDurationMinutes: 60,
		RuleType:             model.RuleTypeDynamic,
	}})
	req.Header().Set(service.UserIDHeader, strconv.FormatInt(adminUserID, 10))

	resp, err := client.CreateCampaign(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("create campaign failed: %w", err)
	}
	return resp.Msg.Campaign.ID, nil
}

func assignProbeUser(client *rpc.CampaignServiceClient, userID, campaignID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	assignReq := connect.NewRequest(&emptypb.Empty{})
	assignReq.Header().Set(service.UserIDHeader, strconv.FormatInt(userID, 10))
	if _, err := client.AssignEligibleCampaigns(ctx, assignReq); err != nil {
		return 0, err
	}

	listReq := connect.NewRequest(&emptypb.Empty{})
	listReq.Header().Set(service.UserIDHeader, strconv.FormatInt(userID, 10))
	resp, err := client.ListActiveCampaigns(ctx, listReq)
	if err != nil {
		return 0, err
	}
	for _, row := range resp.Msg.Campaigns {
		if row.Campaign.ID == campaignID {
			return row.Assignment.ID, nil
		}
	}
	return 0, errors.New("probe campaign was not assigned")
}

// doRequest performs a single UseCampaign RPC and collects metrics.
func doRequest(client *rpc.CampaignServiceClient, userID, assignmentID int64, tokens *tokenLedger, result *ProbeResult, latencyChan chan<- time.Duration) {
	// Use independent context to avoid cancellation when the probe ends
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req := connect.NewRequest(&rpc.UseCampaignRequest{AssignmentID: assignmentID})
	req.Header().Set(service.UserIDHeader, strconv.FormatInt(userID, 10))

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.UseCampaign(ctx, req)
	latency := time.Since(start)

	switch {
	case connect.CodeOf(err) == connect.CodeResourceExhausted:
		atomic.AddInt64(&result.LimitedCount, 1)
	case err != nil || resp.Msg.Token == "":
		atomic.AddInt64(&result.ErrorCount, 1)
	default:
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		tokens.record(userID, resp.Msg.Token)
		select {
		case latencyChan <- latency:
		default:
		}
	}
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *ProbeResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
			buf[idx] = lat.Nanoseconds()
		}

		if len(buf) >= 100 && len(buf)%100 == 0 {
			sorted := append([]int64(nil), buf...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			p95Index := int(float64(len(sorted)) * 0.95)
			if p95Index >= len(sorted) {
				p95Index = len(sorted) - 1
			}
			atomic.StoreInt64(&result.P95Latency, sorted[p95Index])
		}
	}
}

// tokenLedger records the distinct tokens each user received.
type tokenLedger struct {
	mu     sync.Mutex
	tokens map[int64]map[string]struct{}
}

func newTokenLedger() *tokenLedger {
	return &tokenLedger{tokens: make(map[int64]map[string]struct{})}
}

func (l *tokenLedger) record(userID int64, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen, ok := l.tokens[userID]
	if !ok {
		seen = make(map[string]struct{})
		l.tokens[userID] = seen
	}
	seen[token] = struct{}{}
}

// verify fails when any user saw more than one token. The probe campaign's
// tokens outlive the run, so reissuing would mean a lost update.
func (l *tokenLedger) verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, seen := range l.tokens {
		if len(seen) > 1 {
			return fmt.Errorf("user %d received %d distinct tokens", userID, len(seen))
		}
	}
	return nil
}
