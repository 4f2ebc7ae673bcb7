package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/classytest/dispatcher/internal/model"
)

// sinkBurstRate caps outbound postbacks so a redelivery storm (the
// at-least-once postback case the idempotency store guards against)
// can't hammer the collector. Grounded in the teacher's
// scheduler.TokenBucketLimiter (control_plane/scheduler/limiter.go),
// simplified from a per-key map to a single shared bucket since each
// process only ever talks to one result/grade collector.
const sinkBurstRate = 20

// HTTPResultSink POSTs results to a fixed collector URL. Grounded in
// the teacher's Dispatcher.DispatchJob (control_plane/jobs.go):
// short client timeout, status-code check, no retry.
type HTTPResultSink struct {
	URL     string
	Client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPResultSink builds a sink with the teacher's 5s client timeout.
func NewHTTPResultSink(url string) *HTTPResultSink {
	return &HTTPResultSink{
		URL:     url,
		Client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(sinkBurstRate, sinkBurstRate*2),
	}
}

func (s *HTTPResultSink) SubmitResult(ctx context.Context, result model.AutoTestResult) (*Rejection, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit result sink: %w", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return &Rejection{Message: fmt.Sprintf("failed to contact result sink: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &Rejection{Message: fmt.Sprintf("result sink returned status %d", resp.StatusCode)}, nil
	}
	return nil, nil
}

// HTTPGradeSink POSTs grade transports to a fixed collector URL.
type HTTPGradeSink struct {
	URL     string
	Client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGradeSink builds a grade sink with a short client timeout.
func NewHTTPGradeSink(url string) *HTTPGradeSink {
	return &HTTPGradeSink{
		URL:     url,
		Client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(sinkBurstRate, sinkBurstRate*2),
	}
}

func (s *HTTPGradeSink) SubmitGrade(ctx context.Context, grade model.GradeTransport) (*Rejection, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit grade sink: %w", err)
	}

	data, err := json.Marshal(grade)
	if err != nil {
		return nil, fmt.Errorf("marshal grade: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return &Rejection{Message: fmt.Sprintf("failed to contact grade sink: %v", err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &Rejection{Message: fmt.Sprintf("grade sink returned status %d", resp.StatusCode)}, nil
	}
	return nil, nil
}
