// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// FailureClass groups transport errors by whether a retry can help.
type FailureClass int

const (
	FailureServer FailureClass = iota
	FailureTimeout
	FailureRateLimit
	FailureClient
	FailureCanceled
)

// Retryable reports whether a call that failed this way is worth repeating.
func (c FailureClass) Retryable() bool {
	return c == FailureServer || c == FailureTimeout || c == FailureRateLimit
}

var statusCodeRe = regexp.MustCompile(`\b([45]\d\d)\b`)

// Classify sorts a transport error. Typed SDK errors are classified by
// their status code; other errors by their message. Unknown errors count as
// server errors.
func Classify(err error) FailureClass {
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return statusClass(ae.StatusCode)
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return statusClass(oe.StatusCode)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return FailureRateLimit
	}
	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return statusClass(code)
	}
	return FailureServer
}

func statusClass(code int) FailureClass {
	switch {
	case code == http.StatusTooManyRequests:
		return FailureRateLimit
	case code == http.StatusRequestTimeout:
		return FailureTimeout
	case code >= 400 && code < 500:
		return FailureClient
	}
	return FailureServer
}

type retryClient struct {
	next       Client
	maxRetries int
}

// WithRetry wraps c so retryable failures are repeated up to maxRetries
// times with exponential backoff.
func WithRetry(c Client, maxRetries int) Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryClient{next: c, maxRetries: maxRetries}
}

func (r *retryClient) Complete(ctx context.Context, prompt string) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := r.next.Complete(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !Classify(err).Retryable() {
			return Response{}, err
		}
	}
	return Response{}, fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}
