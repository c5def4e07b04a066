package httpclient

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/laerinok/vs-mods-updater/internal/perf"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

type Doer interface {
	Do(request *http.Request) (*http.Response, error)
}

type RetryConfig struct {
	MaxRetries int
	Interval   time.Duration
}

// RLHTTPClient is an http client with a shared rate limiter and bounded
// retries. Retries happen only here, at the transport layer; callers never
// re-issue requests themselves.
type RLHTTPClient struct {
	client      *http.Client
	Ratelimiter *rate.Limiter
	RetryConfig *RetryConfig

	sleep func(time.Duration)
}

func (client *RLHTTPClient) Do(request *http.Request) (*http.Response, error) {
	ctx, requestSpan := perf.StartSpan(request.Context(), "net.http.request",
		perf.WithAttributes(
			attribute.String("url", request.URL.String()),
			attribute.String("method", request.Method),
			attribute.String("host", request.URL.Host),
		),
	)
	defer requestSpan.End()
	retryConfig := client.retryConfig()

	var response *http.Response
	var err error

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		if waitErr := client.Ratelimiter.Wait(ctx); waitErr != nil {
			requestSpan.SetAttributes(attribute.Bool("success", false))
			if IsTimeoutError(waitErr) {
				return nil, WrapTimeoutError(waitErr)
			}
			return nil, fmt.Errorf("rate limit burst exceeded %w", waitErr)
		}

		response, err = client.client.Do(request.WithContext(ctx))
		if err != nil {
			requestSpan.SetAttributes(
				attribute.Bool("success", false),
				attribute.String("error_type", fmt.Sprintf("%T", err)),
			)
			return nil, WrapTimeoutError(err)
		}

		if !shouldRetry(response, attempt, retryConfig) {
			break
		}

		if drainErr := drainAndClose(response.Body); drainErr != nil {
			requestSpan.SetAttributes(attribute.String("cleanup_error", drainErr.Error()))
		}
		client.sleepFunc()(backoffWithJitter(retryConfig.Interval, attempt))
	}

	requestSpan.SetAttributes(attribute.Bool("success", err == nil))
	if response != nil {
		requestSpan.SetAttributes(attribute.Int("status", response.StatusCode))
	}
	return response, err
}

func (client *RLHTTPClient) retryConfig() RetryConfig {
	if client.RetryConfig != nil {
		return *client.RetryConfig
	}
	return RetryConfig{
		MaxRetries: 3,
		Interval:   1 * time.Second,
	}
}

func (client *RLHTTPClient) sleepFunc() func(time.Duration) {
	if client.sleep != nil {
		return client.sleep
	}
	return time.Sleep
}

// SetSleepForTesting replaces the retry sleep and returns a restore func.
func (client *RLHTTPClient) SetSleepForTesting(sleep func(time.Duration)) func() {
	previous := client.sleep
	client.sleep = sleep
	return func() {
		client.sleep = previous
	}
}

func shouldRetry(response *http.Response, attempt int, retryConfig RetryConfig) bool {
	return response.StatusCode >= 500 && response.StatusCode < 600 && attempt < retryConfig.MaxRetries
}

// backoffWithJitter doubles the base interval per attempt and randomizes the
// result to half-to-full of that window so parallel workers do not retry in
// lockstep.
func backoffWithJitter(interval time.Duration, attempt int) time.Duration {
	if interval <= 0 {
		return 0
	}
	window := interval << uint(attempt)
	half := window / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func NewRLClient(limiter *rate.Limiter) *RLHTTPClient {
	client := &RLHTTPClient{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Ratelimiter: limiter,
	}
	return client
}

func NoRetries() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 0,
		Interval:   0,
	}
}

func drainAndClose(body io.ReadCloser) error {
	if body == nil {
		return nil
	}

	readErr := drainBody(body)
	closeErr := body.Close()
	if readErr != nil && closeErr != nil {
		return errors.Join(readErr, closeErr)
	}
	if readErr != nil {
		return readErr
	}
	return closeErr
}

func drainBody(body io.Reader) error {
	_, err := io.Copy(io.Discard, body)
	return err
}
