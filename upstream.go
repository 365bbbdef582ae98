package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("photosearch")

// Upstream performs GET requests against one photo provider. Requests go
// through the response cache first; only misses wait on the rate limiter and
// pass the circuit breaker.
type Upstream struct {
	name    string
	http    *http.Client
	cache   *ReqCache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *log.Logger
}

type UpstreamConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

func NewUpstream(name string, cfg UpstreamConfig, cache *ReqCache) *Upstream {
	logger := log.New(os.Stderr, "("+name+") ", log.LstdFlags)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// 4xx answers mean the request was wrong, not that the provider is down.
		IsSuccessful: func(err error) bool {
			var te *TransportError
			if !errors.As(err, &te) {
				return err == nil
			}
			return te.Status != 0 && te.Status < 500
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("circuit %s: %s -> %s", name, from, to)
		},
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Upstream{
		name:    name,
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     logger,
	}
}

// GetJSON issues req and decodes a 2xx JSON body into out. Every failure is a *TransportError.
func (u *Upstream) GetJSON(ctx context.Context, req *http.Request, out any) error {
	ctx, span := tracer.Start(ctx, u.name+".get")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", req.URL.Redacted()))

	start := time.Now()
	resp, err := u.cache.CachedFetch(req.WithContext(ctx), u.fetch)
	upstreamDuration.WithLabelValues(u.name).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequests.WithLabelValues(u.name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.log.Println("Failed to fetch:", err)
		return asTransportError(u.name, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		upstreamRequests.WithLabelValues(u.name, "decode_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		u.log.Println("Failed to decode response", err)
		return &TransportError{Provider: u.name, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	upstreamRequests.WithLabelValues(u.name, "ok").Inc()
	return nil
}

func (u *Upstream) fetch(req *http.Request) (*http.Response, error) {
	if err := u.limiter.Wait(req.Context()); err != nil {
		return nil, &TransportError{Provider: u.name, Err: fmt.Errorf("rate limit: %w", err)}
	}
	v, err := u.breaker.Execute(func() (interface{}, error) {
		resp, err := u.http.Do(req)
		if err != nil {
			return nil, &TransportError{Provider: u.name, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &TransportError{
				Provider: u.name,
				Status:   resp.StatusCode,
				Err:      errors.New(statusMessage(resp.StatusCode, body)),
			}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}

func asTransportError(provider string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	return &TransportError{Provider: provider, Err: err}
}

func statusMessage(status int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return http.StatusText(status)
	}
	return msg
}
