package httpclient

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/pkg/circuitbreaker"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration
	KeepAlive           time.Duration

	// Per-host request pacing. Zero disables it.
	RateLimit float64
	RateBurst int

	FailureThreshold int
	BreakerCooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAlive:           30 * time.Second,
		RateLimit:           10,
		RateBurst:           5,
		FailureThreshold:    5,
		BreakerCooldown:     30 * time.Second,
	}
}

// PooledClient shares one transport across every remote instance and keeps a
// rate limiter and circuit breaker per host. Requests are never retried.
type PooledClient struct {
	client   *http.Client
	breakers *circuitbreaker.Manager
	config   Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewPooledClient(config Config) *PooledClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &PooledClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.ResponseTimeout,
		},
		breakers: circuitbreaker.NewManager(circuitbreaker.Config{
			FailureThreshold: config.FailureThreshold,
			Cooldown:         config.BreakerCooldown,
			OnStateChange: func(host string, from, to circuitbreaker.State) {
				log.Warn().
					Str("host", host).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			},
		}),
		config:   config,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Do waits for the host's rate limiter, checks its breaker and sends the
// request. Transport errors and 5xx responses count as breaker failures.
func (p *PooledClient) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host

	if limiter := p.limiter(host); limiter != nil {
		if err := limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	cb := p.breakers.Get(host)
	if err := cb.Allow(); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	cb.Record(err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}

func (p *PooledClient) limiter(host string) *rate.Limiter {
	if p.config.RateLimit <= 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[host]
	if !ok {
		burst := p.config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(p.config.RateLimit), burst)
		p.limiters[host] = l
	}
	return l
}

func (p *PooledClient) CircuitStates() map[string]circuitbreaker.State {
	return p.breakers.States()
}

func (p *PooledClient) CloseIdleConnections() {
	p.client.CloseIdleConnections()
}
