package llm

import (
	"cmp"
	"net"
	"net/http"
	"time"

	"weatherdine/internal/infra/config"
)

// Provider HTTP defaults. A handful of API hosts, reused for the life of the
// process.
const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second

	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// NewHTTPClient builds the client a provider talks through. Unset timeouts
// and pool sizes fall back to the defaults; the overall client timeout
// covers connect plus the wait for response headers.
func NewHTTPClient(cfg config.ProviderConfig) *http.Client {
	conn := positive(cfg.ConnTimeout, defaultConnTimeout)
	resp := positive(cfg.RespTimeout, defaultRespTimeout)
	return &http.Client{
		Transport: pooledTransport(conn, resp, cfg.Pool),
		Timeout:   conn + resp,
	}
}

func pooledTransport(conn, resp time.Duration, pool config.PoolConfig) *http.Transport {
	dialer := &net.Dialer{Timeout: conn, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: resp,
		MaxIdleConns:          positive(pool.MaxIdleConns, defaultMaxIdleConns),
		MaxIdleConnsPerHost:   positive(pool.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost),
		MaxConnsPerHost:       positive(pool.MaxConnsPerHost, defaultMaxConnsPerHost),
		IdleConnTimeout:       positive(pool.IdleConnTimeout, defaultIdleConnTimeout),
	}
}

// positive returns v, or def when v is zero or negative.
func positive[T cmp.Ordered](v, def T) T {
	var zero T
	if v <= zero {
		return def
	}
	return v
}
