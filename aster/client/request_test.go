package client

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/astergate/aster/signing"
	"github.com/betbot/astergate/internal/metrics"
)

const (
	testUser   = "0xdfb0152928802a40d222c162b4808ec34832d7f3"
	testKeyHex = "0xb6fbb3c99c04d8f489f9ac443f5c0dfd08198e096eb2c66d825ca5e09e977b52"
)

func newTestSigner(t *testing.T) *signing.Signer {
	t.Helper()
	key, err := crypto.HexToECDSA(strings.TrimPrefix(testKeyHex, "0x"))
	require.NoError(t, err)
	s, err := signing.NewSigner(testUser, crypto.PubkeyToAddress(key.PublicKey).Hex(), testKeyHex)
	require.NoError(t, err)
	return s
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, url string, maxRetries int, opts ...Option) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleeper(rec.sleep)}, opts...)
	c := New(Config{
		BaseURL:        url,
		Timeout:        2 * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: 2 * time.Second,
	}, newTestSigner(t), opts...)
	t.Cleanup(c.Close)
	return c, rec
}

func mapCount(m *expvar.Map, key string) int64 {
	if v, ok := m.Get(key).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

func TestRequest_InjectsAuthAndSignsOriginalParams(t *testing.T) {
	signer := newTestSigner(t)
	fixed := time.UnixMilli(1_700_000_000_123)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v3/order", r.URL.Path)
		assert.Equal(t, "1700000000123", q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))
		assert.Equal(t, signer.User(), q.Get("user"))
		assert.Equal(t, signer.Address(), q.Get("signer"))

		// 用去掉鉴权字段的参数复算签名
		p := signing.NewParams()
		for k := range q {
			switch k {
			case signing.KeyNonce, signing.KeyUser, signing.KeySigner, signing.KeySignature:
				continue
			}
			p.Set(k, q.Get(k))
		}
		nonce, err := strconv.ParseInt(q.Get("nonce"), 10, 64)
		require.NoError(t, err)
		want, err := signer.Sign(p, nonce)
		require.NoError(t, err)
		assert.Equal(t, want, q.Get("signature"))

		fmt.Fprint(w, `{"orderId":1,"symbol":"BTCUSDT","status":"NEW"}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, signer, WithClock(func() time.Time { return fixed }))
	defer c.Close()

	params := signing.NewParams().Set("symbol", "BTCUSDT").Set("side", "BUY")
	var out map[string]any
	require.NoError(t, c.Request(context.Background(), "post", PathOrder, params, true, &out))
	assert.Equal(t, "NEW", out["status"])

	// 调用方参数未被修改
	assert.Equal(t, []string{"symbol", "side"}, params.Keys())
}

func TestRequest_PublicEndpointIsNotSigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Empty(t, q.Get("signature"))
		assert.Empty(t, q.Get("timestamp"))
		assert.Equal(t, "ETHUSDT", q.Get("symbol"))
		fmt.Fprint(w, `{"symbol":"ETHUSDT","price":"3000.5"}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	defer c.Close()
	tp, err := c.GetTickerPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "3000.5", tp.Price.String())
}

func TestRequest_RateLimitRetryBound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests"}`)
	}))
	defer srv.Close()

	attempts := metrics.ExchangeAttempts.Value()
	retries := mapCount(metrics.ExchangeRetries, "rate_limited")
	failures := mapCount(metrics.ExchangeFailures, "rate_limited")

	c, rec := newTestClient(t, srv.URL, 3)
	err := c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, nil)
	require.Error(t, err)

	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, ce.Kind)
	assert.Equal(t, 4, ce.Attempts)
	assert.Equal(t, attempts+4, metrics.ExchangeAttempts.Value())
	assert.Equal(t, retries+3, mapCount(metrics.ExchangeRetries, "rate_limited"))
	assert.Equal(t, failures+1, mapCount(metrics.ExchangeFailures, "rate_limited"))
	assert.Equal(t, -1003, ce.Code)
	assert.EqualValues(t, 4, atomic.LoadInt32(&hits))

	// 退避：base * 2^attempt，严格递增
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.delays)
	for i := 1; i < len(rec.delays); i++ {
		assert.Greater(t, rec.delays[i], rec.delays[i-1])
	}
}

func TestRequest_BackoffCappedForLargeRetryCounts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, 40)
	err := c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, nil)
	require.Error(t, err)
	assert.EqualValues(t, 41, atomic.LoadInt32(&hits))

	require.Len(t, rec.delays, 40)
	assert.Equal(t, 2*time.Second, rec.delays[0])
	for i, d := range rec.delays {
		assert.Positive(t, d, "attempt %d", i)
		assert.LessOrEqual(t, d, MaxBackoff, "attempt %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, d, rec.delays[i-1], "attempt %d", i)
		}
	}
	assert.Equal(t, MaxBackoff, rec.delays[39])
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		attempt int
		want    time.Duration
	}{
		{"first", 2 * time.Second, 0, 2 * time.Second},
		{"doubles", 2 * time.Second, 4, 32 * time.Second},
		{"capped", 2 * time.Second, 5, MaxBackoff},
		{"shift past int64", 2 * time.Second, 70, MaxBackoff},
		{"base above cap", 90 * time.Second, 0, MaxBackoff},
		{"zero base", 0, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{cfg: Config{RetryBaseDelay: tt.base}}
			assert.Equal(t, tt.want, c.backoff(tt.attempt))
		})
	}
}

func TestRequest_ServerErrorThenSuccess(t *testing.T) {
	var hits int32
	nonces := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonces <- r.URL.Query().Get("nonce")
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "bad gateway")
			return
		}
		fmt.Fprint(w, `[{"asset":"USDT","balance":"100"}]`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, 3)
	var out []map[string]any
	require.NoError(t, c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, &out))
	assert.Len(t, out, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.delays)

	// 每次尝试重新签名
	first, second := <-nonces, <-nonces
	assert.NotEqual(t, first, second)
}

func TestRequest_ServerErrorExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "maintenance")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 1)
	err := c.Request(context.Background(), http.MethodGet, PathAccount, nil, true, nil)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindServer, ce.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ce.Status)
	assert.Equal(t, "maintenance", ce.Msg)
	assert.Equal(t, 2, ce.Attempts)
}

func TestRequest_NonRetryableResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind ErrorKind
		wantCode int
		wantMsg  string
	}{
		{"client error with envelope", http.StatusBadRequest, `{"code":-2019,"msg":"Margin is insufficient."}`, KindAPI, -2019, "Margin is insufficient."},
		{"client error plain body", http.StatusNotFound, `not found`, KindAPI, 0, "not found"},
		{"forbidden", http.StatusForbidden, `{"code":-2015,"msg":"Invalid API-key"}`, KindAPI, -2015, "Invalid API-key"},
		{"error envelope in 200", http.StatusOK, `{"code":-1121,"msg":"Invalid symbol."}`, KindAPI, -1121, "Invalid symbol."},
		{"string code in 200", http.StatusOK, `{"code":"-4046","msg":"No need to change margin type."}`, KindAPI, -4046, "No need to change margin type."},
		{"invalid json", http.StatusOK, `<html>oops</html>`, KindMalformed, 0, "<html>oops</html>"},
		{"empty body", http.StatusOK, ``, KindMalformed, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL, 3)
			err := c.Request(context.Background(), http.MethodPost, PathOrder, nil, true, &map[string]any{})
			ce, ok := AsError(err)
			require.True(t, ok, "err=%v", err)
			assert.Equal(t, tt.wantKind, ce.Kind)
			assert.Equal(t, tt.wantCode, ce.Code)
			assert.Equal(t, tt.wantMsg, ce.Msg)
			assert.Equal(t, 1, ce.Attempts)
			assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
			assert.Empty(t, rec.delays)
		})
	}
}

func TestRequest_SuccessEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"msg":"success"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	res, err := c.ChangeMarginType(context.Background(), "BTCUSDT", "ISOLATED")
	require.NoError(t, err)
	assert.Equal(t, 200, res.Code)
}

func TestRequest_TimeoutIsRetried(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-release:
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &sleepRecorder{}
	c := New(Config{
		BaseURL:        srv.URL,
		Timeout:        50 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: time.Second,
	}, newTestSigner(t), WithSleeper(rec.sleep))
	defer c.Close()

	err := c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, nil)
	ce, ok := AsError(err)
	require.True(t, ok, "err=%v", err)
	assert.Equal(t, KindTimeout, ce.Kind)
	assert.Equal(t, 2, ce.Attempts)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestRequest_TransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, rec := newTestClient(t, url, 2)
	err := c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, nil)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindTransport, ce.Kind)
	assert.Equal(t, 3, ce.Attempts)
	assert.Len(t, rec.delays, 2)
}

func TestRequest_CanceledContext(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{BaseURL: srv.URL, MaxRetries: 3, RetryBaseDelay: time.Millisecond}, newTestSigner(t),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}))
	defer c.Close()

	err := c.Request(ctx, http.MethodGet, PathBalance, nil, true, nil)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindCanceled, ce.Kind)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRequest_InvalidRequests(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	defer c.Close()

	err := c.Request(context.Background(), "PATCH", PathOrder, nil, false, nil)
	assert.True(t, IsKind(err, KindInvalidRequest))

	err = c.Request(context.Background(), http.MethodGet, PathBalance, nil, true, nil)
	assert.True(t, IsKind(err, KindInvalidRequest))
}

type countingLimiter struct{ n int32 }

func (l *countingLimiter) Wait(ctx context.Context) error {
	atomic.AddInt32(&l.n, 1)
	return ctx.Err()
}

func TestRequest_UsesLimiterPerAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	lim := &countingLimiter{}
	c, _ := newTestClient(t, srv.URL, 3, WithLimiter(lim))
	require.NoError(t, c.Request(context.Background(), http.MethodGet, PathAccount, nil, true, nil))
	assert.EqualValues(t, 3, atomic.LoadInt32(&lim.n))
}
