package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/signing"
	"github.com/betbot/astergate/internal/metrics"
	"github.com/betbot/astergate/pkg/logger"
)

const maxErrorBody = 512

// Request 执行一次逻辑调用：按需签名、发送、分类响应，瞬时错误按指数退避重试。
// 成功时把 JSON 响应解码到 out（out 可为 nil），失败时返回 *Error。
// 每次尝试都会重新生成 timestamp/nonce 并重新签名。
func (c *Client) Request(ctx context.Context, method, endpoint string, params *signing.Params, requiresAuth bool, out any) error {
	if cerr := c.request(ctx, method, endpoint, params, requiresAuth, out); cerr != nil {
		metrics.ExchangeFailures.Add(cerr.Kind.String(), 1)
		return cerr
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, endpoint string, params *signing.Params, requiresAuth bool, out any) *Error {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return &Error{Kind: KindInvalidRequest, Method: method, Endpoint: endpoint, Err: errors.New("unsupported method")}
	}
	if requiresAuth && c.auth == nil {
		return &Error{Kind: KindInvalidRequest, Method: method, Endpoint: endpoint, Err: errors.New("no credentials configured")}
	}
	if params == nil {
		params = signing.NewParams()
	}

	log := logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"auth":     requiresAuth,
	})

	var last *Error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			metrics.ExchangeRetries.Add(last.Kind.String(), 1)
			log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"delay":   delay.String(),
				"reason":  last.Kind.String(),
			}).Warn("retrying exchange request")
			if err := c.sleep(ctx, delay); err != nil {
				return c.contextError(ctx, method, endpoint, attempt, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.contextError(ctx, method, endpoint, attempt, err)
			}
		}

		send, err := c.prepare(params, requiresAuth)
		if err != nil {
			return &Error{Kind: KindInvalidRequest, Method: method, Endpoint: endpoint, Attempts: attempt + 1, Err: err}
		}

		metrics.ExchangeAttempts.Add(1)
		start := time.Now()
		status, body, err := c.do(ctx, method, endpoint, send)
		entry := log.WithFields(logrus.Fields{
			"attempt":    attempt + 1,
			"status":     status,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})

		cerr := c.classify(ctx, method, endpoint, status, body, err, out)
		if cerr == nil {
			entry.Debug("exchange request ok")
			return nil
		}
		cerr.Attempts = attempt + 1
		if !cerr.Retryable() || ctx.Err() != nil {
			entry.WithError(cerr).Warn("exchange request failed")
			return cerr
		}
		entry.WithError(cerr).Info("exchange request attempt failed")
		last = cerr
	}

	log.WithError(last).Error("exchange request retries exhausted")
	return last
}

// backoff 第 attempt 次失败后的等待时间：base * 2^attempt，封顶 MaxBackoff
func (c *Client) backoff(attempt int) time.Duration {
	base := c.cfg.RetryBaseDelay
	if base <= 0 {
		return 0
	}
	if base >= MaxBackoff {
		return MaxBackoff
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d >= MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return d
}

// prepare 注入 timestamp/recvWindow 并签名，不修改调用方的参数集
func (c *Client) prepare(params *signing.Params, requiresAuth bool) (*signing.Params, error) {
	if !requiresAuth {
		return params.Clone(), nil
	}
	p := params.Clone()
	p.Set("timestamp", c.now().UnixMilli())
	p.Set("recvWindow", c.cfg.RecvWindow)
	return c.auth.Authorize(p)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params *signing.Params) (int, []byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params.Values())

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.Body(), nil
}

func (c *Client) contextError(ctx context.Context, method, endpoint string, attempts int, err error) *Error {
	kind := KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Method: method, Endpoint: endpoint, Attempts: attempts, Err: err}
}

func (c *Client) classify(ctx context.Context, method, endpoint string, status int, body []byte, err error, out any) *Error {
	e := &Error{Method: method, Endpoint: endpoint, Status: status}

	if err != nil {
		e.Err = err
		switch {
		case ctx.Err() != nil:
			// 调用方取消或超出调用方 deadline，不再重试
			return c.contextError(ctx, method, endpoint, 0, ctx.Err())
		case isTimeout(err):
			e.Kind = KindTimeout
		default:
			e.Kind = KindTransport
		}
		return e
	}

	code, msg, hasEnvelope := parseEnvelope(body)
	if hasEnvelope {
		e.Code, e.Msg = code, msg
	}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		return e
	case status >= 500:
		e.Kind = KindServer
		if !hasEnvelope {
			e.Msg = truncate(body)
		}
		return e
	case status >= 400:
		e.Kind = KindAPI
		if !hasEnvelope {
			e.Msg = truncate(body)
		}
		return e
	case status < 200 || status >= 300:
		e.Kind = KindMalformed
		e.Msg = "unexpected status"
		return e
	}

	if !json.Valid(body) {
		e.Kind = KindMalformed
		e.Msg = truncate(body)
		return e
	}
	// 2xx 里也可能是错误包体；code 为 0/200 的是成功回执（如 marginType）
	if hasEnvelope && code != 0 && code != http.StatusOK {
		e.Kind = KindAPI
		return e
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			e.Kind = KindMalformed
			e.Msg = truncate(body)
			e.Err = err
			return e
		}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// parseEnvelope 识别 {"code":..., "msg":...} 结构
func parseEnvelope(body []byte) (int, string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, "", false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return 0, "", false
	}
	rawCode, hasCode := raw["code"]
	rawMsg, hasMsg := raw["msg"]
	if !hasCode || !hasMsg {
		return 0, "", false
	}
	code, err := strconv.Atoi(strings.Trim(string(rawCode), `"`))
	if err != nil {
		return 0, "", false
	}
	var msg string
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		msg = string(rawMsg)
	}
	return code, msg, true
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
