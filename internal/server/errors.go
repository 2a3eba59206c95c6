package server

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/client"
	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/internal/metrics"
	"github.com/betbot/astergate/pkg/logger"
)

// errorResponse 统一错误响应
type errorResponse struct {
	Error                string `json:"error"`
	Detail               string `json:"detail"`
	Code                 string `json:"code"`
	Timestamp            int64  `json:"timestamp"`
	OriginalErrorCode    *int   `json:"original_error_code,omitempty"`
	OriginalErrorMessage string `json:"original_error_message,omitempty"`
	RequestID            string `json:"request_id,omitempty"`
}

// httpError 由 handler 直接构造的错误（鉴权、请求体校验等）
type httpError struct {
	Status int
	Type   string
	Code   string
	Detail string
}

func (e *httpError) Error() string { return e.Detail }

func badRequest(format string, args ...any) *httpError {
	return &httpError{Status: http.StatusBadRequest, Type: "ValidationError", Code: "VALIDATION_ERROR", Detail: fmt.Sprintf(format, args...)}
}

func unauthorized(detail string) *httpError {
	return &httpError{Status: http.StatusUnauthorized, Type: "Unauthorized", Code: "UNAUTHORIZED", Detail: detail}
}

func forbidden(detail string) *httpError {
	return &httpError{Status: http.StatusForbidden, Type: "Forbidden", Code: "FORBIDDEN", Detail: detail}
}

func notFound(detail string) *httpError {
	return &httpError{Status: http.StatusNotFound, Type: "NotFound", Code: "NOT_FOUND", Detail: detail}
}

func internalError(detail string) *httpError {
	return &httpError{Status: http.StatusInternalServerError, Type: "InternalServerError", Code: "INTERNAL_SERVER_ERROR", Detail: detail}
}

const genericInternalDetail = "An unexpected error occurred. Please try again later."

// classify 把任意错误翻译成 HTTP 状态码与错误响应
func (s *Server) classify(err error) (int, errorResponse) {
	resp := errorResponse{Timestamp: s.now().UnixMilli()}

	if he, ok := err.(*httpError); ok {
		resp.Error, resp.Code, resp.Detail = he.Type, he.Code, he.Detail
		return he.Status, resp
	}

	if kind := domain.KindOf(err); kind != 0 {
		resp.Detail = err.Error()
		switch kind {
		case domain.KindNotFound:
			resp.Error, resp.Code = "PositionNotFound", "POSITION_NOT_FOUND"
			return http.StatusNotFound, resp
		case domain.KindFlipIncomplete:
			resp.Error, resp.Code = "FlipIncomplete", "FLIP_INCOMPLETE"
			attachUpstream(&resp, err)
			return http.StatusBadGateway, resp
		default:
			resp.Error = kind.String()
			resp.Code = codeFor(kind)
			return http.StatusBadRequest, resp
		}
	}

	if ce, ok := client.AsError(err); ok {
		attachUpstream(&resp, err)
		resp.Detail = "AsterDEX API error: " + ce.Error()
		switch ce.Kind {
		case client.KindRateLimited:
			resp.Error, resp.Code = "RateLimitError", "RATE_LIMIT_ERROR"
			return http.StatusTooManyRequests, resp
		case client.KindTimeout:
			resp.Error, resp.Code = "TimeoutError", "TIMEOUT_ERROR"
			resp.Detail = "Request to AsterDEX API timed out. Please try again."
			return http.StatusGatewayTimeout, resp
		case client.KindServer:
			resp.Error, resp.Code = "ServerError", "SERVER_ERROR"
			return http.StatusBadGateway, resp
		case client.KindInvalidRequest:
			resp.Error, resp.Code, resp.Detail = "InternalServerError", "INTERNAL_SERVER_ERROR", genericInternalDetail
			resp.OriginalErrorCode, resp.OriginalErrorMessage = nil, ""
			return http.StatusInternalServerError, resp
		default:
			resp.Error, resp.Code = "AsterDEXClientError", "ASTERDEX_CLIENT_ERROR"
			return http.StatusBadGateway, resp
		}
	}

	resp.Error, resp.Code, resp.Detail = "InternalServerError", "INTERNAL_SERVER_ERROR", genericInternalDetail
	return http.StatusInternalServerError, resp
}

func codeFor(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindInvalidParameter:
		return "INVALID_PARAMETER"
	case domain.KindInvalidLeverage:
		return "INVALID_LEVERAGE"
	case domain.KindInvalidMarginType:
		return "INVALID_MARGIN_TYPE"
	case domain.KindInvalidState:
		return "INVALID_STATE"
	}
	return "BAD_REQUEST"
}

// attachUpstream 透传交易所原始错误码
func attachUpstream(resp *errorResponse, err error) {
	ce, ok := client.AsError(err)
	if !ok {
		return
	}
	if ce.Code != 0 {
		code := ce.Code
		resp.OriginalErrorCode = &code
	}
	resp.OriginalErrorMessage = ce.Msg
}

// writeError 记录日志并写出错误响应
func (s *Server) writeError(c *gin.Context, err error) {
	status, resp := s.classify(err)
	resp.RequestID = requestIDFrom(c)
	metrics.ErrorResponses.Add(resp.Error, 1)

	if status == http.StatusTooManyRequests {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(s.cfg.RetryAfter.Seconds()))))
	}

	entry := logger.WithFields(logrus.Fields{
		"request_id": resp.RequestID,
		"path":       c.Request.URL.Path,
		"status":     status,
		"error_type": resp.Error,
	}).WithError(err)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("request failed")
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		entry.Warn("request rejected")
	default:
		entry.Info("request failed")
	}

	c.AbortWithStatusJSON(status, resp)
}
