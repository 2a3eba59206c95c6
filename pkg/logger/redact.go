package logger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const redacted = "***REDACTED***"

var (
	signaturePattern  = regexp.MustCompile(`0x[0-9a-fA-F]{130}`)
	privateKeyPattern = regexp.MustCompile(`\b(0x)?[0-9a-fA-F]{64}\b`)
	jsonSecretPattern = regexp.MustCompile(`"(signature|private_?key|privateKey|webhook_secret|api_key|secret|authorization)"\s*:\s*"[^"]*"`)

	sensitiveKeys = []string{
		"private_key", "privatekey", "secret", "signature",
		"api_key", "apikey", "authorization", "password", "token",
	}
)

// RedactHook 在输出前抹掉私钥、签名和各类密钥
type RedactHook struct{}

// NewRedactHook 创建脱敏 hook
func NewRedactHook() *RedactHook { return &RedactHook{} }

func (h *RedactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *RedactHook) Fire(entry *logrus.Entry) error {
	entry.Message = RedactString(entry.Message)
	if len(entry.Data) == 0 {
		return nil
	}
	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		if IsSensitiveKey(k) && !isFlag(v) {
			data[k] = redacted
			continue
		}
		switch t := v.(type) {
		case string:
			data[k] = RedactString(t)
		case error:
			data[k] = RedactString(t.Error())
		case fmt.Stringer:
			data[k] = RedactString(t.String())
		default:
			data[k] = v
		}
	}
	entry.Data = data
	return nil
}

// IsSensitiveKey 字段名是否属于敏感字段
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// isFlag 布尔和数值（如 api_key_configured）不含密钥内容，原样输出
func isFlag(v any) bool {
	switch v.(type) {
	case bool, int, int32, int64, uint, uint32, uint64, float64:
		return true
	}
	return false
}

// RedactString 脱敏自由文本
func RedactString(s string) string {
	if s == "" {
		return s
	}
	s = jsonSecretPattern.ReplaceAllString(s, `"$1":"`+redacted+`"`)
	s = signaturePattern.ReplaceAllString(s, "0x"+redacted)
	s = privateKeyPattern.ReplaceAllString(s, redacted)
	return s
}

// RedactMap 返回脱敏后的副本（用于输出配置等结构）
func RedactMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitiveKey(k) && !isFlag(v) {
			if s, ok := v.(string); ok && s == "" {
				out[k] = ""
				continue
			}
			out[k] = redacted
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			out[k] = RedactMap(t)
		case string:
			out[k] = RedactString(t)
		default:
			out[k] = v
		}
	}
	return out
}
