package signing

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 鉴权字段，永远不参与签名 payload
const (
	KeyNonce     = "nonce"
	KeyUser      = "user"
	KeySigner    = "signer"
	KeySignature = "signature"
)

var authKeys = map[string]struct{}{
	KeyNonce:     {},
	KeyUser:      {},
	KeySigner:    {},
	KeySignature: {},
}

// Params 有序的请求参数构建器
// 值在 Set 时即转换为规范字符串；nil 值视为缺省，不会进入参数集
type Params struct {
	keys   []string
	values map[string]string
}

// NewParams 创建空参数集
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Set 设置参数（重复 key 覆盖原值，保留首次插入顺序）
// v 为 nil 或 nil 指针时删除该 key
func (p *Params) Set(key string, v any) *Params {
	s, ok := Stringify(v)
	if !ok {
		p.Delete(key)
		return p
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = s
	return p
}

// SetIf 仅在 cond 为 true 时设置参数
func (p *Params) SetIf(cond bool, key string, v any) *Params {
	if cond {
		return p.Set(key, v)
	}
	return p
}

// Get 读取参数
func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[key]
	return v, ok
}

// Delete 删除参数
func (p *Params) Delete(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len 参数个数
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys 按插入顺序返回 key
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Clone 深拷贝
func (p *Params) Clone() *Params {
	c := NewParams()
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		c.keys = append(c.keys, k)
		c.values[k] = p.values[k]
	}
	return c
}

// Values 转为 url.Values（发送用）
func (p *Params) Values() url.Values {
	v := make(url.Values, p.Len())
	if p == nil {
		return v
	}
	for _, k := range p.keys {
		v.Set(k, p.values[k])
	}
	return v
}

// Canonical 返回签名 payload：去掉鉴权字段后按 key 字节序排序的紧凑 JSON 对象
func (p *Params) Canonical() string {
	keys := make([]string, 0, p.Len())
	if p != nil {
		for _, k := range p.keys {
			if _, auth := authKeys[k]; auth {
				continue
			}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(&b, k)
		b.WriteByte(':')
		writeQuoted(&b, p.values[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Stringify 把参数值转换为规范字符串
// 第二个返回值为 false 表示值缺省（nil / nil 指针）
func Stringify(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case decimal.Decimal:
		return t.String(), true
	case time.Time:
		return strconv.FormatInt(t.UnixMilli(), 10), true
	case *time.Time:
		if t == nil {
			return "", false
		}
		return strconv.FormatInt(t.UnixMilli(), 10), true
	case fmt.Stringer:
		if isNilPointer(v) {
			return "", false
		}
		return t.String(), true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		return Stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(v), true
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
