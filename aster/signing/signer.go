package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidAddress    = errors.New("signing: invalid address")
	ErrInvalidPrivateKey = errors.New("signing: invalid private key")
	ErrSignerMismatch    = errors.New("signing: private key does not match signer address")
)

// payloadArgs (string, address, address, uint256)
var payloadArgs = func() abi.Arguments {
	stringTy, _ := abi.NewType("string", "", nil)
	addressTy, _ := abi.NewType("address", "", nil)
	uintTy, _ := abi.NewType("uint256", "", nil)
	return abi.Arguments{
		{Name: "params", Type: stringTy},
		{Name: "user", Type: addressTy},
		{Name: "signer", Type: addressTy},
		{Name: "nonce", Type: uintTy},
	}
}()

// Signer AsterDEX v3 请求签名器
// user 为主账户地址，signer 为被授权代签的 API 钱包地址，privateKey 控制 signer
type Signer struct {
	user       common.Address
	signer     common.Address
	privateKey *ecdsa.PrivateKey

	mu        sync.Mutex
	lastNonce int64
	now       func() time.Time
}

// Option 签名器选项
type Option func(*Signer)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner 创建签名器，地址或私钥不合法、私钥与 signer 不匹配时直接返回错误
func NewSigner(user, signer, privateKey string, opts ...Option) (*Signer, error) {
	userAddr, err := parseAddress(user)
	if err != nil {
		return nil, fmt.Errorf("user %w", err)
	}
	signerAddr, err := parseAddress(signer)
	if err != nil {
		return nil, fmt.Errorf("signer %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	derived := crypto.PubkeyToAddress(key.PublicKey)
	if derived != signerAddr {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrSignerMismatch, lower(signerAddr), lower(derived))
	}

	s := &Signer{
		user:       userAddr,
		signer:     signerAddr,
		privateKey: key,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		raw = "0x" + raw
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func lower(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// User 主账户地址（小写，带 0x）
func (s *Signer) User() string { return lower(s.user) }

// Address signer 地址（小写，带 0x）
func (s *Signer) Address() string { return lower(s.signer) }

// Nonce 生成微秒级 nonce，进程内严格递增
// 时钟回拨时沿用 last+1 并告警
func (s *Signer) Nonce() int64 {
	n := s.now().UnixMicro()

	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= s.lastNonce {
		logrus.WithFields(logrus.Fields{
			"clock_nonce": n,
			"last_nonce":  s.lastNonce,
		}).Warn("nonce clock regression, bumping past last issued nonce")
		n = s.lastNonce + 1
	}
	s.lastNonce = n
	return n
}

// Sign 计算参数签名：keccak256(abi.encode(payload, user, signer, nonce)) 的 secp256k1 可恢复签名
func (s *Signer) Sign(params *Params, nonce int64) (string, error) {
	if nonce < 0 {
		return "", fmt.Errorf("signing: negative nonce %d", nonce)
	}
	encoded, err := payloadArgs.Pack(params.Canonical(), s.user, s.signer, big.NewInt(nonce))
	if err != nil {
		return "", fmt.Errorf("signing: abi encode: %w", err)
	}
	hash := crypto.Keccak256(encoded)

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing: sign hash: %w", err)
	}
	// v: 0/1 -> 27/28
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// Authorize 返回带鉴权字段的新参数集，不修改入参
func (s *Signer) Authorize(params *Params) (*Params, error) {
	out := params.Clone()
	for k := range authKeys {
		out.Delete(k)
	}

	nonce := s.Nonce()
	sig, err := s.Sign(out, nonce)
	if err != nil {
		return nil, err
	}
	out.Set(KeyNonce, nonce)
	out.Set(KeyUser, s.User())
	out.Set(KeySigner, s.Address())
	out.Set(KeySignature, sig)
	return out, nil
}
