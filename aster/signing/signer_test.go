package signing

import (
	"math/big"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser   = "0xdfb0152928802a40d222c162b4808ec34832d7f3"
	testKeyHex = "0xb6fbb3c99c04d8f489f9ac443f5c0dfd08198e096eb2c66d825ca5e09e977b52"
)

func testSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	key, err := crypto.HexToECDSA(strings.TrimPrefix(testKeyHex, "0x"))
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	s, err := NewSigner(testUser, signerAddr, testKeyHex, opts...)
	require.NoError(t, err)
	return s
}

func TestNewSigner_Validation(t *testing.T) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(testKeyHex, "0x"))
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	tests := []struct {
		name    string
		user    string
		signer  string
		key     string
		wantErr error
	}{
		{"bad user", "0x1234", signerAddr, testKeyHex, ErrInvalidAddress},
		{"bad signer", testUser, "not-an-address", testKeyHex, ErrInvalidAddress},
		{"bad key", testUser, signerAddr, "0xzz", ErrInvalidPrivateKey},
		{"short key", testUser, signerAddr, "0xabcd", ErrInvalidPrivateKey},
		{"mismatch", testUser, testUser, testKeyHex, ErrSignerMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.user, tt.signer, tt.key)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewSigner_NormalizesAddresses(t *testing.T) {
	key, _ := crypto.HexToECDSA(strings.TrimPrefix(testKeyHex, "0x"))
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).Hex()

	// 无 0x 前缀、私钥无 0x 前缀也能通过
	s, err := NewSigner(strings.TrimPrefix(strings.ToUpper(testUser), "0X"), signerAddr, strings.TrimPrefix(testKeyHex, "0x"))
	require.NoError(t, err)
	assert.Equal(t, testUser, s.User())
	assert.Equal(t, strings.ToLower(signerAddr), s.Address())
}

func TestSign_DeterministicAcrossInsertionOrder(t *testing.T) {
	s := testSigner(t)

	a := NewParams().
		Set("symbol", "BTCUSDT").
		Set("side", "BUY").
		Set("type", "MARKET").
		Set("quantity", decimal.RequireFromString("0.010")).
		Set("timestamp", int64(1700000000000)).
		Set("recvWindow", 5000)
	b := NewParams().
		Set("recvWindow", "5000").
		Set("timestamp", "1700000000000").
		Set("quantity", "0.010").
		Set("type", "MARKET").
		Set("side", "BUY").
		Set("symbol", "BTCUSDT")

	require.Equal(t, a.Canonical(), b.Canonical())

	const nonce = int64(1700000000000123)
	sa, err := s.Sign(a, nonce)
	require.NoError(t, err)
	sb, err := s.Sign(b, nonce)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)

	assert.True(t, strings.HasPrefix(sa, "0x"))
	assert.Len(t, sa, 2+130)
	assert.Equal(t, strings.ToLower(sa), sa)
}

func TestSign_RecoversSignerAddress(t *testing.T) {
	s := testSigner(t)
	p := NewParams().Set("symbol", "ETHUSDT").Set("timestamp", 1)

	const nonce = int64(42)
	sigHex, err := s.Sign(p, nonce)
	require.NoError(t, err)

	sig := common.FromHex(sigHex)
	require.Len(t, sig, 65)
	v := sig[64]
	require.True(t, v == 27 || v == 28, "v=%d", v)

	encoded, err := payloadArgs.Pack(p.Canonical(), s.user, s.signer, bigInt(nonce))
	require.NoError(t, err)
	hash := crypto.Keccak256(encoded)

	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, s.signer, crypto.PubkeyToAddress(*pub))
}

func TestSign_NonceChangesSignature(t *testing.T) {
	s := testSigner(t)
	p := NewParams().Set("symbol", "BTCUSDT")
	s1, err := s.Sign(p, 1)
	require.NoError(t, err)
	s2, err := s.Sign(p, 2)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestAuthorize_PayloadExcludesAuthFields(t *testing.T) {
	s := testSigner(t)
	p := NewParams().
		Set("symbol", "BTCUSDT").
		Set("nonce", 99).
		Set("signature", "0xdead")

	out, err := s.Authorize(p)
	require.NoError(t, err)

	// 入参不被修改
	_, hasUser := p.Get(KeyUser)
	assert.False(t, hasUser)

	for _, k := range []string{KeyNonce, KeyUser, KeySigner, KeySignature} {
		_, ok := out.Get(k)
		assert.True(t, ok, k)
	}
	payload := out.Canonical()
	assert.Equal(t, `{"symbol":"BTCUSDT"}`, payload)
	for _, k := range []string{KeyNonce, KeyUser, KeySigner, KeySignature} {
		assert.NotContains(t, payload, `"`+k+`"`)
	}

	// 签名可以用剥离后的参数和注入的 nonce 复现
	nonceStr, _ := out.Get(KeyNonce)
	sig, _ := out.Get(KeySignature)
	nonce, err := strconv.ParseInt(nonceStr, 10, 64)
	require.NoError(t, err)
	want, err := s.Sign(NewParams().Set("symbol", "BTCUSDT"), nonce)
	require.NoError(t, err)
	assert.Equal(t, want, sig)
}

func TestNonce_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMicro(1_700_000_000_000_000)
	s := testSigner(t, WithClock(func() time.Time { return fixed }))

	n1 := s.Nonce()
	n2 := s.Nonce()
	n3 := s.Nonce()
	assert.Equal(t, fixed.UnixMicro(), n1)
	assert.Equal(t, n1+1, n2)
	assert.Equal(t, n2+1, n3)
}

func TestNonce_ClockRegression(t *testing.T) {
	now := time.UnixMicro(2_000_000)
	s := testSigner(t, WithClock(func() time.Time { return now }))

	first := s.Nonce()
	now = now.Add(-time.Second)
	second := s.Nonce()
	assert.Greater(t, second, first)

	now = now.Add(10 * time.Second)
	third := s.Nonce()
	assert.Equal(t, now.UnixMicro(), third)
}

// 固定 key/nonce/参数的签名向量，与 eth_abi.encode + keccak + signHash 的结果逐字节一致
func TestSign_KnownVector(t *testing.T) {
	const (
		key    = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
		signer = "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23"
		nonce  = int64(1700000000123456)

		wantPayload = `{"positionSide":"BOTH","quantity":"0.001","recvWindow":"5000","side":"BUY","symbol":"BTCUSDT","timestamp":"1700000000123","type":"MARKET"}`
		wantHash    = "87e7fe5cb0d8dacff8b02adccecfc84b64f7c3d08c2e27520ab7dc305231f029"
		wantSig     = "0xa1ee8cd4df3fad33c270aa14e27ad87fdcc8d2a917ed8bf763f0adaf57bbb1f11f2293c7696f33e0369f16243207e92ec5e6c12b46e1ff08a4227b9e2b1f6eeb1c"
	)
	s, err := NewSigner(testUser, signer, key)
	require.NoError(t, err)

	p := NewParams().
		Set("symbol", "BTCUSDT").
		Set("side", "BUY").
		Set("type", "MARKET").
		Set("quantity", decimal.RequireFromString("0.001")).
		Set("positionSide", "BOTH").
		Set("timestamp", int64(1700000000123)).
		Set("recvWindow", 5000)
	require.Equal(t, wantPayload, p.Canonical())

	encoded, err := payloadArgs.Pack(p.Canonical(), common.HexToAddress(testUser), common.HexToAddress(signer), big.NewInt(nonce))
	require.NoError(t, err)
	assert.Equal(t, wantHash, common.Bytes2Hex(crypto.Keccak256(encoded)))

	sig, err := s.Sign(p, nonce)
	require.NoError(t, err)
	assert.Equal(t, wantSig, sig)
}
