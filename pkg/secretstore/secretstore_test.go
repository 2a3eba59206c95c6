package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	hexKey := strings.Repeat("ab", 32)
	b64Key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))

	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"empty", "  ", 0, false},
		{"hex", hexKey, 32, false},
		{"hex with prefix", "0x" + hexKey, 32, false},
		{"base64", b64Key, 32, false},
		{"short hex", "abcd", 0, true},
		{"garbage", "not a key!", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.GetString("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("empty", ""))
	v, ok, err := s.GetString("empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", v)

	n, err := s.Import(DefaultPrefix, map[string]string{
		"ASTERDEX_PRIVATE_KEY": "0xabc",
		"WEBHOOK_SECRET":       " hook ",
		"API_KEY":              "",
		" ":                    "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.GetPrefixed(DefaultPrefix, "ASTERDEX_PRIVATE_KEY", "WEBHOOK_SECRET", "API_KEY", "NOPE")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"ASTERDEX_PRIVATE_KEY": "0xabc",
		"WEBHOOK_SECRET":       "hook",
	}, got)
}

func TestStore_NotOpened(t *testing.T) {
	var s *Store
	_, _, err := s.GetString("k")
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.NoError(t, s.Close())
}
