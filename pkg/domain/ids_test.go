package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "crowdfund/pkg/domain-errors"
)

// TestParseIdentity_Invariants validates the parsing invariant:
// "identities are non-empty, bounded, and drawn from a fixed alphabet"
func TestParseIdentity_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseIdentity("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		got, err := ParseIdentity("  0xAbC123  ")
		require.NoError(t, err)
		assert.Equal(t, Identity("0xAbC123"), got)
	})

	t.Run("preserves case", func(t *testing.T) {
		lower, err := ParseIdentity("0xabc")
		require.NoError(t, err)
		upper, err := ParseIdentity("0xABC")
		require.NoError(t, err)
		assert.NotEqual(t, lower, upper)
	})
}

func TestParseIdentity_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE users;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "0xabc\x00def", true},
		{"Oversized input", strings.Repeat("a", MaxIdentityLength+1), true},
		{"Unicode zero-width space", "0xabc\u200Bdef", true},
		{"Inner whitespace", "0x abc", true},
		{"Whitespace only", "   ", true},

		{"Hex address", "0x5FbDB2315678afecb367f032d93F642f64180aa3", false},
		{"Email-like principal", "fahad@example.org", false},
		{"Max length", strings.Repeat("a", MaxIdentityLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseCampaignID(t *testing.T) {
	tests := []struct {
		input   string
		want    CampaignID
		wantErr bool
	}{
		{"1", 1, false},
		{" 42 ", 42, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCampaignID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}

func TestAmountMin(t *testing.T) {
	assert.Equal(t, Amount(3), Amount(3).Min(5))
	assert.Equal(t, Amount(5), Amount(9).Min(5))
	assert.True(t, Amount(1).IsPositive())
	assert.False(t, Amount(0).IsPositive())
}
