package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadPolicyDefaults(t *testing.T) {
	p := LoadPolicy()
	if !p.LoyaltyMinOrder.Equal(decimal.NewFromInt(1000)) || p.LoyaltyBlockPoints != 2000 || !p.LoyaltyBlockValue.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("loyalty defaults = %+v", p)
	}
	if p.DuplicateRetryBackoff != 150*time.Millisecond {
		t.Fatalf("backoff = %s", p.DuplicateRetryBackoff)
	}
	if p.CartSealKey != nil {
		t.Fatal("seal key should be nil when unset")
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	t.Setenv("DEFAULT_TAX_RATE", "8.5")
	t.Setenv("LOYALTY_BLOCK_POINTS", "1000")
	t.Setenv("CART_TTL", "2h")
	t.Setenv("CART_SEAL_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	t.Setenv("LOYALTY_MIN_ORDER", "not-a-number")

	p := LoadPolicy()
	if !p.DefaultTaxRate.Equal(decimal.RequireFromString("8.5")) {
		t.Fatalf("tax rate = %s", p.DefaultTaxRate)
	}
	if p.CartTTL != 2*time.Hour {
		t.Fatalf("cart ttl = %s", p.CartTTL)
	}
	if len(p.CartSealKey) != 32 || p.CartSealKey[31] != 0x1f {
		t.Fatalf("seal key = %x", p.CartSealKey)
	}
	if !p.LoyaltyMinOrder.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("invalid min order should keep default, got %s", p.LoyaltyMinOrder)
	}
	if r := p.Redemption(); r.BlockPoints != 1000 {
		t.Fatalf("redemption block points = %d", r.BlockPoints)
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	c := LoadRateLimitConfig()
	if c.Capacity != 1 {
		t.Fatalf("capacity = %d, want 1", c.Capacity)
	}
	if c.TTL != 10*time.Second {
		t.Fatalf("ttl = %s, want 10s", c.TTL)
	}
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		val  string
		def  bool
		want bool
	}{
		{"", true, true},
		{"off", true, false},
		{"YES", false, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Setenv("POS_TEST_BOOL", tt.val)
		if got := envBool("POS_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("envBool(%q, %v) = %v, want %v", tt.val, tt.def, got, tt.want)
		}
	}
}
