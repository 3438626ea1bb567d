package plans

import (
	"errors"
	"testing"

	"faixabet-api/internal/models"
)

func TestResolve(t *testing.T) {
	c := NewCatalog("price_silver", "price_gold")

	tests := []struct {
		key     string
		wantID  int64
		wantPID string
	}{
		{"free", FreeID, ""},
		{"FREE", FreeID, ""},
		{" Silver ", SilverID, "price_silver"},
		{"gold", GoldID, "price_gold"},
	}
	for _, tt := range tests {
		p, err := c.Resolve(tt.key)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.key, err)
		}
		if p.ID != tt.wantID || p.PriceID != tt.wantPID {
			t.Fatalf("Resolve(%q) = %+v", tt.key, p)
		}
	}
}

func TestResolveUnknownKey(t *testing.T) {
	c := NewCatalog("price_silver", "price_gold")
	for _, key := range []string{"", "platinum", "2"} {
		_, err := c.Resolve(key)
		if !errors.Is(err, models.ErrInvalidPlan) {
			t.Fatalf("Resolve(%q) err = %v, want ErrInvalidPlan", key, err)
		}
	}
}

func TestResolveMissingPrice(t *testing.T) {
	c := NewCatalog("", "price_gold")
	_, err := c.Resolve("silver")
	if !errors.Is(err, models.ErrPlanNotConfigured) {
		t.Fatalf("err = %v, want ErrPlanNotConfigured", err)
	}
	if errors.Is(err, models.ErrInvalidPlan) {
		t.Fatal("misconfiguration must not look like a user error")
	}
	if _, err := c.Resolve("free"); err != nil {
		t.Fatalf("free plan needs no price: %v", err)
	}
	if p, err := c.Lookup("silver"); err != nil || p.ID != SilverID {
		t.Fatalf("Lookup ignores prices: %+v, %v", p, err)
	}
}

func TestByID(t *testing.T) {
	c := NewCatalog("s", "g")
	p, err := c.ByID(GoldID)
	if err != nil || p.Key != Gold {
		t.Fatalf("ByID(gold) = %+v, %v", p, err)
	}
	if _, err := c.ByID(99); !errors.Is(err, models.ErrInvalidPlan) {
		t.Fatalf("ByID(99) err = %v", err)
	}
}
