package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(9999), 9999, "usd", "$99.99"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(905), 905, "gbp", "£9.05"},
		{"JPY", JPY(100), 100, "jpy", "¥100"},
		{"Negative", USD(-250), -250, "usd", "$-2.50"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"Unknown", Money{Amount: 1234, Currency: "chf"}, 1234, "chf", "CHF 12.34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyMajorUnits(t *testing.T) {
	tests := []struct {
		name     string
		major    float64
		currency string
		want     Money
	}{
		{"plan price", 99.99, "usd", USD(9999)},
		{"rounds float noise", 19.999999999, "usd", USD(2000)},
		{"upper-case currency", 1.5, "EUR", EUR(150)},
		{"zero decimal", 250, "jpy", JPY(250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromMajor(tt.major, tt.currency)
			if !got.Equal(tt.want) {
				t.Fatalf("FromMajor: got %v, want %v", got, tt.want)
			}
			if back := FromMajor(got.Major(), got.Currency); !back.Equal(got) {
				t.Errorf("Major round trip: got %v, want %v", back, got)
			}
		})
	}
}

func TestMoneyPredicates(t *testing.T) {
	if !Zero("usd").IsZero() {
		t.Error("Zero should be zero")
	}
	if !USD(1).IsPositive() {
		t.Error("USD(1) should be positive")
	}
	if USD(-1).IsPositive() {
		t.Error("USD(-1) should not be positive")
	}
	if USD(100).Equal(EUR(100)) {
		t.Error("different currencies should not be equal")
	}
}

func TestMoneyMarshalJSON(t *testing.T) {
	data, err := json.Marshal(USD(9999))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["display"] != "$99.99" {
		t.Errorf("display: got %v", out["display"])
	}
	if out["currency"] != "usd" {
		t.Errorf("currency: got %v", out["currency"])
	}
}

func TestEntityTimestamps(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	e := NewEntityAt(base)
	if !e.CreatedAt.Equal(base) || e.CreatedAt.Location() != time.UTC {
		t.Fatalf("CreatedAt not normalised to UTC: %v", e.CreatedAt)
	}

	later := base.Add(time.Hour)
	e.TouchAt(later)
	if !e.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt: got %v, want %v", e.UpdatedAt, later)
	}
	if !e.CreatedAt.Equal(base) {
		t.Error("TouchAt must not change CreatedAt")
	}
	if e.IsStale(later.Add(time.Minute), time.Hour) {
		t.Error("entity touched a minute ago should not be stale")
	}
	if !e.IsStale(later.Add(2*time.Hour), time.Hour) {
		t.Error("entity touched two hours ago should be stale")
	}
}
