package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		want    Pair
		wantErr bool
	}{
		{name: "valid", symbol: "BTC-USDT", want: Pair{Base: "BTC", Quote: "USDT"}},
		{name: "lowercase normalized", symbol: "eth-usdc", want: Pair{Base: "ETH", Quote: "USDC"}},
		{name: "missing quote", symbol: "BTC-", wantErr: true},
		{name: "no separator", symbol: "BTCUSDT", wantErr: true},
		{name: "empty", symbol: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePair(tt.symbol)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.symbol)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePair(%q): %v", tt.symbol, err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuoteValidate(t *testing.T) {
	base := Quote{
		Exchange: "kraken",
		Pair:     MustParsePair("BTC-USDT"),
		Bid:      decimal.RequireFromString("64000.5"),
		Ask:      decimal.RequireFromString("64001.0"),
		BidSize:  decimal.RequireFromString("1.2"),
		AskSize:  decimal.RequireFromString("0.8"),
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid quote rejected: %v", err)
	}

	crossed := base
	crossed.Bid = decimal.RequireFromString("64002")
	if err := crossed.Validate(); err == nil {
		t.Error("crossed quote accepted")
	}

	zero := base
	zero.Ask = decimal.Zero
	if err := zero.Validate(); err == nil {
		t.Error("zero ask accepted")
	}

	noVenue := base
	noVenue.Exchange = ""
	if err := noVenue.Validate(); err == nil {
		t.Error("quote without exchange accepted")
	}
}

func TestQuoteStaleness(t *testing.T) {
	now := time.Now()
	q := Quote{Timestamp: now.Add(-3 * time.Second)}

	if q.IsStale(5*time.Second, now) {
		t.Error("3s old quote flagged stale with 5s window")
	}
	if !q.IsStale(2*time.Second, now) {
		t.Error("3s old quote not flagged stale with 2s window")
	}
}

func TestSnapshotFailureFraction(t *testing.T) {
	snap := &Snapshot{
		Quotes: make([]Quote, 3),
		Failed: []FailedFetch{{Exchange: "kraken"}},
	}
	if got := snap.FailureFraction(); got != 0.25 {
		t.Errorf("FailureFraction() = %v, want 0.25", got)
	}

	empty := &Snapshot{}
	if got := empty.FailureFraction(); got != 0 {
		t.Errorf("empty snapshot FailureFraction() = %v, want 0", got)
	}
}

func TestSnapshotFresh(t *testing.T) {
	now := time.Now()
	snap := &Snapshot{
		Quotes: []Quote{
			{Exchange: "a", Timestamp: now.Add(-1 * time.Second)},
			{Exchange: "b", Timestamp: now.Add(-10 * time.Second)},
			{Exchange: "c", Timestamp: now},
		},
	}

	fresh := snap.Fresh(5*time.Second, now)
	if len(fresh) != 2 {
		t.Fatalf("got %d fresh quotes, want 2", len(fresh))
	}
	for _, q := range fresh {
		if q.Exchange == "b" {
			t.Error("stale quote survived Fresh filter")
		}
	}
}
