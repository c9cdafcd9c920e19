package exchange

import (
	"net/http"
	"testing"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"hl-signal-bot/internal/errs"
)

func TestParseSide(t *testing.T) {
	for _, s := range []string{"long", "short"} {
		if _, err := ParseSide(s); err != nil {
			t.Fatalf("expected %q to parse: %v", s, err)
		}
	}
	for _, s := range []string{"", "LONG", "close", "buy", " long"} {
		_, err := ParseSide(s)
		if !errs.Is(err, errs.InvalidSignal) {
			t.Fatalf("expected invalid signal for %q, got %v", s, err)
		}
	}
}

func TestNewResultNonJSON(t *testing.T) {
	res := NewResult(http.StatusOK, []byte("Internal error"))
	if res.Parsed.IsPresent() {
		t.Fatalf("expected no parsed body")
	}
	if string(res.RawBody) != "Internal error" {
		t.Fatalf("raw body not preserved: %q", res.RawBody)
	}
	_, err := res.JSON("info")
	if !errs.Is(err, errs.UpstreamMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestResultJSONStatuses(t *testing.T) {
	cases := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusBadGateway, errs.UpstreamUnavailable},
		{http.StatusUnprocessableEntity, errs.ExchangeRejected},
	}
	for _, c := range cases {
		_, err := NewResult(c.status, []byte(`{"error":"x"}`)).JSON("op")
		if !errs.Is(err, c.kind) {
			t.Fatalf("status %d: expected %s, got %v", c.status, c.kind, err)
		}
	}
	body, err := NewResult(http.StatusOK, []byte(`{"ok":true}`)).JSON("op")
	if err != nil || string(body) != `{"ok":true}` {
		t.Fatalf("unexpected result %s %v", body, err)
	}
}

func TestPositionDirection(t *testing.T) {
	st := AccountState{OpenPosition: mo.Some(Position{Coin: "BTC", SignedSize: decimal.RequireFromString("-0.5")})}
	p, _ := st.OpenPosition.Get()
	if !st.HasOpenPosition() || !p.IsShort() || p.IsLong() {
		t.Fatalf("expected open short position")
	}
	flat := AccountState{OpenPosition: mo.Some(Position{Coin: "BTC", SignedSize: decimal.Zero})}
	if flat.HasOpenPosition() {
		t.Fatalf("zero size must not count as open")
	}
	if (AccountState{}).HasOpenPosition() {
		t.Fatalf("missing position must not count as open")
	}
}

func TestMaxPriceDecimals(t *testing.T) {
	if got := (Instrument{SzDecimals: 5}).MaxPriceDecimals(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := (Instrument{SzDecimals: 7}).MaxPriceDecimals(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
