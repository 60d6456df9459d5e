package shortage

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestResolveProduceCoversGap(t *testing.T) {
	t.Parallel()

	got := Resolve(dec("50"), dec("20"), enums.ShortageActionProduce)
	if !got.Equal(dec("30")) {
		t.Fatalf("expected 30 to produce, got %s", got)
	}
}

func TestResolveBuyNeverProduces(t *testing.T) {
	t.Parallel()

	got := Resolve(dec("50"), dec("20"), enums.ShortageActionBuy)
	if !got.IsZero() {
		t.Fatalf("expected zero to produce under BUY, got %s", got)
	}
}

func TestResolveOverReservedClampsToZero(t *testing.T) {
	t.Parallel()

	got := Resolve(dec("10"), dec("15"), enums.ShortageActionProduce)
	if !got.IsZero() {
		t.Fatalf("expected zero to produce, got %s", got)
	}
}

func TestSplitAvailability(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		onHand        string
		othersDemand  string
		requested     string
		wantReserved  string
		wantShortfall string
	}{
		{"fully covered", "100", "0", "80", "80", "0"},
		{"partially covered", "100", "80", "50", "20", "30"},
		{"nothing left", "100", "120", "50", "0", "50"},
		{"negative demand counts as zero", "100", "-10", "50", "50", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reserved, shortfall := SplitAvailability(dec(tc.onHand), dec(tc.othersDemand), dec(tc.requested))
			if !reserved.Equal(dec(tc.wantReserved)) {
				t.Fatalf("reserved: expected %s, got %s", tc.wantReserved, reserved)
			}
			if !shortfall.Equal(dec(tc.wantShortfall)) {
				t.Fatalf("shortfall: expected %s, got %s", tc.wantShortfall, shortfall)
			}
		})
	}
}
