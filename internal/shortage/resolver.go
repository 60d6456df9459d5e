package shortage

import (
	"github.com/shopspring/decimal"

	"github.com/andrebarreto/stockflow-backend/pkg/enums"
)

// Resolve derives the quantity an order line must source from production
// after reservation. Lines flagged BUY never produce; their gap is covered by
// purchasing outside the engine.
func Resolve(requested, reserved decimal.Decimal, action enums.ShortageAction) decimal.Decimal {
	if action == enums.ShortageActionBuy {
		return decimal.Zero
	}
	gap := requested.Sub(reserved)
	if gap.IsNegative() {
		return decimal.Zero
	}
	return gap
}

// SplitAvailability decides, at submission time, how much of a demand can be
// covered from stock once competing open demand is accounted for. It returns
// the reservable share and the remaining shortfall.
//
// othersDemand is the competing orders' requested quantity net of what they
// already route through production; it may come out negative when their
// tasks overshoot, in which case it counts as zero.
func SplitAvailability(onHand, othersDemand, requested decimal.Decimal) (reserved, shortfall decimal.Decimal) {
	if othersDemand.IsNegative() {
		othersDemand = decimal.Zero
	}
	available := onHand.Sub(othersDemand)
	if available.IsNegative() {
		available = decimal.Zero
	}
	reserved = decimal.Min(requested, available)
	shortfall = requested.Sub(reserved)
	return reserved, shortfall
}
