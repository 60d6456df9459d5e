package enums

import "fmt"

// ShortageAction decides how an order item covers demand that stock cannot.
type ShortageAction string

const (
	// ShortageActionProduce routes the shortfall into a production task.
	ShortageActionProduce ShortageAction = "PRODUCE"
	// ShortageActionBuy leaves the shortfall to external procurement; the
	// item never carries a qty_to_produce.
	ShortageActionBuy ShortageAction = "BUY"
)

// IsValid checks whether the given action matches the canonical enum.
func (a ShortageAction) IsValid() bool {
	return a == ShortageActionProduce || a == ShortageActionBuy
}

// ParseShortageAction converts raw strings into ShortageAction.
func ParseShortageAction(value string) (ShortageAction, error) {
	switch ShortageAction(value) {
	case ShortageActionProduce:
		return ShortageActionProduce, nil
	case ShortageActionBuy:
		return ShortageActionBuy, nil
	}
	return "", fmt.Errorf("invalid shortage action %q", value)
}
