package hedging

import "github.com/drawdownguard/collar-engine/pkg/money"

// RequiredSize computes the hedge sizing: size := positionDelta/optionDelta
// when a delta is supplied, else
// positionSize/contractSize; the result is floored at minOptionSize.
func RequiredSize(positionSize, contractSize, minOptionSize money.Value, positionDelta, optionDelta *money.Value) money.Value {
	var size money.Value
	if positionDelta != nil && optionDelta != nil && !optionDelta.IsZero() {
		size = positionDelta.Div(*optionDelta)
	} else {
		size = positionSize.Div(contractSize)
	}
	return money.Max(minOptionSize, size)
}
