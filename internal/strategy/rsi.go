package strategy

import "fmt"

// evaluateRSI buys below oversold and sells above overbought.
func evaluateRSI(rsi, oversold, overbought float64) (Action, string) {
	switch {
	case rsi < oversold:
		return ActionBuy, fmt.Sprintf("RSI oversold (%.2f < %.2f)", rsi, oversold)
	case rsi > overbought:
		return ActionSell, fmt.Sprintf("RSI overbought (%.2f > %.2f)", rsi, overbought)
	default:
		return ActionHold, fmt.Sprintf("RSI neutral (%.2f)", rsi)
	}
}
