package domain

import "strings"

// PipValuePerLot is the account-currency value of one pip for a 1.0-lot
// position. Constant for the single instrument this bot trades.
const PipValuePerLot = 10.0

// PipSize devuelve el tamaño de un pip para el símbolo dado.
// Oro cotiza con pip de 0.1, pares JPY con 0.01, el resto con 0.0001.
func PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.Contains(s, "XAU"), strings.Contains(s, "GOLD"):
		return 0.1
	case strings.Contains(s, "JPY"):
		return 0.01
	default:
		return 0.0001
	}
}

// ProfitPips expresses the distance from entry to current price in pips,
// positive when the move favors the position's side.
func ProfitPips(symbol string, side Side, openPrice, currentPrice float64) float64 {
	pip := PipSize(symbol)
	if pip == 0 || openPrice == 0 {
		return 0
	}
	diff := currentPrice - openPrice
	if side == SideSell {
		diff = -diff
	}
	return diff / pip
}

// PipValue is the account-currency value of one pip for the given volume.
func PipValue(volume float64) float64 {
	return volume * PipValuePerLot
}
