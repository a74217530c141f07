package mt5

import (
	"time"

	"github.com/alejandrodnm/goldbot/internal/domain"
)

// mapPositions convierte los DTOs del bridge a domain.BrokerPosition.
func mapPositions(raw []rawPosition) []domain.BrokerPosition {
	out := make([]domain.BrokerPosition, 0, len(raw))
	for _, r := range raw {
		out = append(out, mapPosition(r))
	}
	return out
}

// mapPosition convierte una rawPosition a domain.BrokerPosition.
func mapPosition(r rawPosition) domain.BrokerPosition {
	return domain.BrokerPosition{
		Ticket:     r.Ticket,
		Symbol:     r.Symbol,
		Side:       mapSide(r.Type),
		Volume:     r.Volume,
		OpenPrice:  r.PriceOpen,
		Price:      r.PriceCurr,
		Profit:     r.Profit,
		Swap:       r.Swap,
		Commission: r.Commission,
		OpenTime:   time.Unix(r.Time, 0).UTC(),
		Comment:    r.Comment,
	}
}

func mapSide(t string) domain.Side {
	if t == "SELL" {
		return domain.SideSell
	}
	return domain.SideBuy
}

func mapTick(r rawTick) domain.Tick {
	return domain.Tick{
		Symbol: r.Symbol,
		Bid:    r.Bid,
		Ask:    r.Ask,
		Time:   time.UnixMilli(r.TimeMs).UTC(),
	}
}

// retcodeReason traduce los retcodes del trade server a descripciones.
func retcodeReason(code int) string {
	switch code {
	case retcodeDone:
		return "done"
	case retcodeRequote:
		return "requote"
	case retcodeInvalidVolume:
		return "invalid volume"
	case retcodeMarketClosed:
		return "market closed"
	case retcodeNoMoney:
		return "insufficient funds"
	case retcodeInvalidFilling:
		return "unsupported filling mode"
	default:
		return "unknown retcode"
	}
}
