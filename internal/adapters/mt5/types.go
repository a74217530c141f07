package mt5

// DTOs raw del bridge HTTP de MT5. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// positionsResponse es la respuesta de GET /positions.
type positionsResponse struct {
	Positions []rawPosition `json:"positions"`
}

// rawPosition es una posición abierta tal como la reporta el terminal.
type rawPosition struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"` // "BUY" | "SELL"
	Volume     float64 `json:"volume"`
	PriceOpen  float64 `json:"price_open"`
	PriceCurr  float64 `json:"price_current"`
	Profit     float64 `json:"profit"`
	Swap       float64 `json:"swap"`
	Commission float64 `json:"commission"`
	Time       int64   `json:"time"` // epoch seconds
	Comment    string  `json:"comment"`
}

// rawTick es la respuesta de GET /tick.
type rawTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time_msc"` // epoch milliseconds
}

// orderRequest es el body de POST /orders y POST /close.
type orderRequest struct {
	Symbol  string  `json:"symbol,omitempty"`
	Type    string  `json:"type,omitempty"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price,omitempty"` // 0 = market
	Ticket  int64   `json:"ticket,omitempty"`
	Comment string  `json:"comment,omitempty"`
	Filling string  `json:"filling,omitempty"` // "IOC" | "FOK" | "RETURN"
}

// orderResponse es el resultado de una orden en el terminal.
type orderResponse struct {
	Retcode int     `json:"retcode"`
	Order   int64   `json:"order"`
	Deal    int64   `json:"deal"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment"`
}

// MT5 trade server return codes the gateway cares about.
const (
	retcodeDone           = 10009
	retcodeRequote        = 10004
	retcodeInvalidVolume  = 10014
	retcodeMarketClosed   = 10018
	retcodeNoMoney        = 10019
	retcodeInvalidFilling = 10030
)

// streamTick es un tick recibido por el websocket del bridge.
type streamTick struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TimeMs int64   `json:"time_msc"`
}
