package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfitPips_SignAdjusted(t *testing.T) {
	// XAUUSD pip = 0.1: +1.0 move = +10 pips for a BUY, -10 for a SELL
	assert.InDelta(t, 10.0, ProfitPips("XAUUSD", SideBuy, 2000.0, 2001.0), 1e-9)
	assert.InDelta(t, -10.0, ProfitPips("XAUUSD", SideSell, 2000.0, 2001.0), 1e-9)
}

func TestPipSize(t *testing.T) {
	assert.Equal(t, 0.1, PipSize("XAUUSD"))
	assert.Equal(t, 0.1, PipSize("xauusd.v"))
	assert.Equal(t, 0.01, PipSize("USDJPY"))
	assert.Equal(t, 0.0001, PipSize("EURUSD"))
}

func TestPosition_AdversePips(t *testing.T) {
	p := Position{Symbol: "XAUUSD", Side: SideBuy, OpenPrice: 2000.0, Price: 1998.5}
	assert.InDelta(t, 15.0, p.AdversePips(), 1e-9)

	p.Price = 2002.0
	assert.Equal(t, 0.0, p.AdversePips())
}

func TestPosition_Clone_Independent(t *testing.T) {
	p := Position{
		Ticket: 1,
		Tags:   map[string]bool{"a": true},
		Meta:   map[string]string{"k": "v"},
	}
	cp := p.Clone()
	cp.Tags["b"] = true
	cp.Meta["k2"] = "v2"

	assert.False(t, p.Tags["b"])
	assert.NotContains(t, p.Meta, "k2")
}

func TestPosition_HoldingTime(t *testing.T) {
	open := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	p := Position{OpenTime: open}

	now := open.Add(30 * time.Minute)
	assert.Equal(t, 30*time.Minute, p.HoldingTime(now))

	p.CloseTime = open.Add(10 * time.Minute)
	assert.Equal(t, 10*time.Minute, p.HoldingTime(now))
}

func TestModeConfigs_ReturnsCopy(t *testing.T) {
	a := ModeConfigs(ModeScalping)
	a.Partials[0].Pips = 999

	b := ModeConfigs(ModeScalping)
	assert.Equal(t, 3.0, b.Partials[0].Pips)
}
