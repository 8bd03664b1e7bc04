package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRemainingQuantity(t *testing.T) {
	cases := []struct {
		name     string
		quantity string
		filled   string
		want     string
	}{
		{"unfilled", "10", "0", "10"},
		{"partial", "10", "3.5", "6.5"},
		{"filled", "10", "10", "0"},
		{"overfilled clamps to zero", "10", "10.5", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Order{Quantity: dec(tc.quantity), FilledQuantity: dec(tc.filled)}
			if got := o.RemainingQuantity(); !got.Equal(dec(tc.want)) {
				t.Fatalf("RemainingQuantity() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFillPercentage(t *testing.T) {
	o := Order{Quantity: dec("8"), FilledQuantity: dec("2")}
	if got := o.FillPercentage(); !got.Equal(dec("25")) {
		t.Fatalf("FillPercentage() = %s, want 25", got)
	}

	zero := Order{}
	if got := zero.FillPercentage(); !got.IsZero() {
		t.Fatalf("FillPercentage() on zero quantity = %s, want 0", got)
	}
}

func TestNotionalValue(t *testing.T) {
	p := Position{Quantity: dec("2.5"), MarkPrice: dec("150")}
	if got := p.NotionalValue(); !got.Equal(dec("375")) {
		t.Fatalf("NotionalValue() = %s, want 375", got)
	}
}

func TestPnLPercentage(t *testing.T) {
	cases := []struct {
		name  string
		side  PositionSide
		entry string
		mark  string
		want  string
	}{
		{"long gain", Long, "100", "110", "10"},
		{"long loss", Long, "100", "95", "-5"},
		{"short gain", Short, "100", "90", "10"},
		{"short loss", Short, "100", "105", "-5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Position{Side: tc.side, EntryPrice: dec(tc.entry), MarkPrice: dec(tc.mark)}
			if got := p.PnLPercentage(); !got.Equal(dec(tc.want)) {
				t.Fatalf("PnLPercentage() = %s, want %s", got, tc.want)
			}
		})
	}

	noEntry := Position{Side: Long, MarkPrice: dec("100")}
	if got := noEntry.PnLPercentage(); !got.IsZero() {
		t.Fatalf("PnLPercentage() with zero entry = %s, want 0", got)
	}
}

func TestIsLongIsShort(t *testing.T) {
	long := Position{Side: Long, Quantity: dec("1")}
	if !long.IsLong() || long.IsShort() {
		t.Fatalf("long position: IsLong() = %v, IsShort() = %v", long.IsLong(), long.IsShort())
	}
	short := Position{Side: Short, Quantity: dec("1")}
	if short.IsLong() || !short.IsShort() {
		t.Fatalf("short position: IsLong() = %v, IsShort() = %v", short.IsLong(), short.IsShort())
	}
	flat := Position{Side: Long}
	if flat.IsLong() {
		t.Fatal("flat position reported IsLong() = true")
	}
}

func TestUpdateMarkPrice(t *testing.T) {
	long := Position{Side: Long, Quantity: dec("2"), EntryPrice: dec("100")}
	long.UpdateMarkPrice(dec("110"))
	if !long.MarkPrice.Equal(dec("110")) {
		t.Fatalf("MarkPrice = %s, want 110", long.MarkPrice)
	}
	if !long.UnrealizedPnL.Equal(dec("20")) {
		t.Fatalf("long UnrealizedPnL = %s, want 20", long.UnrealizedPnL)
	}

	short := Position{Side: Short, Quantity: dec("2"), EntryPrice: dec("100")}
	short.UpdateMarkPrice(dec("110"))
	if !short.UnrealizedPnL.Equal(dec("-20")) {
		t.Fatalf("short UnrealizedPnL = %s, want -20", short.UnrealizedPnL)
	}
}
