package domain

// BookState is the top of book the cost model prices against.
type BookState struct {
	Instrument string
	Bid        float64
	Ask        float64
	BidSize    float64
	AskSize    float64
	Last       float64
	// Volume is the traded volume of the period; the cost model uses it as
	// reference liquidity when no explicit reference volume is configured.
	Volume float64
}

// BookFromTick builds the top of book seen at a tick.
func BookFromTick(t Tick) BookState {
	return BookState{
		Instrument: t.Instrument,
		Bid:        t.Bid,
		Ask:        t.Ask,
		Last:       t.Last,
		Volume:     t.Volume,
	}
}

// BestBid devuelve el mejor bid; cae a Last si el book no tiene bid.
func (b BookState) BestBid() float64 {
	if b.Bid > 0 {
		return b.Bid
	}
	return b.Last
}

// BestAsk devuelve el mejor ask; cae a Last si el book no tiene ask.
func (b BookState) BestAsk() float64 {
	if b.Ask > 0 {
		return b.Ask
	}
	return b.Last
}

// Midpoint devuelve el punto medio entre best bid y best ask, o 0 si falta uno.
func (b BookState) Midpoint() float64 {
	bid := b.BestBid()
	ask := b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve ask - bid, o 0 si falta un lado.
func (b BookState) Spread() float64 {
	bid := b.BestBid()
	ask := b.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}
