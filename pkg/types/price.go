package types

import "fmt"

// Price is quote/base expressed as an exact integer ratio, matching
// BitShares' price struct (market_engine.cpp) rather than a floating
// point approximation. Comparisons cross-multiply to stay exact.
type Price struct {
	Quote      Share
	Base       Share
	QuoteAsset AssetID
	BaseAsset  AssetID
}

// NewPrice builds a price, panicking on a non-positive ratio component
// since a zero or negative price/ratio has no market meaning.
func NewPrice(quote, base Share, quoteAsset, baseAsset AssetID) Price {
	if quote <= 0 || base <= 0 {
		panic(fmt.Sprintf("invalid price ratio %d/%d", quote, base))
	}
	return Price{Quote: quote, Base: base, QuoteAsset: quoteAsset, BaseAsset: baseAsset}
}

// Less reports whether p < o as quote/base ratios, via
// cross-multiplication so no division/rounding error is introduced.
func (p Price) Less(o Price) bool {
	return int64(p.Quote)*int64(o.Base) < int64(o.Quote)*int64(p.Base)
}

// Equal reports exact ratio equality.
func (p Price) Equal(o Price) bool {
	return int64(p.Quote)*int64(o.Base) == int64(o.Quote)*int64(p.Base)
}

// LessEqual reports p <= o.
func (p Price) LessEqual(o Price) bool {
	return p.Less(o) || p.Equal(o)
}

// GreaterEqual reports p >= o.
func (p Price) GreaterEqual(o Price) bool {
	return !p.Less(o)
}

// ToBase converts a quote-asset amount to base-asset amount at this
// price: base = quote / (quote/base) = quote * Base / Quote.
func (p Price) ToBase(quoteAmount Share) Share {
	return MulDiv(quoteAmount, p.Base, p.Quote)
}

// ToQuote converts a base-asset amount to quote-asset amount at this
// price: quote = base * (quote/base) = base * Quote / Base.
func (p Price) ToQuote(baseAmount Share) Share {
	return MulDiv(baseAmount, p.Quote, p.Base)
}

// Min returns the lesser of p and o.
func Min(p, o Price) Price {
	if p.Less(o) {
		return p
	}
	return o
}

// Max returns the greater of p and o.
func Max(p, o Price) Price {
	if p.Less(o) {
		return o
	}
	return p
}

func (p Price) String() string {
	return fmt.Sprintf("%d/%d (asset %d/%d)", p.Quote, p.Base, p.QuoteAsset, p.BaseAsset)
}
