// Package types defines the primitive value types shared across the
// chain database, evaluator, and market engine: asset amounts, ids,
// prices, and addresses.
package types

import "github.com/cockroachdb/errors"

// ErrAdditionOverflow and ErrSubtractionOverflow back the evaluator's
// addition_overflow/subtraction_overflow error taxonomy (spec §4.D, §7).
var (
	ErrAdditionOverflow    = errors.New("addition_overflow")
	ErrSubtractionOverflow = errors.New("subtraction_overflow")
)

// AssetID identifies a fungible asset. Zero is the reserved base asset.
type AssetID uint32

// BaseAssetID is the protocol token, id 0 (GLOSSARY "Base asset").
const BaseAssetID AssetID = 0

// Share is a signed fixed-point amount, expressed in an asset's
// smallest indivisible unit (its precision already applied).
type Share int64

// AddChecked returns a+b, or ErrAdditionOverflow if the signed 64-bit
// sum overflows. Mirrors the teacher's plain-int64 accounting
// (pkg/app/core/account/account.go) with the overflow guard spec.md's
// evaluator requires (§4.D).
func AddChecked(a, b Share) (Share, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, errors.Wrapf(ErrAdditionOverflow, "%d + %d", a, b)
	}
	return sum, nil
}

// SubChecked returns a-b, or ErrSubtractionOverflow if it would go
// negative.
func SubChecked(a, b Share) (Share, error) {
	if b > a {
		return 0, errors.Wrapf(ErrSubtractionOverflow, "%d - %d", a, b)
	}
	return a - b, nil
}

// MulDiv computes a*b/c, rounding toward zero. Used throughout the
// market engine for notional/margin/interest math (price*qty*bps/10000
// style formulas), matching the teacher's plain-int64 approach in
// market.go's RequiredInitialMargin/RequiredMaintenanceMargin.
func MulDiv(a, b, c Share) Share {
	if c == 0 {
		return 0
	}
	return a * b / c
}
