package evaluator

import "github.com/cockroachdb/errors"

// Error taxonomy for the transaction evaluator (spec.md §4.D "Fails
// with"). All are validation errors per §7: the mempool rejects the
// offending transaction, and the block processor rejects a block that
// contains one.
var (
	ErrInsufficientFunds          = errors.New("insufficient_funds")
	ErrAssetTypeMismatch          = errors.New("asset_type_mismatch")
	ErrAdditionOverflow           = errors.New("addition_overflow")
	ErrSubtractionOverflow        = errors.New("subtraction_overflow")
	ErrInvalidSignature           = errors.New("invalid_signature")
	ErrMissingSignature           = errors.New("missing_signature")
	ErrDuplicateTransaction       = errors.New("duplicate_transaction")
	ErrExpiredTransaction         = errors.New("expired_transaction")
	ErrUnsupportedChainOperation  = errors.New("unsupported_chain_operation")
	ErrAssetNotFound              = errors.New("asset_not_found")
	ErrAccountNotFound            = errors.New("account_not_found")
	ErrDuplicateAccountName       = errors.New("duplicate_account_name")
	ErrDuplicateAssetSymbol       = errors.New("duplicate_asset_symbol")
	ErrInvalidPayRate             = errors.New("invalid_pay_rate")
	ErrSupplyExceedsMaximum       = errors.New("supply_exceeds_maximum")
	ErrMarketIssuedCannotBeIssued = errors.New("market_issued_cannot_be_issued_directly")
	ErrShortRequiresBaseAsset     = errors.New("short_requires_base_asset")
	ErrShortRequiresMarketIssued  = errors.New("short_requires_market_issued_quote")
	ErrInsufficientFeesPaid       = errors.New("insufficient_fees_paid")
)
