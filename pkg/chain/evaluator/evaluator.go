// Package evaluator applies one signed transaction against a pending
// chain state, enforcing the per-operation rules of spec.md §4.D.
// Grounded on chain_database_impl::evaluate_transaction's dispatch and
// structurally on the teacher's TxVerifier/apply_signed_tx.go
// verify-then-apply shape (pkg/app/perp/apply_signed_tx.go).
package evaluator

import (
	"time"

	"github.com/cockroachdb/errors"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/types"
)

// Context carries the inputs to Evaluate that are not themselves part
// of the transaction (spec §4.D "Input: ... the chain_id, and a
// pending state").
type Context struct {
	ChainID types.Hash
	Now     time.Time

	// SkipSignatureVerification is honoured only during replay of
	// already-committed blocks (spec §9 "Skip signature verification");
	// callers must not expose a way to flip this post-boot.
	SkipSignatureVerification bool

	// RequiredFees is the configured minimum fee a transaction must
	// pay in base asset (spec §4.D "Fee rule").
	RequiredFees types.Share

	// IsDuplicate reports whether txID has already been seen in the
	// window the caller tracks (block's prior transactions, or the
	// mempool's known-id set).
	IsDuplicate func(txID types.Hash) bool
}

// Record is the evaluation output: fees collected per asset and the
// signer addresses that authorized the transaction (spec §4.D
// "Output: an evaluation record").
type Record struct {
	TxID               types.Hash
	FeesPaid           map[types.AssetID]types.Share
	RequiredSignatures []types.Address
}

// Evaluate applies stx against store, returning its evaluation record
// or the first error encountered (spec §4.D).
func Evaluate(store state.Store, ctx Context, stx *SignedTransaction) (*Record, error) {
	txID := stx.ID()
	if ctx.IsDuplicate != nil && ctx.IsDuplicate(txID) {
		return nil, ErrDuplicateTransaction
	}
	if !stx.Expiration.IsZero() && ctx.Now.After(stx.Expiration) {
		return nil, ErrExpiredTransaction
	}

	required := make(map[types.Address]bool)
	baseWithdrawn, baseDeposited, marketMovement := types.Share(0), types.Share(0), types.Share(0)
	fees := make(map[types.AssetID]types.Share)

	for _, op := range stx.Operations {
		withdrew, deposited, market, err := applyOperation(store, ctx, op, required)
		if err != nil {
			return nil, err
		}
		var addErr error
		if baseWithdrawn, addErr = types.AddChecked(baseWithdrawn, withdrew); addErr != nil {
			return nil, errors.Mark(addErr, ErrAdditionOverflow)
		}
		if baseDeposited, addErr = types.AddChecked(baseDeposited, deposited); addErr != nil {
			return nil, errors.Mark(addErr, ErrAdditionOverflow)
		}
		if marketMovement, addErr = types.AddChecked(marketMovement, market); addErr != nil {
			return nil, errors.Mark(addErr, ErrAdditionOverflow)
		}
	}

	if err := verifySignatures(ctx, stx, required); err != nil {
		return nil, err
	}

	netBaseFee, err := types.SubChecked(baseWithdrawn, baseDeposited)
	if err != nil {
		return nil, errors.Mark(err, ErrSubtractionOverflow)
	}
	netBaseFee, err = types.SubChecked(netBaseFee, marketMovement)
	if err != nil {
		return nil, errors.Mark(err, ErrSubtractionOverflow)
	}
	if netBaseFee < ctx.RequiredFees {
		return nil, errors.Wrapf(ErrInsufficientFeesPaid, "paid %d, required %d", netBaseFee, ctx.RequiredFees)
	}
	if netBaseFee > 0 {
		fees[types.BaseAssetID] = netBaseFee
		store.StoreAccumulatedFees(types.BaseAssetID, store.GetAccumulatedFees(types.BaseAssetID)+netBaseFee)
	}

	requiredList := make([]types.Address, 0, len(required))
	for addr := range required {
		requiredList = append(requiredList, addr)
	}

	return &Record{TxID: txID, FeesPaid: fees, RequiredSignatures: requiredList}, nil
}

// verifySignatures recovers every signature to a signer address and
// checks that the required set is fully covered (spec §4.D "verified
// against the chain id"). Skipped entirely when replaying already-
// committed blocks.
func verifySignatures(ctx Context, stx *SignedTransaction, required map[types.Address]bool) error {
	if ctx.SkipSignatureVerification {
		return nil
	}
	txID := stx.ID()
	digest := chaincrypto.SigningDigest(ctx.ChainID, txID[:])
	signed := make(map[types.Address]bool, len(stx.Signatures))
	for _, sig := range stx.Signatures {
		if len(sig) != 65 {
			return errors.Wrap(ErrInvalidSignature, "signature must be 65 bytes")
		}
		pubkeyBytes, err := ethcrypto.Ecrecover(digest, sig)
		if err != nil {
			return errors.Wrap(ErrInvalidSignature, err.Error())
		}
		pubkey, err := ethcrypto.UnmarshalPubkey(pubkeyBytes)
		if err != nil {
			return errors.Wrap(ErrInvalidSignature, err.Error())
		}
		signed[ethcrypto.PubkeyToAddress(*pubkey)] = true
	}
	for addr := range required {
		if !signed[addr] {
			return errors.Wrapf(ErrMissingSignature, "required signer %s did not sign", addr)
		}
	}
	return nil
}
