package block

import "github.com/cockroachdb/errors"

// Header/checkpoint verification failures (spec.md §4.F steps 1-2).
var (
	ErrCheckpointMismatch = errors.New("checkpoint_mismatch")
	ErrBadBlockNum        = errors.New("bad_block_num")
	ErrBadPreviousID      = errors.New("bad_previous_id")
	ErrBadTimestamp       = errors.New("bad_timestamp")
	ErrFutureTimestamp    = errors.New("future_timestamp")
	ErrWrongSigner        = errors.New("wrong_signer")
	ErrInvalidSignature   = errors.New("invalid_block_signature")
	ErrMissingSecret      = errors.New("missing_production_secret")
	ErrNoHeadBlock        = errors.New("no_head_block")
)
