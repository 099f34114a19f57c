package evaluator

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/types"
)

// Transaction is an ordered list of operations with a shared
// expiration (spec §4.D, §8 "expired_transaction").
type Transaction struct {
	Expiration time.Time
	Operations []Operation
}

// SignedTransaction pairs a Transaction with the signatures
// authorizing it (spec §4.D "signed_transaction").
type SignedTransaction struct {
	Transaction
	Signatures [][]byte // 65-byte [R||S||V] signatures, any order
}

// ID returns the content hash used for mempool indexing and duplicate
// detection. Encoding is internal bookkeeping, not a consensus wire
// format (persistence/encoding are abstracted per spec §1 Non-goals),
// so a deterministic gob encode is sufficient.
func (t Transaction) ID() types.Hash {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t); err != nil {
		panic(errors.Wrap(err, "evaluator: encode transaction for id"))
	}
	return types.HashBytes(buf.Bytes())
}

// Encode serializes stx the way block.Processor's extend_chain decodes
// a block's transaction payloads, so block production can fill
// state.Block.Transactions directly from the mempool.
func (stx SignedTransaction) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stx); err != nil {
		return nil, errors.Wrap(err, "evaluator: encode signed transaction")
	}
	return buf.Bytes(), nil
}
