// Package genesis parses the genesis document and seeds a fresh chain
// state from it (spec.md §6 "Genesis format"). Grounded on
// chain_database_impl::initialize_genesis (chain_database.cpp): a
// "god" issuer account at id 0, named accounts assigned monotone ids
// from 1, the base asset at id 0, and market-issued assets following
// it — generalized from the original's raw-pack-then-sha256 chain id
// to a manually built canonical byte buffer (a JSON/gob encoding of a
// struct containing a map would make balances' chain id
// non-deterministic across runs, since Go does not guarantee map
// iteration order; the document's balances/accounts/market-assets are
// therefore parsed as ordered slices, not maps, and hashed in file
// order).
package genesis

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/types"
)

// ErrWrongChainID fires when a store's persisted chain id doesn't
// match the genesis document's derived one (spec §6 "Mismatch between
// stored chain id and genesis chain id fails open with wrong_chain_id").
var ErrWrongChainID = errors.New("genesis: wrong_chain_id")

// ErrNotEnoughDelegates fires when the document names fewer delegates
// than the consensus active-delegate-set size requires.
var ErrNotEnoughDelegates = errors.New("genesis: not enough initial delegates")

const chainIDProperty = "chain_id"

// BalanceEntry is one (address, amount) pair in the genesis balance
// list (spec §6 "initial (address → balance) pairs").
type BalanceEntry struct {
	Address types.Address `json:"address"`
	Amount  types.Share   `json:"amount"`
}

// AccountEntry is one named account: a plain registered name, or a
// delegate when IsDelegate is set (spec §6 "named delegates with
// their owner public keys and pay rates"; generalized here, as the
// original format does, to cover a mixed list of plain and delegate
// accounts rather than delegates only).
type AccountEntry struct {
	Name       string `json:"name"`
	OwnerKey   []byte `json:"owner_key"`
	IsDelegate bool   `json:"is_delegate"`
	PayRatePct uint8  `json:"pay_rate_pct"`
}

// MarketAssetEntry is an additional market-issued asset defined at
// genesis (spec §6 "any additional market-issued asset definitions").
type MarketAssetEntry struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Precision uint8  `json:"precision"`
}

// Document is the full genesis document (spec §6 "Genesis format").
type Document struct {
	Timestamp          time.Time          `json:"timestamp"`
	BaseSymbol         string             `json:"base_symbol"`
	BaseName           string             `json:"base_name"`
	BasePrecision      uint8              `json:"base_precision"`
	MaximumShareSupply types.Share        `json:"maximum_share_supply"`
	Balances           []BalanceEntry     `json:"balances"`
	Accounts           []AccountEntry     `json:"accounts"`
	MarketAssets       []MarketAssetEntry `json:"market_assets"`
}

// Load parses a genesis document from path.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read genesis file")
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse genesis file")
	}
	return &doc, nil
}

// ChainID is the hash of the document's canonical serialization (spec
// §6 "The chain id is the hash of the canonical serialization of this
// document").
func (d *Document) ChainID() types.Hash {
	var buf []byte
	buf = appendUint64(buf, uint64(d.Timestamp.Unix()))
	buf = append(buf, d.BaseSymbol...)
	buf = append(buf, 0)
	buf = append(buf, d.BaseName...)
	buf = append(buf, 0)
	buf = append(buf, d.BasePrecision)
	buf = appendUint64(buf, uint64(d.MaximumShareSupply))

	for _, b := range d.Balances {
		buf = append(buf, b.Address[:]...)
		buf = appendUint64(buf, uint64(b.Amount))
	}
	for _, a := range d.Accounts {
		buf = append(buf, a.Name...)
		buf = append(buf, 0)
		buf = append(buf, a.OwnerKey...)
		if a.IsDelegate {
			buf = append(buf, 1, a.PayRatePct)
		} else {
			buf = append(buf, 0)
		}
	}
	for _, m := range d.MarketAssets {
		buf = append(buf, m.Symbol...)
		buf = append(buf, 0)
		buf = append(buf, m.Name...)
		buf = append(buf, 0)
		buf = append(buf, m.Precision)
	}
	return types.HashBytes(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// Apply seeds root and idx from the document, and returns the derived
// chain id. Fails with ErrNotEnoughDelegates if fewer delegates are
// named than cfg.ActiveDelegateCount requires.
func Apply(root state.Store, idx state.BlockIndexStore, cfg params.Consensus, doc *Document) (types.Hash, error) {
	delegateCount := 0
	for _, a := range doc.Accounts {
		if a.IsDelegate {
			delegateCount++
		}
	}
	if delegateCount < cfg.ActiveDelegateCount {
		return types.Hash{}, errors.Wrapf(ErrNotEnoughDelegates, "required %d, provided %d", cfg.ActiveDelegateCount, delegateCount)
	}

	// God account: the base asset's issuer, id 0, never a delegate.
	root.StoreAccount(&state.Account{ID: 0, Name: "god"})

	var delegateIDs []types.AccountID
	for i, a := range doc.Accounts {
		id := types.AccountID(i + 1)
		acc := &state.Account{
			ID:       id,
			Name:     a.Name,
			OwnerKey: a.OwnerKey,
			ActiveKeys: []state.ActiveKey{
				{Key: a.OwnerKey, ValidFrom: doc.Timestamp},
			},
		}
		if a.IsDelegate {
			acc.Delegate = &state.DelegateInfo{
				PayRatePct: a.PayRatePct,
				// Bootstrap commitment: the first producer in slot
				// order must reveal the zero secret, whose
				// ripemd160 is this hash (spec §4.F step 4).
				NextSecretHash: chaincrypto.NextSecretHash(types.Hash{}),
			}
			delegateIDs = append(delegateIDs, id)
		}
		root.StoreAccount(acc)
		evaluator.SeedDelegateID(root, id, a.IsDelegate)
	}
	evaluator.SeedNextAccountID(root, uint64(len(doc.Accounts)))

	var totalBalance types.Share
	for _, b := range doc.Balances {
		totalBalance += b.Amount
	}
	for _, b := range doc.Balances {
		condHash := types.HashBytes(b.Address[:])
		root.StoreBalance(&state.Balance{
			ID:               condHash,
			WithdrawCondHash: condHash,
			Owner:            b.Address,
			Amount:           b.Amount,
			AssetID:          types.BaseAssetID,
			CreatedAt:        doc.Timestamp,
			LastUpdate:       doc.Timestamp,
		})
	}

	root.StoreAsset(&state.Asset{
		ID:                 types.BaseAssetID,
		Symbol:             doc.BaseSymbol,
		Name:               doc.BaseName,
		Precision:          doc.BasePrecision,
		Issuer:             0,
		CurrentShareSupply: totalBalance,
		MaximumShareSupply: doc.MaximumShareSupply,
	})

	for i, m := range doc.MarketAssets {
		root.StoreAsset(&state.Asset{
			ID:                 types.AssetID(i + 1),
			Symbol:             m.Symbol,
			Name:               m.Name,
			Precision:          m.Precision,
			IsMarketIssued:     true,
			MaximumShareSupply: doc.MaximumShareSupply,
		})
	}
	evaluator.SeedNextAssetID(root, uint64(len(doc.MarketAssets)))

	root.StoreHeadBlockNum(0)
	root.StoreCurrentRandomSeed(types.Hash{})
	block.SeedActiveDelegates(root, delegateIDs)

	genesisNode := &state.ForkNode{
		BlockID:    types.BlockID{},
		PreviousID: types.BlockID{},
		IsKnown:    true,
		IsLinked:   true,
		IsValid:    true,
		IsIncluded: true,
	}
	idx.StoreForkNode(genesisNode)
	idx.StoreHeadBlockID(types.BlockID{})

	chainID := doc.ChainID()
	root.StoreProperty(chainIDProperty, chainID[:])
	return chainID, nil
}

// VerifyChainID checks a previously-opened store's persisted chain id
// against doc's derived one (spec §6 "wrong_chain_id").
func VerifyChainID(root state.Store, doc *Document) (types.Hash, error) {
	want := doc.ChainID()
	raw, ok := root.GetProperty(chainIDProperty)
	if !ok {
		return want, nil // fresh store, nothing to compare against yet
	}
	var got types.Hash
	copy(got[:], raw)
	if got != want {
		return types.Hash{}, errors.Wrapf(ErrWrongChainID, "stored %s, genesis %s", got, want)
	}
	return want, nil
}

// IsApplied reports whether root already has a genesis chain id
// stamped, i.e. whether Bootstrap would Apply or merely VerifyChainID.
func IsApplied(root state.Store) bool {
	_, ok := root.GetProperty(chainIDProperty)
	return ok
}

// Bootstrap is the single entry point cmd/node calls on startup: it
// applies doc to a fresh store, or verifies a previously-applied
// store's chain id still matches doc (spec §6 "Mismatch between
// stored chain id and genesis chain id fails open with wrong_chain_id").
func Bootstrap(root state.Store, idx state.BlockIndexStore, cfg params.Consensus, doc *Document) (types.Hash, error) {
	if IsApplied(root) {
		return VerifyChainID(root, doc)
	}
	return Apply(root, idx, cfg, doc)
}
