package evaluator

import "github.com/bts-go/chaincore/pkg/types"

// OpTag dispatches an Operation to its evaluation rule, mirroring the
// teacher's SignedTransaction.Type tag
// (pkg/app/core/transaction/verifier.go).
type OpTag string

const (
	OpWithdraw         OpTag = "withdraw"
	OpDeposit          OpTag = "deposit"
	OpRegisterAccount  OpTag = "register_account"
	OpUpdateAccount    OpTag = "update_account"
	OpCreateAsset      OpTag = "create_asset"
	OpUpdateAsset      OpTag = "update_asset"
	OpIssueAsset       OpTag = "issue_asset"
	OpBid              OpTag = "bid"
	OpAsk              OpTag = "ask"
	OpShort            OpTag = "short"
	OpWithdrawPay      OpTag = "withdraw_pay"
	OpUpdateBalanceVote OpTag = "update_balance_vote"
)

// Operation is one instruction inside a transaction. Exactly one of
// the payload pointers matching Tag is non-nil; this flat-tagged shape
// follows the teacher's SignedTransaction{Type, Order, Cancel} layout
// rather than a Go interface, since every operation kind here is a
// plain data payload with no per-kind behavior of its own.
type Operation struct {
	Tag OpTag

	Withdraw        *WithdrawOp
	Deposit         *DepositOp
	RegisterAccount *RegisterAccountOp
	UpdateAccount   *UpdateAccountOp
	CreateAsset     *CreateAssetOp
	UpdateAsset     *UpdateAssetOp
	IssueAsset      *IssueAssetOp
	Bid             *OrderOp
	Ask             *OrderOp
	Short           *ShortOp
	WithdrawPay     *WithdrawPayOp
	UpdateBalanceVote *UpdateBalanceVoteOp
}

// WithdrawOp consumes a balance by amount (spec §4.D "withdraw").
type WithdrawOp struct {
	BalanceID types.BalanceID
	AssetID   types.AssetID
	Amount    types.Share
}

// DepositOp creates or augments a balance at a withdraw condition's
// content hash (spec §4.D "deposit").
type DepositOp struct {
	ConditionHash types.Hash
	Owner         types.Address
	AssetID       types.AssetID
	Amount        types.Share
}

// RegisterAccountOp creates a new named account (spec §4.D
// "register_account").
type RegisterAccountOp struct {
	Name          string
	OwnerKey      []byte
	IsDelegate    bool
	DelegatePayRatePct uint8
}

// UpdateAccountOp mutates an existing account (spec §4.D
// "update_account"). Nil pointer fields mean "leave unchanged".
type UpdateAccountOp struct {
	AccountID      types.AccountID
	NewActiveKey   []byte
	NewPayRatePct  *uint8
}

// CreateAssetOp defines a new asset (spec §4.D "create_asset").
type CreateAssetOp struct {
	Symbol             string
	Name               string
	Precision          uint8
	Issuer             types.AccountID
	IsMarketIssued     bool
	MaximumShareSupply types.Share
}

// UpdateAssetOp mutates mutable asset fields (spec §4.D
// "update_asset").
type UpdateAssetOp struct {
	AssetID            types.AssetID
	NewMaximumSupply    *types.Share
}

// IssueAssetOp mints new units of a non-market-issued asset into a
// balance (spec §4.D "issue_asset").
type IssueAssetOp struct {
	AssetID types.AssetID
	Amount  types.Share
	Owner   types.Address
}

// OrderOp is a bid or ask. A positive Amount creates/augments the
// order; a negative Amount cancels it, refunding |Amount| to Owner
// (spec §4.D "bid / ask / short").
type OrderOp struct {
	QuoteAsset types.AssetID
	BaseAsset  types.AssetID
	Owner      types.Address
	Price      types.Price
	Amount     types.Share
}

// ShortOp is a short order. BaseAsset must be the system base asset
// (id 0) and QuoteAsset must be market-issued (spec §4.D "short").
type ShortOp struct {
	QuoteAsset types.AssetID
	BaseAsset  types.AssetID
	Owner      types.Address
	Amount     types.Share
	LimitPrice *types.Price
}

// UpdateBalanceVoteOp sets or clears which delegates a base-asset
// balance endorses (spec §3 "Balance ... delegate_slate_id", "Delegate
// slate: a set of delegate ids a balance endorses"). An empty
// Delegates list clears the vote (slate id zero).
type UpdateBalanceVoteOp struct {
	BalanceID types.BalanceID
	Delegates []types.AccountID
}

// WithdrawPayOp drains a delegate's accumulated pay_balance, always in
// base asset, depositing it into Destination's default base-asset
// balance (spec §4.D "withdraw_pay").
type WithdrawPayOp struct {
	DelegateID  types.AccountID
	Amount      types.Share
	Destination types.Address
}
