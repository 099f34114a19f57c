package market

import "github.com/bts-go/chaincore/params"

// Rules is the fork-height-selected set of matching-engine behaviors
// that diverge across the v2/v7 rule table (spec §9 "Consensus rule
// versioning"). Selected once per pair per block from head block
// number, never from wall-clock time.
type Rules struct {
	Version params.RuleVersion

	// SaveAndRestoreAsk reproduces a pre-fork quirk where the best ask
	// order's pre-match state is snapshotted and restored after a
	// short/ask cover-creation match consumes it, rather than being
	// persisted consumed (spec §9 open question: "the v2 engine
	// contains a save_and_restore_ask hack"). This port replays chain
	// history from genesis, so the quirk is emulated rather than
	// dropped (see DESIGN.md "Open Questions resolved").
	SaveAndRestoreAsk bool

	// NegativeFeesAllowed reflects the hard-forked sign change in
	// pay_delegate's accumulated-fees bookkeeping (spec §9 open
	// question on `pay_delegate`); false pre-fork clamps collected
	// fees at zero, true post-fork allows a negative adjustment to
	// net out a prior over-collection.
	NegativeFeesAllowed bool
}

// RulesAt resolves the rule set in effect at blockNum via the
// consensus fork-heights table.
func RulesAt(cfg params.Consensus, blockNum uint32) Rules {
	switch cfg.RuleAt(blockNum) {
	case params.RuleV7:
		return Rules{Version: params.RuleV7, SaveAndRestoreAsk: false, NegativeFeesAllowed: true}
	default:
		return Rules{Version: params.RuleV2, SaveAndRestoreAsk: true, NegativeFeesAllowed: false}
	}
}
