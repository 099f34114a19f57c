// Package params holds the constants that must match across peers
// (spec.md §6 "Constants that are part of consensus") plus node-local
// operational config, loaded the way the teacher's params package
// does: defaults overridable by .env / environment variables.
package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RuleVersion selects a historical matching-engine rule set by fork
// height (spec §9 "Consensus rule versioning"). Rules must never be
// chosen by wall-clock condition.
type RuleVersion int

const (
	RuleV2 RuleVersion = iota
	RuleV7
)

// Consensus holds the constants every peer on a chain must agree on
// (spec §6).
type Consensus struct {
	BlockInterval        time.Duration
	ActiveDelegateCount  int
	MaxUndoHistoryDepth  uint32
	Checkpoints          map[uint32]string // block_num -> hex block id
	ForkHeights          []ForkHeight      // ascending by Height
	MinMarketDepth       int64
	MaxShortAPRPercent   int64
	MaxShortPeriod       time.Duration
	BlocksPerHour        int64
	RequiredFees         int64
	DelegatePayPerBlock  int64
	InitialConfirmations uint32
}

// ForkHeight pairs a block height with the rule version active from
// that height onward (spec §9).
type ForkHeight struct {
	Height uint32
	Rule   RuleVersion
}

// RuleAt returns the matching-engine rule version in effect at
// blockNum, by scanning the fork-heights table (spec §9: "selects by
// head block number against a fixed table of fork heights").
func (c Consensus) RuleAt(blockNum uint32) RuleVersion {
	rule := RuleV2
	for _, fh := range c.ForkHeights {
		if blockNum < fh.Height {
			break
		}
		rule = fh.Rule
	}
	return rule
}

// Node is node-local operational configuration, not part of consensus.
type Node struct {
	DataDir              string
	ProductionDeadline   time.Duration
	MaxBlockSize         int
	SkipSignatureVerify  bool // boot-only replay switch, spec §9; not writable post-boot
	HTTPListenAddr       string
}

// Config bundles consensus constants with node-local config, mirroring
// the teacher's params.Config shape.
type Config struct {
	Consensus Consensus
	Node      Node
}

// Default returns the BitShares-mainnet-derived defaults: 10s blocks,
// 101 active delegates, 25% max short APR, 30-day max short period.
func Default() Config {
	return Config{
		Consensus: Consensus{
			BlockInterval:       10 * time.Second,
			ActiveDelegateCount: 101,
			MaxUndoHistoryDepth: 1024,
			Checkpoints:         map[uint32]string{},
			ForkHeights: []ForkHeight{
				{Height: 0, Rule: RuleV2},
				{Height: 900000, Rule: RuleV7},
			},
			MinMarketDepth:       100000, // 1.0 in base precision 10^5
			MaxShortAPRPercent:   25,
			MaxShortPeriod:       30 * 24 * time.Hour,
			BlocksPerHour:        360,
			RequiredFees:         10000,
			DelegatePayPerBlock:  considerDelegatePay,
			InitialConfirmations: 202, // 2*N
		},
		Node: Node{
			DataDir:            "./data",
			ProductionDeadline: 3 * time.Second,
			MaxBlockSize:        2 << 20,
			SkipSignatureVerify: false,
			HTTPListenAddr:      ":8090",
		},
	}
}

const considerDelegatePay = 668

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables, overriding Default(). Priority: ENV > .env >
// defaults, mirroring the teacher's params.LoadFromEnv.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("CHAINCORE_BLOCK_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Consensus.BlockInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("CHAINCORE_ACTIVE_DELEGATE_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Consensus.ActiveDelegateCount = n
		}
	}
	if v := os.Getenv("CHAINCORE_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("CHAINCORE_HTTP_LISTEN_ADDR"); v != "" {
		cfg.Node.HTTPListenAddr = v
	}
	if v := os.Getenv("CHAINCORE_PRODUCTION_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.ProductionDeadline = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CHAINCORE_SKIP_SIGNATURE_VERIFY"); v != "" {
		cfg.Node.SkipSignatureVerify = v == "true"
	}

	return cfg
}
