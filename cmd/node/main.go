// cmd/node runs a single chain node: it opens (or initializes) the
// pebble-backed store, applies/verifies genesis, wires the block
// processor, mempool, and observer bus together, serves the observer
// websocket feed, and — when a local delegate key is configured —
// produces blocks for the slots it owns. Grounded structurally on the
// teacher's cmd/node/main.go: config/logger bootstrap, then wiring the
// already-built engine pieces behind a goroutine per concern, with a
// signal-driven shutdown context.
package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/boundary"
	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/mempool"
	"github.com/bts-go/chaincore/pkg/chain/observer"
	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/genesis"
	"github.com/bts-go/chaincore/pkg/storage"
	"github.com/bts-go/chaincore/pkg/types"
	"github.com/bts-go/chaincore/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.Node.DataDir, "node.log")
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	store, err := storage.Open(filepath.Join(cfg.Node.DataDir, "db"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close() //nolint:errcheck

	needsRebuild, err := storage.CheckVersion(store)
	if err != nil {
		sugar.Fatalw("database_version_check_failed", "err", err)
	}
	if needsRebuild {
		sugar.Fatalw("database_version_older_than_binary",
			"hint", "rebuild-from-genesis requires an empty data dir; move the old one aside and restart")
	}

	genesisPath := os.Getenv("GENESIS_FILE")
	if genesisPath == "" {
		genesisPath = filepath.Join(cfg.Node.DataDir, "genesis.json")
	}
	doc, err := genesis.Load(genesisPath)
	if err != nil {
		sugar.Fatalw("genesis_load_failed", "path", genesisPath, "err", err)
	}

	wasApplied := genesis.IsApplied(store)
	chainID, err := genesis.Bootstrap(store, store, cfg.Consensus, doc)
	if err != nil {
		sugar.Fatalw("genesis_bootstrap_failed", "err", err)
	}
	if !wasApplied {
		storage.StampVersion(store)
		sugar.Infow("genesis_applied", "chain_id", chainID.String())
	} else {
		sugar.Infow("genesis_verified", "chain_id", chainID.String())
	}

	proc := &block.Processor{
		Root:      store,
		Index:     store,
		Consensus: cfg.Consensus,
		Node:      cfg.Node,
		ChainID:   chainID,
		Logger:    sugar,
	}

	bus := observer.NewBus()
	hub := observer.NewHub()
	bus.Subscribe(hub)

	mempoolCtx := evaluator.Context{
		ChainID:                   chainID,
		Now:                       store.Now(),
		SkipSignatureVerification: cfg.Node.SkipSignatureVerify,
		RequiredFees:              types.Share(cfg.Consensus.RequiredFees),
	}
	mp := mempool.New(store, mempoolCtx, mempool.Config{
		BaseRelayFee:     types.Share(cfg.Consensus.RequiredFees),
		TargetQueueDepth: 2000,
	})
	bus.Subscribe(&mempoolResync{mp: mp, store: store})

	proc.Observers = []block.Observer{bus}

	svc := &boundary.Service{Root: store, Index: store, Processor: proc, Mempool: mp}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: cfg.Node.HTTPListenAddr, Handler: observer.NewHTTPHandler(hub)}
	go func() {
		sugar.Infow("observer_server_starting", "addr", cfg.Node.HTTPListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("observer_server_failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if keyHex := os.Getenv("DELEGATE_PRIVATE_KEY_HEX"); keyHex != "" {
		signer, err := chaincrypto.FromPrivateKeyHex(keyHex)
		if err != nil {
			sugar.Fatalw("delegate_key_invalid", "err", err)
		}
		accountID, err := delegateAccountID(os.Getenv("DELEGATE_ACCOUNT_ID"))
		if err != nil {
			sugar.Fatalw("delegate_account_id_invalid", "err", err)
		}
		prod := &producer{
			store:     store,
			svc:       svc,
			mempool:   mp,
			cfg:       cfg,
			chainID:   chainID,
			accountID: accountID,
			signer:    signer,
			logger:    sugar,
		}
		go prod.run(ctx)
		sugar.Infow("block_production_enabled", "account_id", accountID)
	} else {
		sugar.Info("no delegate key configured, running in observer-only mode")
	}

	progress := time.NewTicker(5 * time.Second)
	defer progress.Stop()
	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_shutting_down")
			return
		case <-progress.C:
			headID, _ := store.GetHeadBlockID()
			sugar.Infow("progress", "head_block_num", store.GetHeadBlockNum(), "head_block_id", headID.String(), "pending_tx", mp.Len())
		}
	}
}

var errNoDelegateAccountID = errors.New("cmd/node: DELEGATE_ACCOUNT_ID must be set alongside DELEGATE_PRIVATE_KEY_HEX")

func delegateAccountID(raw string) (types.AccountID, error) {
	if raw == "" {
		return 0, errNoDelegateAccountID
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return types.AccountID(id), nil
}

// mempoolResync adapts block.Observer to the mempool's rebuild hook
// (spec §4.H "On new head"): every commit or pop must re-root the
// running pending state on the fresh head before the mempool's fee
// index is trusted again.
type mempoolResync struct {
	mp    *mempool.Mempool
	store state.Store
}

func (r *mempoolResync) BlockApplied(block.BlockSummary)    { r.mp.OnNewHead(r.store) }
func (r *mempoolResync) StateChanged(undo *state.UndoState) { r.mp.OnNewHead(r.store) }

var _ block.Observer = (*mempoolResync)(nil)

// producer ticks once per block interval and, when the local account
// owns the current slot, assembles, signs, and submits a block through
// the same handle_block path gossip-delivered blocks take (spec §6).
type producer struct {
	store     *storage.PebbleStore
	svc       *boundary.Service
	mempool   *mempool.Mempool
	cfg       params.Config
	chainID   types.Hash
	accountID types.AccountID
	signer    *chaincrypto.Signer
	logger    interface {
		Infow(msg string, kv ...interface{})
		Errorw(msg string, kv ...interface{})
	}

	// nextSecret is the commitment this producer will reveal on its
	// next owned slot. It is seeded to the zero secret to match the
	// bootstrap convention genesis.Apply stores for every delegate
	// (pkg/genesis "NextSecretHash = NextSecretHash(zero)"), and is
	// only ever held in memory: restarting between owned slots loses
	// the chain, and the delegate must wait to be scheduled again to
	// resume producing — a known restart exposure, not yet addressed
	// by any persisted secret-reveal checkpoint.
	nextSecret types.Hash
}

func (p *producer) run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Consensus.BlockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tryProduce()
		}
	}
}

func (p *producer) tryProduce() {
	now := time.Now().UTC()
	interval := p.cfg.Consensus.BlockInterval
	slot := block.SlotIndex(now, interval)
	producerID, ok := block.ScheduledProducer(p.store, slot)
	if !ok || producerID != p.accountID {
		return
	}

	headID, _ := p.store.GetHeadBlockID()

	var newSecret types.Hash
	if _, err := rand.Read(newSecret[:]); err != nil {
		p.logger.Errorw("secret_generation_failed", "err", err)
		return
	}

	header := state.BlockHeader{
		BlockNum:       p.store.GetHeadBlockNum() + 1,
		PreviousID:     headID,
		Timestamp:      time.Unix(slot*int64(interval/time.Second), 0).UTC(),
		Signee:         p.signer.PublicKeyBytes(),
		RevealedSecret: p.nextSecret,
		NextSecretHash: chaincrypto.NextSecretHash(newSecret),
	}

	deadline := time.Now().Add(p.cfg.Node.ProductionDeadline)
	var raws [][]byte
	size := 0
	for _, stx := range p.mempool.GetPendingTransactions() {
		if time.Now().After(deadline) {
			break
		}
		raw, err := stx.Encode()
		if err != nil {
			continue
		}
		if size+len(raw) > p.cfg.Node.MaxBlockSize {
			break
		}
		raws = append(raws, raw)
		size += len(raw)
	}

	if !p.cfg.Node.SkipSignatureVerify {
		digest := chaincrypto.SigningDigest(p.chainID, block.HeaderDigest(header))
		sig, err := p.signer.Sign(digest)
		if err != nil {
			p.logger.Errorw("block_signing_failed", "err", err)
			return
		}
		header.Signature = sig
	}

	full := &state.Block{Header: header, Transactions: raws}
	if _, err := p.svc.HandleBlock(full); err != nil {
		p.logger.Errorw("produced_block_rejected", "block_num", header.BlockNum, "err", err)
		return
	}
	p.nextSecret = newSecret
	p.logger.Infow("block_produced", "block_num", header.BlockNum, "tx_count", len(raws))
}
