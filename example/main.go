package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/cobra"
	"github.com/zkcoinjoin/wabisabi/pkg/client"
	"github.com/zkcoinjoin/wabisabi/pkg/coordinator"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configPath   string
	participants int
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "example",
	Short: "Run a CoinJoin round in a single process",
	Long: `Run a CoinJoin round in a single process.

A coordinator and a number of wallets, each owning one coin, go through input
registration, connection confirmation, output registration and signing. The
signed transaction is printed at the end.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "coordinator YAML config")
	rootCmd.Flags().IntVarP(&participants, "participants", "n", 5, "number of wallets")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}

func run(ctx context.Context) error {
	logConfig := zap.NewDevelopmentConfig()
	if !verbose {
		logConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := logConfig.Build()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cfg := coordinator.Config{MaxAmountCredentialValue: 1 << 30}
	if configPath != "" {
		if cfg, err = coordinator.LoadConfig(configPath); err != nil {
			return err
		}
	}

	utxos := coordinator.NewUTXOSet()
	arena, err := coordinator.NewArena(cfg, utxos, coordinator.WithLogger(log.Named("coordinator")))
	if err != nil {
		return err
	}
	defer arena.Close()

	amounts := make([]btcutil.Amount, participants)
	for i := range amounts {
		amounts[i] = btcutil.Amount(100_000 * (i + 1))
	}
	wallets, err := NewWallets(utxos, amounts)
	if err != nil {
		return err
	}

	r, err := arena.CreateRound()
	if err != nil {
		return err
	}
	updater := client.NewRoundStateUpdater(arena, 50*time.Millisecond, log.Named("updater"))
	done := newPhaseBarrier(len(wallets))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	updaterCtx, stopUpdater := context.WithCancel(ctx)
	defer stopUpdater()
	go func() { _ = updater.Run(updaterCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return Schedule(gctx, r, done, log.Named("scheduler"))
	})
	for _, w := range wallets {
		w := w
		g.Go(func() error {
			return Participate(gctx, w, arena, updater, r.ID(), done, log.Named("wallet"))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	final, err := updater.WaitForPhase(ctx, r.ID(), round.Ended)
	if err != nil {
		return err
	}
	tx, err := r.Transaction()
	if err != nil {
		return err
	}
	utxos.ApplyTransaction(tx)
	log.Info("round ended",
		zap.Stringer("end_state", final.EndState),
		zap.Stringer("txid", final.TransactionHash()),
		zap.Int("inputs", len(tx.TxIn)),
		zap.Int("outputs", len(tx.TxOut)),
		zap.Stringer("fee_rate", final.CoinjoinState.EffectiveFeeRate()))
	for i, out := range tx.TxOut {
		fmt.Printf("output %d: %v to %x\n", i, btcutil.Amount(out.Value), out.PkScript)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
