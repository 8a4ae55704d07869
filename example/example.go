package main

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/zkcoinjoin/wabisabi/pkg/client"
	"github.com/zkcoinjoin/wabisabi/pkg/coinjoin"
	"github.com/zkcoinjoin/wabisabi/pkg/coordinator"
	"github.com/zkcoinjoin/wabisabi/pkg/ownership"
	"github.com/zkcoinjoin/wabisabi/pkg/round"
	"go.uber.org/zap"
)

// Wallet owns a single coin, and the key of the output it mixes into.
type Wallet struct {
	Name string
	Key  *ownership.Key
	Coin coinjoin.Coin
	Out  *ownership.Key
}

// NewWallets funds one wallet per amount in utxos, alternating P2WPKH and P2TR coins.
func NewWallets(utxos *coordinator.UTXOSet, amounts []btcutil.Amount) ([]*Wallet, error) {
	wallets := make([]*Wallet, len(amounts))
	for i, amount := range amounts {
		scriptType := coinjoin.P2WPKH
		if i%2 == 1 {
			scriptType = coinjoin.P2TR
		}
		key, err := ownership.GenerateKey(scriptType)
		if err != nil {
			return nil, err
		}
		out, err := ownership.GenerateKey(coinjoin.P2TR)
		if err != nil {
			return nil, err
		}
		outpoint := wire.OutPoint{Hash: chainhash.DoubleHashH(key.PkScript()), Index: uint32(i)}
		utxos.Add(outpoint, wire.NewTxOut(int64(amount), key.PkScript()))
		wallets[i] = &Wallet{
			Name: string(rune('a' + i%26)),
			Key:  key,
			Coin: coinjoin.NewCoin(outpoint, amount, key.PkScript()),
			Out:  out,
		}
	}
	return wallets, nil
}

// phaseBarrier counts the participants done with each phase.
type phaseBarrier map[round.Phase]*sync.WaitGroup

func newPhaseBarrier(participants int) phaseBarrier {
	b := make(phaseBarrier)
	for _, p := range []round.Phase{round.InputRegistration, round.ConnectionConfirmation, round.OutputRegistration} {
		b[p] = new(sync.WaitGroup)
		b[p].Add(participants)
	}
	return b
}

// Schedule advances r each time every participant is done with its phase.
func Schedule(ctx context.Context, r *coordinator.Round, done phaseBarrier, log *zap.Logger) error {
	for _, phase := range []round.Phase{round.InputRegistration, round.ConnectionConfirmation, round.OutputRegistration} {
		wait := make(chan struct{})
		go func() {
			done[phase].Wait()
			close(wait)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
		if err := r.SetPhase(phase.Next()); err != nil {
			return err
		}
		if s := r.State(); s.Phase == round.Ended {
			return errors.Errorf("round ended early: %s", s.EndState)
		}
		log.Info("phase started", zap.Stringer("phase", phase.Next()))
	}
	return nil
}

// Participate takes w through every phase of the round awaited with u.
func Participate(ctx context.Context, w *Wallet, arena *coordinator.Arena, u *client.RoundStateUpdater, id round.ID, done phaseBarrier, log *zap.Logger) error {
	log = log.With(zap.String("wallet", w.Name))
	state, err := u.WaitForPhase(ctx, id, round.InputRegistration)
	if err != nil {
		return err
	}

	// INPUT REGISTRATION
	alice, err := client.RegisterInput(ctx, arena, state, w.Key, w.Coin, rand.Reader, log)
	if err != nil {
		return errors.Wrap(err, "register input")
	}
	done[round.InputRegistration].Done()

	// CONNECTION CONFIRMATION
	if _, err := u.WaitForPhase(ctx, id, round.ConnectionConfirmation); err != nil {
		return err
	}
	if _, err := alice.ConfirmConnection(ctx); err != nil {
		return errors.Wrap(err, "confirm connection")
	}
	done[round.ConnectionConfirmation].Done()

	// OUTPUT REGISTRATION
	if _, err := u.WaitForPhase(ctx, id, round.OutputRegistration); err != nil {
		return err
	}
	bob, err := client.NewBobClient(arena, state, rand.Reader, log)
	if err != nil {
		return err
	}
	issued, _ := alice.Credentials()
	value, err := bob.SpendAll(ctx, issued, w.Out.PkScript())
	if err != nil {
		return errors.Wrap(err, "register output")
	}
	log.Info("output registered", zap.Int64("input", int64(w.Coin.Amount())), zap.Int64("output", int64(value)))
	done[round.OutputRegistration].Done()

	// TRANSACTION SIGNING
	signing, err := u.WaitForPhase(ctx, id, round.TransactionSigning)
	if err != nil {
		return err
	}
	if err := alice.Sign(ctx, signing); err != nil {
		return errors.Wrap(err, "sign")
	}
	return nil
}
