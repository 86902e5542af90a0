package servicenode

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

var (
	errRewardAmount = errors.New("service node reward amount incorrect")
	errListStale    = errors.New("service node list incomplete")
)

// ValidateMinerTx reports whether minerTx, in the block following prevID,
// pays the current winner the service node share of baseReward. The output
// key is checked by derivation, not by comparing addresses. Before the
// service node fork every miner tx passes.
func (l *List) ValidateMinerTx(prevID types.Hash, minerTx *tx.Transaction, baseReward uint64) bool {
	version := l.bc.CurrentHardForkVersion()
	if version < config.ServiceNodeVersion {
		return true
	}

	if err := l.recoverStale(); err != nil {
		log.ServiceNodes.Error().Err(err).
			Str("prev", prevID.String()).
			Msg("Refusing miner tx validation")
		return false
	}
	if err := l.checkMinerTx(minerTx, baseReward, version); err != nil {
		log.ServiceNodes.Warn().Err(err).
			Str("prev", prevID.String()).
			Uint64("height", l.bc.Height()).
			Msg("Miner tx failed service node validation")
		return false
	}
	return true
}

// recoverStale rescans the chain if the list missed a block.
func (l *List) recoverStale() error {
	l.mu.RLock()
	stale := l.stale
	l.mu.RUnlock()
	if !stale {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stale {
		return nil
	}
	log.ServiceNodes.Warn().Msg("Service node list incomplete, rescanning before validation")
	if err := l.rebuild(); err != nil {
		return fmt.Errorf("%w: %w", errListStale, err)
	}
	return nil
}

func (l *List) checkMinerTx(minerTx *tx.Transaction, baseReward uint64, version uint8) error {
	if len(minerTx.Outputs) != minerTxOutputs {
		return fmt.Errorf("%w: has %d", errMinerTxOutputs, len(minerTx.Outputs))
	}
	reward := config.ServiceNodeReward(baseReward, version)
	if got := minerTx.Outputs[serviceNodeOutIndex].Amount; got != reward {
		return fmt.Errorf("%w: should be %d, is %d", errRewardAmount, reward, got)
	}
	outKey, txPub, err := serviceNodeOutput(minerTx)
	if err != nil {
		return err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.stale {
		return errListStale
	}
	winner, ok := l.reg.selectWinner()
	if !ok {
		return nil
	}
	info, _ := l.reg.get(winner)
	if !paysNode(l.dev, info, outKey, txPub) {
		return fmt.Errorf("%w %s", errNotWinnerAddress, winner)
	}
	return nil
}
