package servicenode

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/zeebo/blake3"

	"github.com/Klingon-tech/klingnet-snode/config"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// QuorumState is the set of nodes chosen at a height to test the liveness of
// the nodes in NodesToTest.
type QuorumState struct {
	QuorumNodes []types.PublicKey
	NodesToTest []types.PublicKey
}

func (q *QuorumState) clone() *QuorumState {
	return &QuorumState{
		QuorumNodes: append([]types.PublicKey(nil), q.QuorumNodes...),
		NodesToTest: append([]types.PublicKey(nil), q.NodesToTest...),
	}
}

// QuorumState returns a copy of the quorum chosen at height, if it is still
// retained.
func (l *List) QuorumState(height uint64) (*QuorumState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q, ok := l.quorums[height]
	if !ok {
		return nil, false
	}
	return q.clone(), true
}

func (l *List) storeQuorumState(height uint64, blockHash types.Hash) {
	l.quorums[height] = computeQuorum(l.reg.sortedKeys(), blockHash)
	for h := range l.quorums {
		if h+config.QuorumStateRetention <= height {
			delete(l.quorums, h)
		}
	}
}

// computeQuorum shuffles keys with a stream seeded by the block hash and
// splits off the quorum and the nodes it tests.
func computeQuorum(keys []types.PublicKey, blockHash types.Hash) *QuorumState {
	h := blake3.New()
	_, _ = h.Write(blockHash[:])
	shuffle(keys, h.Digest())

	n := len(keys)
	quorum := min(config.QuorumSize, n)
	remaining := n - quorum
	toTest := max(remaining/config.NthOfNetworkToTest, min(config.MinNodesToTest, remaining))

	return &QuorumState{
		QuorumNodes: append([]types.PublicKey(nil), keys[:quorum]...),
		NodesToTest: append([]types.PublicKey(nil), keys[quorum:quorum+toTest]...),
	}
}

// shuffle is a Fisher-Yates shuffle driven by r.
func shuffle(keys []types.PublicKey, r io.Reader) {
	for i := len(keys) - 1; i > 0; i-- {
		j := uniform(r, uint64(i+1))
		keys[i], keys[j] = keys[j], keys[i]
	}
}

// uniform returns a value in [0, n) from r without modulo bias.
func uniform(r io.Reader, n uint64) uint64 {
	limit := math.MaxUint64 - math.MaxUint64%n
	var buf [8]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			// The BLAKE3 output stream does not fail.
			panic(err)
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if v < limit {
			return v % n
		}
	}
}
