package servicenode

import (
	"sort"

	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Info is the registry record of an active service node.
type Info struct {
	ViewPublicKey      types.PublicKey
	ViewSecretKey      types.SecretKey
	RegistrationHeight uint64

	// LastRewardHeight is the height the node last won, or its registration
	// height if it has not won since registering.
	LastRewardHeight uint64

	subaddresses []types.PublicKey
}

// registry maps service node spend keys to their records and remembers
// insertion order. It is not safe for concurrent use; List guards it.
type registry struct {
	nodes map[types.PublicKey]*Info
	order []types.PublicKey

	viewPub map[types.PublicKey]types.PublicKey
	viewSec map[types.PublicKey]types.SecretKey
}

func newRegistry() *registry {
	r := &registry{}
	r.reset()
	return r
}

func (r *registry) reset() {
	r.nodes = make(map[types.PublicKey]*Info)
	r.order = nil
	r.viewPub = make(map[types.PublicKey]types.PublicKey)
	r.viewSec = make(map[types.PublicKey]types.SecretKey)
}

// insert adds reg at height, replacing any existing record for the same
// spend key. A replaced node moves to the end of the insertion order.
func (r *registry) insert(reg *Registration, height uint64) {
	key := reg.SpendPublicKey
	if _, ok := r.nodes[key]; ok {
		r.removeFromOrder(key)
	}
	r.nodes[key] = &Info{
		ViewPublicKey:      reg.ViewPublicKey,
		ViewSecretKey:      reg.ViewSecretKey,
		RegistrationHeight: height,
		LastRewardHeight:   height,
		subaddresses:       reg.Subaddresses,
	}
	r.order = append(r.order, key)
	r.viewPub[key] = reg.ViewPublicKey
	r.viewSec[key] = reg.ViewSecretKey
}

func (r *registry) remove(key types.PublicKey) bool {
	if _, ok := r.nodes[key]; !ok {
		return false
	}
	delete(r.nodes, key)
	delete(r.viewPub, key)
	delete(r.viewSec, key)
	r.removeFromOrder(key)
	return true
}

func (r *registry) removeFromOrder(key types.PublicKey) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *registry) get(key types.PublicKey) (*Info, bool) {
	info, ok := r.nodes[key]
	return info, ok
}

func (r *registry) len() int {
	return len(r.nodes)
}

// keys returns spend keys in insertion order.
func (r *registry) keys() []types.PublicKey {
	out := make([]types.PublicKey, len(r.order))
	copy(out, r.order)
	return out
}

// sortedKeys returns spend keys in ascending byte order.
func (r *registry) sortedKeys() []types.PublicKey {
	out := r.keys()
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}

func (r *registry) address(key types.PublicKey) tx.Address {
	return tx.Address{SpendPublicKey: key, ViewPublicKey: r.viewPub[key]}
}

// snapshot returns copies of all records keyed by spend key.
func (r *registry) snapshot() map[types.PublicKey]Info {
	out := make(map[types.PublicKey]Info, len(r.nodes))
	for k, info := range r.nodes {
		cp := *info
		cp.subaddresses = nil
		out[k] = cp
	}
	return out
}
