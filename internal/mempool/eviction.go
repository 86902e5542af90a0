package mempool

// PruneStale removes transactions built for a height below nextHeight.
// They can never verify again. Returns the number removed.
func (p *Pool) PruneStale(nextHeight uint64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pruned := 0
	for h, e := range p.txs {
		if e.hasTarget && e.target < nextHeight {
			p.removeLocked(h)
			pruned++
		}
	}
	return pruned
}
