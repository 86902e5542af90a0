// Command fakechain runs an in-memory fakechain and shows the service node
// reward rotation.
//
// Usage: go run ./cmd/fakechain/ [--nodes=N] [--blocks=M] [--log-level=...]
//
// It registers N service nodes in consecutive blocks, then produces M
// blocks whose miner transaction pays the selected winner, printing the
// winner and registry size at every height. With the fakechain lock of 30
// blocks plus a 10 block grace window, runs longer than 40 blocks show the
// registrations expiring.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Klingon-tech/klingnet-snode/config"
	klog "github.com/Klingon-tech/klingnet-snode/internal/log"
	"github.com/Klingon-tech/klingnet-snode/internal/miner"
	"github.com/Klingon-tech/klingnet-snode/internal/node"
	"github.com/Klingon-tech/klingnet-snode/pkg/crypto"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

const genesisTime = 1700000000

func main() {
	numNodes := flag.Int("nodes", 4, "Service nodes to register")
	numBlocks := flag.Int("blocks", 50, "Blocks to produce after registration")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	cfg := config.DefaultFakechain()
	cfg.DataDir = ""
	cfg.Log.Level = *logLevel

	n, err := node.New(cfg)
	if err != nil {
		fatal("create node: %v", err)
	}
	defer n.Stop()
	if err := n.Start(); err != nil {
		fatal("start node: %v", err)
	}
	logger := klog.WithComponent("fakechain")

	m := n.NewMiner(miner.Config{
		FeeAddress:      newAddress(),
		ProducerAddress: newAddress(),
		NetworkFee:      config.Coin,
	})

	// ── Phase 1: Register service nodes ─────────────────────────────────
	names := make(map[types.PublicKey]string, *numNodes)
	for i := 0; i < *numNodes; i++ {
		keys := newRegistrationKeys()
		height := n.Height()
		regTx, err := tx.NewRegistrationTx(height, n.Protocol().LockBlocks, keys,
			n.Chain().StakingRequirement(height), newSecret())
		if err != nil {
			fatal("build registration: %v", err)
		}
		if err := n.SubmitTx(regTx); err != nil {
			fatal("submit registration: %v", err)
		}
		if _, err := n.MineBlock(m, genesisTime+height); err != nil {
			fatal("mine registration block: %v", err)
		}
		names[keys.SpendPublicKey] = fmt.Sprintf("sn-%d", i+1)
		logger.Info().
			Str("node", names[keys.SpendPublicKey]).
			Uint64("height", height).
			Msg("Service node registered")
	}

	// ── Phase 2: Produce blocks and show the rotation ───────────────────
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HEIGHT\tPAID\tNODES\tNEXT")
	for i := 0; i < *numBlocks; i++ {
		height := n.Height()
		paid := "-"
		if winner, ok := n.ServiceNodes().SelectWinner(); ok {
			paid = names[winner]
		}
		if _, err := n.MineBlock(m, genesisTime+height); err != nil {
			fatal("mine block %d: %v", height, err)
		}
		next := "-"
		if winner, ok := n.ServiceNodes().SelectWinner(); ok {
			next = names[winner]
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", height, paid, n.ServiceNodes().Count(), next)
	}
	w.Flush()

	st := n.Status()
	fmt.Printf("\nFinal height %d, %d service nodes registered (active from height %d)\n",
		st.Height, st.ServiceNodes, st.ActivationHeight)
	if q, ok := n.ServiceNodes().QuorumState(st.Height - 1); ok {
		fmt.Printf("Quorum at %d: %d members, %d nodes to test\n", st.Height-1, len(q.QuorumNodes), len(q.NodesToTest))
	}
}

func newSecret() types.SecretKey {
	sec, _, err := crypto.GenerateKeys()
	if err != nil {
		fatal("generate key: %v", err)
	}
	return sec
}

func newRegistrationKeys() tx.RegistrationKeys {
	_, spendPub, err := crypto.GenerateKeys()
	if err != nil {
		fatal("generate key: %v", err)
	}
	viewSec, viewPub, err := crypto.GenerateKeys()
	if err != nil {
		fatal("generate key: %v", err)
	}
	return tx.RegistrationKeys{SpendPublicKey: spendPub, ViewPublicKey: viewPub, ViewSecretKey: viewSec}
}

func newAddress() tx.Address {
	return newRegistrationKeys().Address()
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
