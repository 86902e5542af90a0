package config

import (
	"fmt"
	"math"
	"sort"
)

// =============================================================================
// Protocol Rules (immutable, per network)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. All on-chain values are in atomic units.
const (
	Decimals = 9
	Coin     = 1_000_000_000 // 10^9 atomic units per coin
)

// DustThreshold bounds rounding error in the floating point part of the
// staking curve.
const DustThreshold = 2_000_000_000

// MaxBlockNumber is the largest unlock time interpreted as a block height.
// Larger values are timestamps.
const MaxBlockNumber = 500_000_000

// ServiceNodeVersion is the hard fork version that activates service nodes.
const ServiceNodeVersion = 8

// SubaddressLookahead is the number of minor subaddress indexes of account
// 0 checked when recognising outputs paid to a service node.
const SubaddressLookahead = 200

// DefaultBaseReward is the block reward before the service node share is
// taken out.
const DefaultBaseReward = 50 * Coin

// MinerUnlockWindow is the number of blocks a miner output stays locked.
const MinerUnlockWindow = 60

// Staking curve parameters.
const (
	stakingHalfLife       = 129_600
	stakingLinearEnd      = 3_628_800
	stakingLinearDivisor  = 2_592
	stakingFloor          = 10_000 * Coin
	stakingDecayingPart   = 35_000 * Coin
	stakingLinearBase     = 8_000 * Coin
	stakingLinearPerBlock = 5 * Coin
	stakingCap            = 15_000 * Coin
)

// Quorum parameters.
const (
	QuorumSize           = 10
	NthOfNetworkToTest   = 100
	MinNodesToTest       = 50
	QuorumStateRetention = 30
)

// HardFork activates a block major version at a height.
type HardFork struct {
	Version uint8  `json:"version"`
	Height  uint64 `json:"height"`
}

// Protocol holds the consensus rules of one network.
type Protocol struct {
	Network NetworkType `json:"network"`

	// HardForks is sorted by height; the first entry must be at height 0.
	HardForks []HardFork `json:"hard_forks"`

	// LockBlocks is how long a registration locks its stake.
	LockBlocks uint64 `json:"lock_blocks"`

	// RelockWindowBlocks is the grace period after the lock ends during
	// which a node stays registered.
	RelockWindowBlocks uint64 `json:"relock_window_blocks"`

	// StakingCurveHeight anchors the decaying staking curve. Zero selects
	// the flat FlatStake requirement instead.
	StakingCurveHeight uint64 `json:"staking_curve_height,omitempty"`
	FlatStake          uint64 `json:"flat_stake,omitempty"`

	BaseReward uint64 `json:"base_reward"`
}

// MainnetProtocol returns the mainnet rules.
func MainnetProtocol() *Protocol {
	return &Protocol{
		Network: Mainnet,
		HardForks: []HardFork{
			{Version: 1, Height: 0},
			{Version: 7, Height: 1},
			{Version: ServiceNodeVersion, Height: 101_250},
		},
		LockBlocks:         30 * 24 * 30,
		RelockWindowBlocks: 30 * 24 * 2,
		StakingCurveHeight: 101_250,
		BaseReward:         DefaultBaseReward,
	}
}

// TestnetProtocol returns the testnet rules.
func TestnetProtocol() *Protocol {
	return &Protocol{
		Network: Testnet,
		HardForks: []HardFork{
			{Version: 1, Height: 0},
			{Version: 7, Height: 1},
			{Version: ServiceNodeVersion, Height: 96_210},
		},
		LockBlocks:         30 * 24 * 2,
		RelockWindowBlocks: 30 * 24,
		StakingCurveHeight: 96_210,
		BaseReward:         DefaultBaseReward,
	}
}

// FakechainProtocol returns the rules of the local simulation network:
// service nodes from height 1, short locks and a flat stake.
func FakechainProtocol() *Protocol {
	return &Protocol{
		Network: Fakechain,
		HardForks: []HardFork{
			{Version: 7, Height: 0},
			{Version: ServiceNodeVersion, Height: 1},
		},
		LockBlocks:         30,
		RelockWindowBlocks: 10,
		FlatStake:          100 * Coin,
		BaseReward:         DefaultBaseReward,
	}
}

// ProtocolFor returns the rules for network.
func ProtocolFor(network NetworkType) (*Protocol, error) {
	switch network {
	case Mainnet:
		return MainnetProtocol(), nil
	case Testnet:
		return TestnetProtocol(), nil
	case Fakechain:
		return FakechainProtocol(), nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// Validate checks the rules for internal consistency.
func (p *Protocol) Validate() error {
	if len(p.HardForks) == 0 || p.HardForks[0].Height != 0 {
		return fmt.Errorf("hard fork table must start at height 0")
	}
	for i := 1; i < len(p.HardForks); i++ {
		prev, cur := p.HardForks[i-1], p.HardForks[i]
		if cur.Height <= prev.Height || cur.Version <= prev.Version {
			return fmt.Errorf("hard fork %d (v%d at %d) not after v%d at %d",
				i, cur.Version, cur.Height, prev.Version, prev.Height)
		}
	}
	if p.LockBlocks == 0 {
		return fmt.Errorf("lock_blocks must be positive")
	}
	if p.StakingCurveHeight == 0 && p.FlatStake == 0 {
		return fmt.Errorf("either staking_curve_height or flat_stake must be set")
	}
	return nil
}

// HardForkVersion returns the block major version in force at height.
func (p *Protocol) HardForkVersion(height uint64) uint8 {
	i := sort.Search(len(p.HardForks), func(i int) bool {
		return p.HardForks[i].Height > height
	})
	if i == 0 {
		return 0
	}
	return p.HardForks[i-1].Version
}

// ForkHeight returns the activation height of version, or false if the
// version is never activated.
func (p *Protocol) ForkHeight(version uint8) (uint64, bool) {
	for _, hf := range p.HardForks {
		if hf.Version >= version {
			return hf.Height, true
		}
	}
	return 0, false
}

// StakingRequirement returns the minimum stake for a registration at height.
func (p *Protocol) StakingRequirement(height uint64) uint64 {
	if p.StakingCurveHeight == 0 {
		return p.FlatStake
	}
	return StakingCurve(p.StakingCurveHeight, height)
}

// StakingCurve is the decaying stake requirement anchored at forkHeight.
// Heights before the anchor are clamped to it.
func StakingCurve(forkHeight, height uint64) uint64 {
	if height < forkHeight {
		height = forkHeight
	}

	halvings := float64(height-forkHeight) / stakingHalfLife
	decaying := uint64(stakingFloor + float64(stakingDecayingPart)/math.Pow(2, halvings))

	var linear uint64
	if height < stakingLinearEnd {
		linear = stakingLinearPerBlock*height/stakingLinearDivisor + stakingLinearBase
	} else {
		linear = stakingCap
	}
	return max(decaying, linear)
}

// ServiceNodeReward returns the share of baseReward owed to the winning
// service node in a block of the given version.
func ServiceNodeReward(baseReward uint64, version uint8) uint64 {
	if version < ServiceNodeVersion {
		return 0
	}
	return baseReward / 2
}
