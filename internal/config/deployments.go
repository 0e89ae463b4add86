package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const (
	PlatformUniswapV3     = "uniswap-v3"
	PlatformPancakeSwapV3 = "pancakeswap-v3"
)

// PlatformDeployment holds the contract addresses of one platform on one chain.
type PlatformDeployment struct {
	Enabled         bool
	Factory         common.Address
	PoolDeployer    common.Address
	PositionManager common.Address
	SwapRouter      common.Address
	InitCodeHash    common.Hash
	// FeeTiers maps a fee tier in hundredths of a bip to its tick spacing.
	FeeTiers map[uint32]int32
}

// Deployer returns the address pools are CREATE2-deployed from.
func (p PlatformDeployment) Deployer() common.Address {
	if p.PoolDeployer != (common.Address{}) {
		return p.PoolDeployer
	}
	return p.Factory
}

// TickSpacing returns the tick spacing of a fee tier.
func (p PlatformDeployment) TickSpacing(feeTier uint32) (int32, bool) {
	spacing, ok := p.FeeTiers[feeTier]
	return spacing, ok
}

// ChainDeployment holds the platforms deployed on one chain.
type ChainDeployment struct {
	Name      string
	Platforms map[string]PlatformDeployment
}

// Deployments is the static chain/platform configuration, keyed by chain id.
type Deployments map[uint64]ChainDeployment

// Platform returns the deployment of platform on chainID.
func (d Deployments) Platform(platform string, chainID uint64) (PlatformDeployment, bool) {
	chain, ok := d[chainID]
	if !ok {
		return PlatformDeployment{}, false
	}
	p, ok := chain.Platforms[platform]
	return p, ok
}

// EnabledPlatforms returns the enabled platform ids of chainID in a stable order.
func (d Deployments) EnabledPlatforms(chainID uint64) []string {
	chain, ok := d[chainID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(chain.Platforms))
	for id, p := range chain.Platforms {
		if p.Enabled {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// ChainIDs returns every configured chain id in ascending order.
func (d Deployments) ChainIDs() []uint64 {
	out := make([]uint64, 0, len(d))
	for id := range d {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	uniswapFeeTiers = map[uint32]int32{100: 1, 500: 10, 3000: 60, 10000: 200}
	pancakeFeeTiers = map[uint32]int32{100: 1, 500: 10, 2500: 50, 10000: 200}
)

func uniswapV3() PlatformDeployment {
	return PlatformDeployment{
		Enabled:         true,
		Factory:         common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		PositionManager: common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88"),
		SwapRouter:      common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
		InitCodeHash:    common.HexToHash("0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"),
		FeeTiers:        copyFeeTiers(uniswapFeeTiers),
	}
}

func pancakeSwapV3() PlatformDeployment {
	return PlatformDeployment{
		Enabled:         true,
		Factory:         common.HexToAddress("0x0BFbCF9fa4f9C56B0F40a671Ad40E0805A091865"),
		PoolDeployer:    common.HexToAddress("0x41ff9AA7e16B8B1a8a8dc4f0eFacd93D02d071c9"),
		PositionManager: common.HexToAddress("0x46A15B0b27311cedF172AB29E4f4766fbE7F4364"),
		SwapRouter:      common.HexToAddress("0x1b81D678ffb9C0263b24A97847620C99d213eB14"),
		InitCodeHash:    common.HexToHash("0x6ce8eb472fa82df5469c6ab6d485f17c3ad13c8cd7af59b3d4a8026c5ce0f7e2"),
		FeeTiers:        copyFeeTiers(pancakeFeeTiers),
	}
}

func copyFeeTiers(in map[uint32]int32) map[uint32]int32 {
	out := make(map[uint32]int32, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// DefaultDeployments returns the built-in deployments. Every call returns a fresh copy.
func DefaultDeployments() Deployments {
	return Deployments{
		1: {
			Name: "ethereum",
			Platforms: map[string]PlatformDeployment{
				PlatformUniswapV3:     uniswapV3(),
				PlatformPancakeSwapV3: pancakeSwapV3(),
			},
		},
		56: {
			Name: "bsc",
			Platforms: map[string]PlatformDeployment{
				PlatformPancakeSwapV3: pancakeSwapV3(),
			},
		},
		42161: {
			Name: "arbitrum",
			Platforms: map[string]PlatformDeployment{
				PlatformUniswapV3: uniswapV3(),
			},
		},
	}
}

// ApplyOverrides merges deployments found under "chains" in v into d.
// Layout: chains.<chainID>.platforms.<platform>.{enabled,factory,pool-deployer,
// position-manager,swap-router,init-code-hash,fee-tiers}.
func ApplyOverrides(d Deployments, v *viper.Viper) error {
	if v == nil || !v.IsSet("chains") {
		return nil
	}
	chains := v.GetStringMap("chains")
	for rawID := range chains {
		chainID, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil {
			return fmt.Errorf("parse chain id %q: %w", rawID, err)
		}
		chainKey := "chains." + rawID
		chain := d[chainID]
		if name := v.GetString(chainKey + ".name"); name != "" {
			chain.Name = name
		}
		if chain.Platforms == nil {
			chain.Platforms = make(map[string]PlatformDeployment)
		}
		for platform := range v.GetStringMap(chainKey + ".platforms") {
			key := chainKey + ".platforms." + platform
			p, err := applyPlatformOverride(chain.Platforms[platform], v.Sub(key))
			if err != nil {
				return fmt.Errorf("chain %d platform %s: %w", chainID, platform, err)
			}
			chain.Platforms[platform] = p
		}
		d[chainID] = chain
	}
	return nil
}

func applyPlatformOverride(p PlatformDeployment, sub *viper.Viper) (PlatformDeployment, error) {
	if sub == nil {
		return p, nil
	}
	if sub.IsSet("enabled") {
		p.Enabled = sub.GetBool("enabled")
	} else if p.PositionManager == (common.Address{}) {
		// A new platform is enabled unless stated otherwise.
		p.Enabled = true
	}
	for key, dst := range map[string]*common.Address{
		"factory":          &p.Factory,
		"pool-deployer":    &p.PoolDeployer,
		"position-manager": &p.PositionManager,
		"swap-router":      &p.SwapRouter,
	} {
		if !sub.IsSet(key) {
			continue
		}
		raw := sub.GetString(key)
		if !common.IsHexAddress(raw) {
			return p, fmt.Errorf("%s: invalid address %q", key, raw)
		}
		*dst = common.HexToAddress(raw)
	}
	if sub.IsSet("init-code-hash") {
		raw := strings.TrimPrefix(sub.GetString("init-code-hash"), "0x")
		if len(raw) != 64 {
			return p, fmt.Errorf("init-code-hash: expected 32 bytes, got %q", raw)
		}
		p.InitCodeHash = common.HexToHash(raw)
	}
	if sub.IsSet("fee-tiers") {
		tiers := make(map[uint32]int32)
		for rawFee, rawSpacing := range sub.GetStringMap("fee-tiers") {
			fee, err := strconv.ParseUint(rawFee, 10, 32)
			if err != nil {
				return p, fmt.Errorf("fee tier %q: %w", rawFee, err)
			}
			spacing, err := strconv.ParseInt(fmt.Sprintf("%v", rawSpacing), 10, 32)
			if err != nil || spacing <= 0 {
				return p, fmt.Errorf("tick spacing for fee tier %d: %v", fee, rawSpacing)
			}
			tiers[uint32(fee)] = int32(spacing)
		}
		p.FeeTiers = tiers
	}
	return p, nil
}
