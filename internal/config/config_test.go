package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestDefaultDeployments(t *testing.T) {
	d := DefaultDeployments()

	uni, ok := d.Platform(PlatformUniswapV3, 1)
	if !ok || !uni.Enabled {
		t.Fatal("expected uniswap-v3 on mainnet")
	}
	if uni.Deployer() != uni.Factory {
		t.Fatal("uniswap pools are deployed by the factory")
	}
	if spacing, ok := uni.TickSpacing(3000); !ok || spacing != 60 {
		t.Fatalf("unexpected tick spacing for 3000: %d", spacing)
	}

	cake, ok := d.Platform(PlatformPancakeSwapV3, 56)
	if !ok {
		t.Fatal("expected pancakeswap-v3 on bsc")
	}
	if cake.Deployer() != cake.PoolDeployer {
		t.Fatal("pancakeswap pools are deployed by the pool deployer")
	}
	if spacing, ok := cake.TickSpacing(2500); !ok || spacing != 50 {
		t.Fatalf("unexpected tick spacing for 2500: %d", spacing)
	}

	if got := d.EnabledPlatforms(1); !reflect.DeepEqual(got, []string{PlatformPancakeSwapV3, PlatformUniswapV3}) {
		t.Fatalf("unexpected platforms: %v", got)
	}
	if got := d.ChainIDs(); !reflect.DeepEqual(got, []uint64{1, 56, 42161}) {
		t.Fatalf("unexpected chains: %v", got)
	}

	// Copies must not share fee tier maps.
	uni.FeeTiers[3000] = 1
	again, _ := DefaultDeployments().Platform(PlatformUniswapV3, 1)
	if again.FeeTiers[3000] != 60 {
		t.Fatal("default deployments share state")
	}
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("chains", map[string]interface{}{
		"56": map[string]interface{}{
			"platforms": map[string]interface{}{
				"pancakeswap-v3": map[string]interface{}{"enabled": false},
			},
		},
		"8453": map[string]interface{}{
			"name": "base",
			"platforms": map[string]interface{}{
				"uniswap-v3": map[string]interface{}{
					"factory":          "0x33128a8fC17869897dcE68Ed026d694621f6FDfD",
					"position-manager": "0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1",
					"swap-router":      "0x2626664c2603336E57B271c5C0b26F421741e481",
					"init-code-hash":   "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54",
					"fee-tiers":        map[string]interface{}{"500": 10, "3000": 60},
				},
			},
		},
	})

	d := DefaultDeployments()
	if err := ApplyOverrides(d, v); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}
	if got := d.EnabledPlatforms(56); len(got) != 0 {
		t.Fatalf("expected pancakeswap disabled on bsc, got %v", got)
	}

	base, ok := d.Platform(PlatformUniswapV3, 8453)
	if !ok || !base.Enabled {
		t.Fatal("expected uniswap-v3 on base")
	}
	if d[8453].Name != "base" {
		t.Fatalf("unexpected chain name %q", d[8453].Name)
	}
	if base.PositionManager != common.HexToAddress("0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1") {
		t.Fatalf("unexpected position manager %s", base.PositionManager.Hex())
	}
	if !reflect.DeepEqual(base.FeeTiers, map[uint32]int32{500: 10, 3000: 60}) {
		t.Fatalf("unexpected fee tiers %v", base.FeeTiers)
	}
}

func TestApplyOverridesRejectsBadAddress(t *testing.T) {
	v := viper.New()
	v.Set("chains", map[string]interface{}{
		"1": map[string]interface{}{
			"platforms": map[string]interface{}{
				"uniswap-v3": map[string]interface{}{"factory": "not-an-address"},
			},
		},
	})
	if err := ApplyOverrides(DefaultDeployments(), v); err == nil {
		t.Fatal("expected error for invalid address")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "positions.yaml")
	content := []byte(`rpc: http://localhost:8545
rpc-urls: "56=http://bsc.local"
timeout: 5s
chains:
  "42161":
    platforms:
      uniswap-v3:
        enabled: false
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("chain-id", 1, "")
	flags.String("platform", "", "")
	if err := flags.Parse([]string{"--chain-id", "56", "--platform", "pancakeswap-v3, uniswap-v3"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(cfgPath, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != 56 || cfg.Timeout != 5*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Platforms, []string{"pancakeswap-v3", "uniswap-v3"}) {
		t.Fatalf("unexpected platforms: %v", cfg.Platforms)
	}
	if cfg.GasBufferPercent != 20 || cfg.Concurrency != 8 || cfg.Deadline != 20*time.Minute {
		t.Fatalf("defaults not applied: %+v", cfg)
	}

	url, err := cfg.RPCFor(56)
	if err != nil || url != "http://bsc.local" {
		t.Fatalf("unexpected bsc rpc %q %v", url, err)
	}
	url, err = cfg.RPCFor(1)
	if err != nil || url != "http://localhost:8545" {
		t.Fatalf("unexpected default rpc %q %v", url, err)
	}
	if got := cfg.Deployments.EnabledPlatforms(42161); len(got) != 0 {
		t.Fatalf("expected arbitrum disabled, got %v", got)
	}
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap("1=a, 56 = b,bad,=c")
	want := map[string]string{"1": "a", "56": "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected map %v", got)
	}
}
