package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	RPCURLs          map[uint64]string
	ChainID          uint64
	Platforms        []string
	Timeout          time.Duration
	Concurrency      int
	GasBufferPercent uint64
	Slippage         string
	Deadline         time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	Out              string
	MetricsAddr      string
	MetricsOut       string
	LogLevel         string
	Deployments      Deployments
}

// RPCFor returns the RPC endpoint of chainID, falling back to the default endpoint.
func (c Config) RPCFor(chainID uint64) (string, error) {
	if url, ok := c.RPCURLs[chainID]; ok && url != "" {
		return url, nil
	}
	if c.RPCURL == "" {
		return "", fmt.Errorf("no rpc endpoint configured for chain %d", chainID)
	}
	return c.RPCURL, nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POSITIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", uint64(1))
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("concurrency", 8)
	v.SetDefault("gas-buffer-percent", uint64(20))
	v.SetDefault("slippage", "0.5")
	v.SetDefault("deadline", 20*time.Minute)
	v.SetDefault("max-retries", 2)
	v.SetDefault("retry-backoff", 200*time.Millisecond)
	v.SetDefault("out", "-")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rpcURLs, err := parseChainMap(getStringMap(v, "rpc-urls"))
	if err != nil {
		return Config{}, fmt.Errorf("rpc-urls: %w", err)
	}

	deployments := DefaultDeployments()
	if err := ApplyOverrides(deployments, v); err != nil {
		return Config{}, fmt.Errorf("deployments: %w", err)
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		RPCURLs:          rpcURLs,
		ChainID:          v.GetUint64("chain-id"),
		Platforms:        getStringSlice(v, "platform"),
		Timeout:          v.GetDuration("timeout"),
		Concurrency:      v.GetInt("concurrency"),
		GasBufferPercent: v.GetUint64("gas-buffer-percent"),
		Slippage:         v.GetString("slippage"),
		Deadline:         v.GetDuration("deadline"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Out:              v.GetString("out"),
		MetricsAddr:      v.GetString("metrics-addr"),
		MetricsOut:       v.GetString("metrics-out"),
		LogLevel:         v.GetString("log-level"),
		Deployments:      deployments,
	}
	if cfg.Concurrency <= 0 {
		return Config{}, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	return cfg, nil
}

func parseChainMap(in map[string]string) (map[uint64]string, error) {
	out := make(map[uint64]string, len(in))
	for key, value := range in {
		id, err := strconv.ParseUint(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chain id %q: %w", key, err)
		}
		out[id] = value
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	pairs := strings.Split(input, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
