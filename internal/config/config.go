package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"goldpeg/internal/randomness"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	GoldFeed string
	EthFeed  string

	FeePercent uint64
	Owner      string

	KeyHash          string
	SubscriptionID   uint64
	Confirmations    uint16
	CallbackGasLimit uint32
	NumWords         uint32
	PendingPolicy    string
	Seed             string

	MaxPriceAge  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	EventsOut string
	PGDSN     string

	Contracts         []string
	FromBlock         uint64
	ToBlock           uint64
	Finality          uint64
	BatchSize         uint64
	Checkpoint        string
	CheckpointEnabled bool

	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOLDPEG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := randomness.DefaultRequestConfig()
	v.SetDefault("fee-percent", uint64(5))
	v.SetDefault("confirmations", defaults.Confirmations)
	v.SetDefault("callback-gas-limit", defaults.CallbackGasLimit)
	v.SetDefault("num-words", defaults.NumWords)
	v.SetDefault("pending-policy", string(randomness.PendingPolicyAllow))
	v.SetDefault("max-price-age", time.Duration(0))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("events-out", "./data/events.jsonl")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("finality", uint64(12))
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
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

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		GoldFeed:          v.GetString("gold-feed"),
		EthFeed:           v.GetString("eth-feed"),
		FeePercent:        v.GetUint64("fee-percent"),
		Owner:             v.GetString("owner"),
		KeyHash:           v.GetString("key-hash"),
		SubscriptionID:    v.GetUint64("subscription-id"),
		Confirmations:     v.GetUint16("confirmations"),
		CallbackGasLimit:  v.GetUint32("callback-gas-limit"),
		NumWords:          v.GetUint32("num-words"),
		PendingPolicy:     v.GetString("pending-policy"),
		Seed:              v.GetString("seed"),
		MaxPriceAge:       v.GetDuration("max-price-age"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		EventsOut:         v.GetString("events-out"),
		PGDSN:             v.GetString("pg-dsn"),
		Contracts:         getStringSlice(v, "contract"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Finality:          v.GetUint64("finality"),
		BatchSize:         v.GetUint64("batch-size"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// OwnerAddress parses the configured owner.
func (c Config) OwnerAddress() (common.Address, error) {
	return parseAddress("owner", c.Owner)
}

// FeedAddresses parses the gold and eth feed contract addresses.
func (c Config) FeedAddresses() (gold, eth common.Address, err error) {
	if gold, err = parseAddress("gold-feed", c.GoldFeed); err != nil {
		return common.Address{}, common.Address{}, err
	}
	if eth, err = parseAddress("eth-feed", c.EthFeed); err != nil {
		return common.Address{}, common.Address{}, err
	}
	return gold, eth, nil
}

// RandomnessConfig builds the provider request parameters.
func (c Config) RandomnessConfig() (randomness.RequestConfig, error) {
	out := randomness.RequestConfig{
		SubscriptionID:   c.SubscriptionID,
		Confirmations:    c.Confirmations,
		CallbackGasLimit: c.CallbackGasLimit,
		NumWords:         c.NumWords,
	}
	if c.NumWords == 0 {
		return out, fmt.Errorf("num-words must be greater than zero")
	}
	if c.KeyHash != "" {
		raw, err := hexutil.Decode(c.KeyHash)
		if err != nil {
			return out, fmt.Errorf("invalid key-hash: %w", err)
		}
		if len(raw) != common.HashLength {
			return out, fmt.Errorf("invalid key-hash length %d", len(raw))
		}
		out.KeyHash = common.BytesToHash(raw)
	}
	return out, nil
}

func (c Config) Policy() (randomness.PendingPolicy, error) {
	return randomness.ParsePendingPolicy(c.PendingPolicy)
}

// ContractAddresses parses the contracts watched by the indexer.
func (c Config) ContractAddresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.Contracts))
	for _, raw := range c.Contracts {
		addr, err := parseAddress("contract", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseAddress(key, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s is required", key)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", key, raw)
	}
	return common.HexToAddress(raw), nil
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
