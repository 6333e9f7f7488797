package config

// Package config provides a reusable loader for engine configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/vireonet/txcore/key"
	"github.com/vireonet/txcore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for an engine instance: the wasm
// sandbox bounds and cost table, the economic constants, and the ambient
// logging/storage settings every deployment needs regardless of chain
// parameters. It mirrors the structure of the YAML files under
// cmd/config, narrowed from the teacher's node-wide schema (network,
// consensus, P2P) down to what the execution core itself consumes.
type Config struct {
	Wasm struct {
		MaxMemoryPages      uint32            `mapstructure:"max_memory_pages" json:"max_memory_pages"`
		MaxStackHeight      uint32            `mapstructure:"max_stack_height" json:"max_stack_height"`
		OpcodeCosts         map[string]uint32 `mapstructure:"opcode_costs" json:"opcode_costs"`
		HostFunctionGas     map[string]uint64 `mapstructure:"host_function_gas" json:"host_function_gas"`
		AllowBulkMemory     bool              `mapstructure:"allow_bulk_memory" json:"allow_bulk_memory"`
		AllowThreads        bool              `mapstructure:"allow_threads" json:"allow_threads"`
		AllowSIMD           bool              `mapstructure:"allow_simd" json:"allow_simd"`
		AllowReferenceTypes bool              `mapstructure:"allow_reference_types" json:"allow_reference_types"`
	} `mapstructure:"wasm" json:"wasm"`

	System struct {
		WasmlessTransferCost uint64 `mapstructure:"wasmless_transfer_cost" json:"wasmless_transfer_cost"`
		ConvRate             uint64 `mapstructure:"conv_rate" json:"conv_rate"`
		MaxPayment           uint64 `mapstructure:"max_payment" json:"max_payment"`
	} `mapstructure:"system" json:"system"`

	Auction struct {
		ValidatorSlots          uint32 `mapstructure:"validator_slots" json:"validator_slots"`
		AuctionDelay            uint64 `mapstructure:"auction_delay" json:"auction_delay"`
		LockedFundsPeriod       uint64 `mapstructure:"locked_funds_period" json:"locked_funds_period"`
		UnbondingDelay          uint64 `mapstructure:"unbonding_delay" json:"unbonding_delay"`
		RoundSeigniorageRateNum uint64 `mapstructure:"round_seigniorage_rate_num" json:"round_seigniorage_rate_num"`
	} `mapstructure:"auction" json:"auction"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Prune  bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the TXCORE_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("TXCORE_ENV", ""))
}

// WasmConfig projects the loaded Wasm section into the key.WasmConfig the
// wasmvm package consumes directly.
func (c Config) WasmConfig() key.WasmConfig {
	return key.WasmConfig{
		MaxMemoryPages:      c.Wasm.MaxMemoryPages,
		MaxStackHeight:      c.Wasm.MaxStackHeight,
		OpcodeCosts:         c.Wasm.OpcodeCosts,
		HostFunctionGas:     c.Wasm.HostFunctionGas,
		AllowBulkMemory:     c.Wasm.AllowBulkMemory,
		AllowThreads:        c.Wasm.AllowThreads,
		AllowSIMD:           c.Wasm.AllowSIMD,
		AllowReferenceTypes: c.Wasm.AllowReferenceTypes,
	}
}

// SystemConfig projects the loaded System section into the
// key.SystemConfig the engine package consumes directly.
func (c Config) SystemConfig() key.SystemConfig {
	return key.SystemConfig{
		WasmlessTransferCost: c.System.WasmlessTransferCost,
		ConvRate:             c.System.ConvRate,
		MaxPayment:           c.System.MaxPayment,
	}
}
