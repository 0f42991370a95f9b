// Package config loads process configuration from defaults, an optional
// file and EQUIBASKET_ environment variables.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/mgpai22/equibasket/datum"
	"github.com/mgpai22/equibasket/evaluator"
	"github.com/mgpai22/equibasket/ledger"
	"github.com/mgpai22/equibasket/txbuilder"
	"github.com/mgpai22/equibasket/vault"
)

// EnvPrefix prefixes every environment override, e.g. EQUIBASKET_LOG_LEVEL.
const EnvPrefix = "EQUIBASKET"

type Config struct {
	Network   string          `mapstructure:"network"`
	Log       LogConfig       `mapstructure:"log"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Audit     AuditConfig     `mapstructure:"audit"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Scripts   ScriptsConfig   `mapstructure:"scripts"`
	Protocol  ProtocolConfig  `mapstructure:"protocol"`
	Submit    SubmitConfig    `mapstructure:"submit"`
	Evaluator EvaluatorConfig `mapstructure:"evaluator"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type LedgerConfig struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// AuditConfig locates the durable audit store. An empty path keeps the
// audit trail in memory only.
type AuditConfig struct {
	Path      string `mapstructure:"path"`
	Retention int    `mapstructure:"retention"`
}

type HTTPConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type WalletConfig struct {
	Address    string `mapstructure:"address"`
	PubKeyHash string `mapstructure:"pub_key_hash"`
}

type ScriptsConfig struct {
	OracleAddress        string `mapstructure:"oracle_address"`
	BasketFactoryAddress string `mapstructure:"basket_factory_address"`
	VaultAddress         string `mapstructure:"vault_address"`
	PoolAddress          string `mapstructure:"pool_address"`
	BasketTokenPolicyID  string `mapstructure:"basket_token_policy_id"`
	LpTokenPolicyID      string `mapstructure:"lp_token_policy_id"`
	OracleAdmin          string `mapstructure:"oracle_admin"`
}

type ProtocolConfig struct {
	MinLovelace     int64         `mapstructure:"min_lovelace"`
	Validity        time.Duration `mapstructure:"validity"`
	PricePrecision  int64         `mapstructure:"price_precision"`
	CollateralRatio int64         `mapstructure:"collateral_ratio"`
	BasketCacheSize int           `mapstructure:"basket_cache_size"`
}

// SubmitConfig bounds the caller-side retry of build and submit after a
// stale input.
type SubmitConfig struct {
	MaxTries        uint          `mapstructure:"max_tries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type EvaluatorConfig struct {
	WasmFile       string `mapstructure:"wasm_file"`
	CostModelsFile string `mapstructure:"cost_models_file"`
	MaxTxExSteps   uint64 `mapstructure:"max_tx_ex_steps"`
	MaxTxExMem     uint64 `mapstructure:"max_tx_ex_mem"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("network", "preprod")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("ledger.snapshot_path", "snapshot.json")

	v.SetDefault("audit.path", "")
	v.SetDefault("audit.retention", 1024)

	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "15s")

	v.SetDefault("wallet.address", "")
	v.SetDefault("wallet.pub_key_hash", "")

	v.SetDefault("scripts.oracle_address", "")
	v.SetDefault("scripts.basket_factory_address", "")
	v.SetDefault("scripts.vault_address", "")
	v.SetDefault("scripts.pool_address", "")
	v.SetDefault("scripts.basket_token_policy_id", "")
	v.SetDefault("scripts.lp_token_policy_id", "")
	v.SetDefault("scripts.oracle_admin", "")

	v.SetDefault("protocol.min_lovelace", txbuilder.DefaultMinLovelace)
	v.SetDefault("protocol.validity", txbuilder.DefaultValidity.String())
	v.SetDefault("protocol.price_precision", 1_000_000)
	v.SetDefault("protocol.collateral_ratio", 1_500_000)
	v.SetDefault("protocol.basket_cache_size", 256)

	v.SetDefault("submit.max_tries", 5)
	v.SetDefault("submit.initial_interval", "500ms")
	v.SetDefault("submit.max_interval", "10s")

	v.SetDefault("evaluator.wasm_file", "")
	v.SetDefault("evaluator.cost_models_file", "")
	v.SetDefault("evaluator.max_tx_ex_steps", uint64(10_000_000_000))
	v.SetDefault("evaluator.max_tx_ex_mem", uint64(14_000_000))
}

// Load reads configuration. An empty path uses defaults and environment
// only; a named file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings every command needs. Wallet and script
// settings are checked when a builder is created.
func (c *Config) Validate() error {
	if _, err := evaluator.NetworkSlotConfig(c.Network); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.Ledger.SnapshotPath == "" {
		return errors.New("ledger.snapshot_path is required")
	}
	if c.HTTP.Listen == "" {
		return errors.New("http.listen is required")
	}
	p := c.Protocol
	if p.MinLovelace <= 0 || p.PricePrecision <= 0 || p.CollateralRatio <= 0 {
		return errors.New("protocol amounts must be positive")
	}
	if p.Validity <= 0 {
		return errors.New("protocol.validity must be positive")
	}
	if p.BasketCacheSize <= 0 {
		return errors.New("protocol.basket_cache_size must be positive")
	}
	if c.Submit.MaxTries == 0 {
		return errors.New("submit.max_tries must be at least 1")
	}
	return nil
}

// BuilderConfig assembles the transaction builder settings.
func (c *Config) BuilderConfig() (txbuilder.Config, error) {
	pkh, err := datum.ParsePubKeyHash(c.Wallet.PubKeyHash)
	if err != nil {
		return txbuilder.Config{}, fmt.Errorf("wallet.pub_key_hash: %w", err)
	}
	if c.Wallet.Address == "" {
		return txbuilder.Config{}, errors.New("wallet.address is required")
	}
	s := c.Scripts
	var admin *datum.PubKeyHash
	if s.OracleAdmin != "" {
		a, err := datum.ParsePubKeyHash(s.OracleAdmin)
		if err != nil {
			return txbuilder.Config{}, fmt.Errorf("scripts.oracle_admin: %w", err)
		}
		admin = &a
	}
	return txbuilder.Config{
		Scripts: txbuilder.Scripts{
			OracleAddress:        s.OracleAddress,
			BasketFactoryAddress: s.BasketFactoryAddress,
			VaultAddress:         s.VaultAddress,
			PoolAddress:          s.PoolAddress,
			BasketTokenPolicyID:  strings.ToLower(s.BasketTokenPolicyID),
			LpTokenPolicyID:      strings.ToLower(s.LpTokenPolicyID),
		},
		Signer:      ledger.SignerContext{Address: c.Wallet.Address, PubKeyHash: pkh},
		MinLovelace: big.NewInt(c.Protocol.MinLovelace),
		Validity:    c.Protocol.Validity,
		Health: vault.Params{
			PricePrecision:  big.NewInt(c.Protocol.PricePrecision),
			CollateralRatio: big.NewInt(c.Protocol.CollateralRatio),
		},
		OracleAdmin: admin,
	}, nil
}

// EvaluatorConfig assembles the evaluator settings, reading the cost
// models file when one is named.
func (c *Config) EvaluatorConfig() (evaluator.Config, error) {
	cfg, err := evaluator.DefaultConfig(c.Network)
	if err != nil {
		return evaluator.Config{}, err
	}
	cfg.WasmFile = c.Evaluator.WasmFile
	cfg.MaxTxExSteps = c.Evaluator.MaxTxExSteps
	cfg.MaxTxExMem = c.Evaluator.MaxTxExMem
	if c.Evaluator.CostModelsFile != "" {
		cfg.CostModels, err = os.ReadFile(c.Evaluator.CostModelsFile)
		if err != nil {
			return evaluator.Config{}, fmt.Errorf("failed to read cost models: %w", err)
		}
	}
	return cfg, nil
}
