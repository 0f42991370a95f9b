package evaluator

import (
	"errors"
	"fmt"
)

// SlotConfig maps slots to POSIX time for validity intervals.
type SlotConfig struct {
	ZeroTime   uint64 `mapstructure:"zero_time"`   // milliseconds
	ZeroSlot   uint64 `mapstructure:"zero_slot"`
	SlotLength uint64 `mapstructure:"slot_length"` // milliseconds
}

var slotConfigs = map[string]SlotConfig{
	"mainnet": {ZeroTime: 1596059091000, ZeroSlot: 4492800, SlotLength: 1000},
	"preprod": {ZeroTime: 1655769600000, ZeroSlot: 86400, SlotLength: 1000},
	"preview": {ZeroTime: 1666656000000, ZeroSlot: 0, SlotLength: 1000},
}

// NetworkSlotConfig returns the slot configuration of a public network.
func NetworkSlotConfig(network string) (SlotConfig, error) {
	sc, ok := slotConfigs[network]
	if !ok {
		return SlotConfig{}, fmt.Errorf("unknown network %q", network)
	}
	return sc, nil
}

// Config holds the parameters of an Evaluator.
type Config struct {
	WasmFile     string     `mapstructure:"wasm_file"`   // path to the UPLC evaluator module
	CostModels   []byte     `mapstructure:"-"`           // serialized cost models
	MaxTxExSteps uint64     `mapstructure:"max_tx_ex_steps"`
	MaxTxExMem   uint64     `mapstructure:"max_tx_ex_mem"`
	Slots        SlotConfig `mapstructure:",squash"`
}

// DefaultConfig returns the current protocol execution limits for network.
func DefaultConfig(network string) (Config, error) {
	sc, err := NetworkSlotConfig(network)
	if err != nil {
		return Config{}, err
	}
	return Config{
		MaxTxExSteps: 10_000_000_000,
		MaxTxExMem:   14_000_000,
		Slots:        sc,
	}, nil
}

func (c Config) validate() error {
	if c.WasmFile == "" {
		return errors.New("evaluator wasm file is required")
	}
	if c.MaxTxExSteps == 0 || c.MaxTxExMem == 0 {
		return errors.New("execution limits must be positive")
	}
	if c.Slots.SlotLength == 0 {
		return errors.New("slot length must be positive")
	}
	return nil
}
