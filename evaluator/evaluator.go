// Package evaluator runs phase-two validation of a serialized transaction
// in a WASM build of the UPLC evaluator, returning the redeemers with their
// execution units.
package evaluator

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	apolloUTxO "github.com/Salvionied/apollo/serialization/UTxO"
	apolloCbor "github.com/Salvionied/cbor/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/mgpai22/equibasket/ledger"
)

// Evaluator owns one instantiated evaluator module. Calls are not safe for
// concurrent use; the module has a single linear memory.
type Evaluator struct {
	runtime           wazero.Runtime
	module            api.Module
	evalPhaseTwoRaw   api.Function
	alloc             api.Function
	dealloc           api.Function
	utxoToInputBytes  api.Function
	utxoToOutputBytes api.Function
	config            Config
	logger            *zap.Logger
}

// New loads and instantiates the evaluator module named by cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Evaluator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	wasmBytes, err := os.ReadFile(cfg.WasmFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM file: %w", err)
	}

	runtime := wazero.NewRuntime(ctx)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	modConfig := wazero.NewModuleConfig().
		WithStdout(os.Stderr).
		WithStderr(os.Stderr)

	module, err := runtime.InstantiateWithConfig(ctx, wasmBytes, modConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate evaluator: %w", err)
	}

	e := &Evaluator{
		runtime:           runtime,
		module:            module,
		evalPhaseTwoRaw:   module.ExportedFunction("eval_phase_two_raw"),
		alloc:             module.ExportedFunction("alloc"),
		dealloc:           module.ExportedFunction("dealloc"),
		utxoToInputBytes:  module.ExportedFunction("utxo_to_input_bytes"),
		utxoToOutputBytes: module.ExportedFunction("utxo_to_output_bytes"),
		config:            cfg,
		logger:            logger.Named("evaluator"),
	}
	for name, fn := range map[string]api.Function{
		"eval_phase_two_raw":   e.evalPhaseTwoRaw,
		"alloc":                e.alloc,
		"dealloc":              e.dealloc,
		"utxo_to_input_bytes":  e.utxoToInputBytes,
		"utxo_to_output_bytes": e.utxoToOutputBytes,
	} {
		if fn == nil {
			e.Close(ctx)
			return nil, fmt.Errorf("evaluator module does not export %s", name)
		}
	}
	return e, nil
}

// Close terminates the WASM runtime and releases resources.
func (e *Evaluator) Close(ctx context.Context) {
	e.module.Close(ctx)
	e.runtime.Close(ctx)
}

// EvaluateWith resolves the transaction's inputs through resolver and
// evaluates it.
func (e *Evaluator) EvaluateWith(ctx context.Context, txBytes []byte, resolver ledger.Resolver) ([][]byte, error) {
	utxos, err := ledger.ResolveInputs(ctx, txBytes, resolver)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, txBytes, utxos)
}

// Evaluate processes the transaction bytes and returns redeemers as bytes.
func (e *Evaluator) Evaluate(ctx context.Context, txBytes []byte, utxos []apolloUTxO.UTxO) ([][]byte, error) {
	tx, err := ledger.ParseTx(txBytes)
	if err != nil {
		return nil, err
	}

	byRef := make(map[string]apolloUTxO.UTxO, len(utxos))
	for _, u := range utxos {
		byRef[refKey(u.Input.TransactionId, u.Input.Index)] = u
	}

	inputs := make([][]byte, 0, len(tx.TransactionBody.Inputs))
	outputs := make([][]byte, 0, len(tx.TransactionBody.Inputs))
	for _, input := range tx.TransactionBody.Inputs {
		key := refKey(input.TransactionId, input.Index)
		u, ok := byRef[key]
		if !ok {
			return nil, fmt.Errorf("missing UTxO for input: %s", key)
		}
		in, out, err := e.encodeUTxO(ctx, &u)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input %s: %w", key, err)
		}
		inputs = append(inputs, in)
		outputs = append(outputs, out)
	}

	var ptrs []uint64
	var lens []uint64
	defer func() {
		for i := range ptrs {
			e.deallocMemory(ctx, ptrs[i], lens[i])
		}
	}()
	for _, data := range [][]byte{txBytes, serializeUTxOs(inputs, outputs), e.config.CostModels} {
		ptr, n, err := e.writeToMemory(ctx, data)
		if err != nil {
			return nil, err
		}
		ptrs = append(ptrs, ptr)
		lens = append(lens, n)
	}

	results, err := e.evalPhaseTwoRaw.Call(ctx,
		ptrs[0], lens[0],
		ptrs[1], lens[1],
		ptrs[2], lens[2],
		e.config.MaxTxExSteps, e.config.MaxTxExMem,
		e.config.Slots.ZeroTime, e.config.Slots.ZeroSlot, e.config.Slots.SlotLength,
	)
	if err != nil {
		return nil, err
	}

	resultPtr := uint32(results[0] >> 32)
	resultLen := uint32(results[0])
	resultBytes, ok := e.module.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, errors.New("failed to read result memory")
	}
	resultCopy := append([]byte{}, resultBytes...)
	e.deallocMemory(ctx, uint64(resultPtr), uint64(resultLen))

	redeemers, err := decodeResult(resultCopy)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Transaction evaluated", zap.Int("redeemers", len(redeemers)))
	return redeemers, nil
}

// decodeResult splits the evaluator's tagged result: 0 followed by the
// CBOR list of redeemers, anything else followed by a CBOR EvalError.
func decodeResult(result []byte) ([][]byte, error) {
	if len(result) == 0 {
		return nil, errors.New("empty result from WASM evaluation")
	}
	if result[0] == 0 {
		var redeemers [][]byte
		if err := apolloCbor.NewDecoder(bytes.NewReader(result[1:])).Decode(&redeemers); err != nil {
			return nil, err
		}
		return redeemers, nil
	}

	var evalError EvalError
	if err := apolloCbor.Unmarshal(result[1:], &evalError); err != nil {
		return nil, err
	}
	return nil, &EvaluationError{EvalError: evalError}
}

func (e *Evaluator) encodeUTxO(ctx context.Context, u *apolloUTxO.UTxO) ([]byte, []byte, error) {
	utxoCbor, err := apolloCbor.Marshal(fromApollo(u))
	if err != nil {
		return nil, nil, err
	}
	ptr, n, err := e.writeToMemory(ctx, utxoCbor)
	if err != nil {
		return nil, nil, err
	}
	defer e.deallocMemory(ctx, ptr, n)

	in, err := e.callFunction(ctx, e.utxoToInputBytes, ptr, n)
	if err != nil {
		return nil, nil, err
	}
	out, err := e.callFunction(ctx, e.utxoToOutputBytes, ptr, n)
	if err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

// writeToMemory allocates memory in WASM and writes data to it.
func (e *Evaluator) writeToMemory(ctx context.Context, data []byte) (uint64, uint64, error) {
	results, err := e.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate memory: %w", err)
	}
	ptr := results[0]
	if !e.module.Memory().Write(uint32(ptr), data) {
		return 0, 0, errors.New("failed to write data to WASM memory")
	}
	return ptr, uint64(len(data)), nil
}

// deallocMemory deallocates memory in WASM.
func (e *Evaluator) deallocMemory(ctx context.Context, ptr, size uint64) {
	if _, err := e.dealloc.Call(ctx, ptr, size); err != nil {
		e.logger.Warn("Failed to deallocate memory", zap.Error(err))
	}
}

// callFunction invokes a WASM function and copies out the result bytes.
func (e *Evaluator) callFunction(ctx context.Context, fn api.Function, args ...uint64) ([]byte, error) {
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(results) < 1 {
		return nil, errors.New("no results from function call")
	}

	resultPtr := uint32(results[0] >> 32)
	resultLen := uint32(results[0])
	resultBytes, ok := e.module.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, errors.New("failed to read function result memory")
	}
	resultCopy := append([]byte{}, resultBytes...)
	e.deallocMemory(ctx, uint64(resultPtr), uint64(resultLen))
	return resultCopy, nil
}

func refKey(txID []byte, index int) string {
	return fmt.Sprintf("%s:%d", hex.EncodeToString(txID), index)
}
