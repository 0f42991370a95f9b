package evaluator

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	apolloCbor "github.com/Salvionied/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSerializeUTxOsLayout(t *testing.T) {
	got := serializeUTxOs([][]byte{{0xaa}, {0xbb, 0xcc}}, [][]byte{{0x01, 0x02}, {}})

	require.Len(t, got, 8+(8+1+8+2)+(8+2+8+0))
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(got[0:8]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(got[8:16]))
	assert.Equal(t, byte(0xaa), got[16])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(got[17:25]))
	assert.Equal(t, []byte{0x01, 0x02}, got[25:27])
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(got[27:35]))
	assert.Equal(t, []byte{0xbb, 0xcc}, got[35:37])
	assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(got[37:45]))
}

func TestSerializeUTxOsEmpty(t *testing.T) {
	got := serializeUTxOs(nil, nil)
	assert.Equal(t, make([]byte, 8), got)
}

func TestDecodeResultSuccess(t *testing.T) {
	want := [][]byte{{0x84, 0x00}, {0x84, 0x01}}
	body, err := apolloCbor.Marshal(want)
	require.NoError(t, err)

	got, err := decodeResult(append([]byte{0}, body...))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeResultFailure(t *testing.T) {
	body, err := apolloCbor.Marshal(EvalError{
		ErrorType:  "ScriptFailure",
		Budget:     Budget{Mem: 10, CPU: 20},
		DebugTrace: []string{"vault is undercollateralized"},
	})
	require.NoError(t, err)

	_, err = decodeResult(append([]byte{1}, body...))
	var ee *EvaluationError
	require.ErrorAs(t, err, &ee)
	assert.EqualError(t, err, "evaluation failed: ScriptFailure")
	assert.Equal(t, uint64(20), ee.EvalError.Budget.CPU)
	assert.Equal(t, []string{"vault is undercollateralized"}, ee.EvalError.DebugTrace)
}

func TestDecodeResultEmpty(t *testing.T) {
	_, err := decodeResult(nil)
	assert.EqualError(t, err, "empty result from WASM evaluation")
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig("preprod")
	require.NoError(t, err)
	assert.Equal(t, uint64(86400), cfg.Slots.ZeroSlot)
	assert.ErrorContains(t, cfg.validate(), "wasm file is required")

	cfg.WasmFile = "uplc.wasm"
	assert.NoError(t, cfg.validate())

	_, err = DefaultConfig("testnet")
	assert.EqualError(t, err, `unknown network "testnet"`)
}

func TestNewRejectsMissingOrInvalidModule(t *testing.T) {
	ctx := context.Background()
	cfg, err := DefaultConfig("preview")
	require.NoError(t, err)

	cfg.WasmFile = filepath.Join(t.TempDir(), "missing.wasm")
	_, err = New(ctx, cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to read WASM file")

	cfg.WasmFile = filepath.Join(t.TempDir(), "junk.wasm")
	require.NoError(t, os.WriteFile(cfg.WasmFile, []byte("not wasm"), 0o600))
	_, err = New(ctx, cfg, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "failed to instantiate evaluator")
}
