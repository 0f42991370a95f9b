package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/mgpai22/equibasket/datum"
)

// Snapshot is an in-memory UTxO set persisted as an indexer-style JSON
// file. It enforces the consume-once rule: submitting a transaction whose
// script input is already gone fails with StaleInputError and changes
// nothing. Wallet funding is not modelled.
type Snapshot struct {
	mu      sync.Mutex
	path    string
	utxos   []UTxO
	nonce   uint64
	logger  *zap.Logger
	persist bool
}

// NewSnapshot builds an unpersisted ledger holding the given outputs.
func NewSnapshot(logger *zap.Logger, utxos ...UTxO) *Snapshot {
	s := &Snapshot{logger: logger.Named("ledger")}
	for _, u := range utxos {
		s.utxos = append(s.utxos, cloneUTxO(u))
	}
	return s
}

// LoadSnapshot reads a snapshot file. A missing file yields an empty
// ledger that is created on the first submission.
func LoadSnapshot(path string, logger *zap.Logger) (*Snapshot, error) {
	s := &Snapshot{path: path, persist: true, logger: logger.Named("ledger")}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("Snapshot file not found, starting empty", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var txs []TxJSON
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	for _, tx := range txs {
		for _, o := range tx.Outputs {
			u, err := utxoFromJSON(o)
			if err != nil {
				return nil, fmt.Errorf("failed to convert output: %w", err)
			}
			s.utxos = append(s.utxos, u)
		}
	}
	s.logger.Info("Snapshot loaded", zap.String("path", path), zap.Int("utxos", len(s.utxos)))
	return s, nil
}

// QueryUtxosAt returns copies of the unspent outputs at address in the
// order they were created.
func (s *Snapshot) QueryUtxosAt(ctx context.Context, address string) ([]UTxO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []UTxO
	for _, u := range s.utxos {
		if u.Address == address {
			out = append(out, cloneUTxO(u))
		}
	}
	return out, nil
}

// Lookup returns the unspent output at ref.
func (s *Snapshot) Lookup(ref datum.OutputRef) (UTxO, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(ref); i >= 0 {
		return cloneUTxO(s.utxos[i]), true
	}
	return UTxO{}, false
}

// Submit applies tx atomically: every script input must still be unspent.
func (s *Snapshot) Submit(ctx context.Context, tx *UnsignedTx, signer SignerContext) (datum.TxID, error) {
	if err := ctx.Err(); err != nil {
		return datum.TxID{}, err
	}
	if tx == nil {
		return datum.TxID{}, &SubmitError{Reason: "empty transaction"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	spent := make(map[datum.OutputRef]struct{}, len(tx.Inputs))
	for _, ref := range tx.SpentRefs() {
		if _, dup := spent[ref]; dup {
			return datum.TxID{}, &SubmitError{Reason: fmt.Sprintf("input %s spent twice", ref)}
		}
		if s.indexOf(ref) < 0 {
			return datum.TxID{}, &StaleInputError{Ref: ref}
		}
		spent[ref] = struct{}{}
	}
	for _, ref := range tx.ReferenceInputs {
		if s.indexOf(ref.Ref) < 0 {
			return datum.TxID{}, &StaleInputError{Ref: ref.Ref}
		}
	}

	id, err := s.txID(tx, signer)
	if err != nil {
		return datum.TxID{}, &SubmitError{Reason: "failed to hash transaction", Err: err}
	}

	next := make([]UTxO, 0, len(s.utxos)-len(spent)+len(tx.Outputs))
	for _, u := range s.utxos {
		if _, gone := spent[u.Ref]; !gone {
			next = append(next, u)
		}
	}
	for i, o := range tx.Outputs {
		next = append(next, UTxO{
			Ref:     datum.OutputRef{TxID: id, Index: uint32(i)},
			Address: o.Address,
			Value:   o.Value.Clone(),
			Datum:   append(CBOR{}, o.Datum...),
		})
	}

	if s.persist {
		if err := writeSnapshot(s.path, next); err != nil {
			return datum.TxID{}, &SubmitError{Reason: "failed to persist snapshot", Err: err}
		}
	}
	s.utxos = next
	s.nonce++

	s.logger.Info("Transaction applied",
		zap.String("tx_id", id.String()),
		zap.String("action", tx.Action),
		zap.Int("inputs", len(tx.Inputs)),
		zap.Int("outputs", len(tx.Outputs)))
	return id, nil
}

// txID hashes the transaction together with a submission counter so two
// identical input-free transactions still get distinct ids.
func (s *Snapshot) txID(tx *UnsignedTx, signer SignerContext) (datum.TxID, error) {
	body, err := json.Marshal(struct {
		Tx     *UnsignedTx   `json:"tx"`
		Signer SignerContext `json:"signer"`
	}{tx, signer})
	if err != nil {
		return datum.TxID{}, err
	}
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.nonce)
	return blake2b.Sum256(append(body, nonce[:]...)), nil
}

func (s *Snapshot) indexOf(ref datum.OutputRef) int {
	for i, u := range s.utxos {
		if u.Ref == ref {
			return i
		}
	}
	return -1
}

// Save writes the current state to path.
func (s *Snapshot) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeSnapshot(path, s.utxos)
}

func writeSnapshot(path string, utxos []UTxO) error {
	var txs []TxJSON
	byTx := make(map[datum.TxID]int)
	for _, u := range utxos {
		o, err := utxoToJSON(u)
		if err != nil {
			return err
		}
		i, ok := byTx[u.Ref.TxID]
		if !ok {
			i = len(txs)
			byTx[u.Ref.TxID] = i
			txs = append(txs, TxJSON{Hash: u.Ref.TxID.String()})
		}
		txs[i].Outputs = append(txs[i].Outputs, o)
	}
	if txs == nil {
		txs = []TxJSON{}
	}

	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneUTxO(u UTxO) UTxO {
	u.Value = u.Value.Clone()
	u.Datum = append(CBOR(nil), u.Datum...)
	return u
}
