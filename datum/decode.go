package datum

import (
	"math/big"

	"github.com/mgpai22/equibasket/plutus"
)

// fieldReader walks a constructor's fields. The first failure sticks and
// later reads become no-ops, so callers check err once at the end.
type fieldReader struct {
	record string
	fields []plutus.Data
	err    error
}

func readConstr(b []byte, record string, index uint64, arity int) *fieldReader {
	d, err := plutus.Decode(b)
	if err != nil {
		return &fieldReader{record: record, err: plutus.Within(err, record, "")}
	}
	return readFields(d, record, index, arity)
}

func readFields(d plutus.Data, record string, index uint64, arity int) *fieldReader {
	fields, err := plutus.ExpectConstr(d, index, arity)
	if err != nil {
		return &fieldReader{record: record, err: plutus.Within(err, record, "")}
	}
	return &fieldReader{record: record, fields: fields}
}

func (r *fieldReader) fail(field string, err error) {
	if r.err == nil {
		r.err = plutus.Within(err, r.record, field)
	}
}

func (r *fieldReader) text(i int, field string) string {
	if r.err != nil {
		return ""
	}
	s, err := plutus.AsText(r.fields[i])
	if err != nil {
		r.fail(field, err)
	}
	return s
}

func (r *fieldReader) integer(i int, field string) *big.Int {
	if r.err != nil {
		return nil
	}
	n, err := plutus.AsInt(r.fields[i])
	if err != nil {
		r.fail(field, err)
	}
	return n
}

func (r *fieldReader) int64(i int, field string) int64 {
	if r.err != nil {
		return 0
	}
	n, err := plutus.AsInt64(r.fields[i])
	if err != nil {
		r.fail(field, err)
	}
	return n
}

func (r *fieldReader) pubKeyHash(i int, field string) PubKeyHash {
	var p PubKeyHash
	if r.err != nil {
		return p
	}
	b, err := plutus.AsFixedBytes(r.fields[i], pubKeyHashSize)
	if err != nil {
		r.fail(field, err)
		return p
	}
	copy(p[:], b)
	return p
}

func (r *fieldReader) outputRef(i int, field string) OutputRef {
	if r.err != nil {
		return OutputRef{}
	}
	ref, err := outputRefFromData(r.fields[i])
	if err != nil {
		r.fail(field, err)
	}
	return ref
}

func (r *fieldReader) weights(i int, field string) []AssetWeight {
	if r.err != nil {
		return nil
	}
	items, err := plutus.AsList(r.fields[i])
	if err != nil {
		r.fail(field, err)
		return nil
	}
	out := make([]AssetWeight, 0, len(items))
	for _, item := range items {
		id, w, err := pairFromData(item)
		if err != nil {
			r.fail(field, err)
			return nil
		}
		weight, err := plutus.AsInt64(w)
		if err != nil {
			r.fail(field, err)
			return nil
		}
		out = append(out, AssetWeight{AssetID: id, Weight: weight})
	}
	return out
}

func (r *fieldReader) prices(i int, field string) []AssetPrice {
	if r.err != nil {
		return nil
	}
	items, err := plutus.AsList(r.fields[i])
	if err != nil {
		r.fail(field, err)
		return nil
	}
	out := make([]AssetPrice, 0, len(items))
	for _, item := range items {
		id, p, err := pairFromData(item)
		if err != nil {
			r.fail(field, err)
			return nil
		}
		price, err := plutus.AsInt(p)
		if err != nil {
			r.fail(field, err)
			return nil
		}
		out = append(out, AssetPrice{AssetID: id, Price: price})
	}
	return out
}

// pairFromData reads an (assetId, integer) tuple. Tuples are plain lists; a
// constructor in this position is rejected.
func pairFromData(d plutus.Data) (string, plutus.Data, error) {
	first, second, err := plutus.AsPair(d)
	if err != nil {
		return "", nil, err
	}
	id, err := plutus.AsText(first)
	if err != nil {
		return "", nil, err
	}
	return id, second, nil
}

func outputRefFromData(d plutus.Data) (OutputRef, error) {
	r := readFields(d, "OutputRef", 0, 2)
	var ref OutputRef
	if r.err != nil {
		return ref, r.err
	}
	id, err := plutus.AsFixedBytes(r.fields[0], txIDSize)
	if err != nil {
		return OutputRef{}, plutus.Within(err, "OutputRef", "transaction_id")
	}
	idx, err := plutus.AsUint32(r.fields[1])
	if err != nil {
		return OutputRef{}, plutus.Within(err, "OutputRef", "output_index")
	}
	copy(ref.TxID[:], id)
	ref.Index = idx
	return ref, nil
}
