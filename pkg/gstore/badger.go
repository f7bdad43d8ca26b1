package gstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Key prefixes mirror pkg/storage/badger.go's single-byte scheme, adapted
// to the Address-keyed model: 0x01 nodes, 0x02 edges. The secondary
// indexes (label, property) are rebuilt in memory on load rather than
// mirrored to disk, since Engine already reindexes on every commitVertex.
const (
	prefixVertex byte = 0x01
	prefixEdge   byte = 0x02
)

func vertexKey(addr Address) []byte {
	k := make([]byte, 9)
	k[0] = prefixVertex
	binary.BigEndian.PutUint64(k[1:], uint64(addr))
	return k
}

func edgeKey(addr Address) []byte {
	k := make([]byte, 9)
	k[0] = prefixEdge
	binary.BigEndian.PutUint64(k[1:], uint64(addr))
	return k
}

// badgerMirror durably persists every committed vertex/edge alongside the
// in-memory Engine, following pkg/storage/badger.go's "encode struct, Set
// under a prefixed key" pattern but using gob instead of that file's JSON,
// since gval.TypedValue's tagged-union shape round-trips more directly
// through gob's interface-free encoding once given a plain DTO.
type badgerMirror struct {
	db *badger.DB
}

// vertexDTO/edgeDTO are gob-friendly mirrors of VertexData/EdgeData; gval
// values are flattened to a wire-safe representation since TypedValue's
// fields are unexported.
type vertexDTO struct {
	Addr       uint64
	Labels     []string
	Properties map[string]wireValue
	InEdges    []Incidence
	OutEdges   []Incidence
}

type edgeDTO struct {
	Addr       uint64
	From       uint64
	To         uint64
	Type       string
	Properties map[string]wireValue
}

// wireValue is a gob-safe flattening of gval.TypedValue.
type wireValue struct {
	Kind int
	B    float64
	I    int64
	S    string
	L    []wireValue
	M    map[string]wireValue
}

func toWire(v gval.TypedValue) wireValue {
	switch v.Kind() {
	case gval.KindNull:
		return wireValue{Kind: int(gval.KindNull)}
	case gval.KindBool:
		b, _ := v.AsBool()
		i := int64(0)
		if b {
			i = 1
		}
		return wireValue{Kind: int(gval.KindBool), I: i}
	case gval.KindInt:
		i, _ := v.AsInt()
		return wireValue{Kind: int(gval.KindInt), I: i}
	case gval.KindDouble:
		f, _ := v.AsDouble()
		return wireValue{Kind: int(gval.KindDouble), B: f}
	case gval.KindString:
		s, _ := v.AsString()
		return wireValue{Kind: int(gval.KindString), S: s}
	case gval.KindList:
		l, _ := v.AsList()
		out := make([]wireValue, len(l))
		for i, e := range l {
			out[i] = toWire(e)
		}
		return wireValue{Kind: int(gval.KindList), L: out}
	case gval.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]wireValue, len(m))
		for k, e := range m {
			out[k] = toWire(e)
		}
		return wireValue{Kind: int(gval.KindMap), M: out}
	default:
		// Vertex/Edge/Path properties are never stored directly on an
		// entity's own property map, so this branch is unreachable in
		// practice; such a value is written as Null.
		return wireValue{Kind: int(gval.KindNull)}
	}
}

func fromWire(w wireValue) gval.TypedValue {
	switch gval.Kind(w.Kind) {
	case gval.KindBool:
		return gval.Bool(w.I != 0)
	case gval.KindInt:
		return gval.Int(w.I)
	case gval.KindDouble:
		return gval.Double(w.B)
	case gval.KindString:
		return gval.String(w.S)
	case gval.KindList:
		out := make([]gval.TypedValue, len(w.L))
		for i, e := range w.L {
			out[i] = fromWire(e)
		}
		return gval.List(out)
	case gval.KindMap:
		out := make(map[string]gval.TypedValue, len(w.M))
		for k, e := range w.M {
			out[k] = fromWire(e)
		}
		return gval.Map(out)
	default:
		return gval.Null
	}
}

func propsToWire(props map[string]gval.TypedValue) map[string]wireValue {
	out := make(map[string]wireValue, len(props))
	for k, v := range props {
		out[k] = toWire(v)
	}
	return out
}

func propsFromWire(props map[string]wireValue) map[string]gval.TypedValue {
	out := make(map[string]gval.TypedValue, len(props))
	for k, v := range props {
		out[k] = fromWire(v)
	}
	return out
}

// WithPersistence opens (or creates) a Badger-backed store at dir and
// loads every persisted vertex/edge into a fresh in-memory Engine, then
// arranges for every subsequent commit to be mirrored back to disk.
func WithPersistence(localWorker uint16, dir string) (*Engine, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gstore: open badger: %w", err)
	}

	e := NewMemoryEngine(localWorker)
	e.persist = &badgerMirror{db: db}

	if err := e.persist.loadInto(e); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (m *badgerMirror) loadInto(e *Engine) error {
	return m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek([]byte{prefixVertex}); it.ValidForPrefix([]byte{prefixVertex}); it.Next() {
			var dto vertexDTO
			if err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&dto)
			}); err != nil {
				return fmt.Errorf("gstore: decode vertex: %w", err)
			}
			v := &VertexData{
				Addr:       Address(dto.Addr),
				Labels:     dto.Labels,
				Properties: propsFromWire(dto.Properties),
				InEdges:    dto.InEdges,
				OutEdges:   dto.OutEdges,
			}
			e.vertices[v.Addr] = v
			e.indexVertex(v)
		}

		for it.Seek([]byte{prefixEdge}); it.ValidForPrefix([]byte{prefixEdge}); it.Next() {
			var dto edgeDTO
			if err := it.Item().Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&dto)
			}); err != nil {
				return fmt.Errorf("gstore: decode edge: %w", err)
			}
			e.edges[Address(dto.Addr)] = &EdgeData{
				Addr:       Address(dto.Addr),
				From:       Address(dto.From),
				To:         Address(dto.To),
				Type:       dto.Type,
				Properties: propsFromWire(dto.Properties),
			}
		}
		return nil
	})
}

func (m *badgerMirror) putVertex(v *VertexData) {
	dto := vertexDTO{
		Addr:       uint64(v.Addr),
		Labels:     v.Labels,
		Properties: propsToWire(v.Properties),
		InEdges:    v.InEdges,
		OutEdges:   v.OutEdges,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dto); err != nil {
		return
	}
	_ = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(vertexKey(v.Addr), buf.Bytes())
	})
}

func (m *badgerMirror) deleteVertex(addr Address) {
	_ = m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(vertexKey(addr))
	})
}

func (m *badgerMirror) putEdge(ed *EdgeData) {
	dto := edgeDTO{
		Addr:       uint64(ed.Addr),
		From:       uint64(ed.From),
		To:         uint64(ed.To),
		Type:       ed.Type,
		Properties: propsToWire(ed.Properties),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dto); err != nil {
		return
	}
	_ = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(ed.Addr), buf.Bytes())
	})
}

func (m *badgerMirror) deleteEdge(addr Address) {
	_ = m.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(edgeKey(addr))
	})
}

func (m *badgerMirror) close() error {
	return m.db.Close()
}
