package gstore

import (
	"errors"

	"github.com/nornic-labs/graphcore/pkg/gval"
)

// Common storage errors, in the same sentinel-error style as
// pkg/storage/types.go.
var (
	ErrNotFound      = errors.New("gstore: not found")
	ErrAlreadyExists = errors.New("gstore: already exists")
	ErrInvalidID     = errors.New("gstore: invalid id")
	ErrHasEdges      = errors.New("gstore: vertex still has incident edges")
	ErrStorageClosed = errors.New("gstore: storage closed")
	ErrSerialization = errors.New("gstore: serialization conflict")
)

// Incidence is one entry of a vertex's incidence list: the peer vertex, the
// connecting edge, and the edge's type — a
// (peer_vertex_addr, edge_addr, edge_type_id) triple.
type Incidence struct {
	Peer     Address
	Edge     Address
	TypeName string
}

// VertexData is the durable payload of a vertex: labels, properties, and
// both incidence lists. It carries no version/visibility bookkeeping —
// that lives in the per-transaction overlay (transaction.go).
type VertexData struct {
	Addr       Address
	Labels     []string
	Properties map[string]gval.TypedValue
	InEdges    []Incidence
	OutEdges   []Incidence
}

func (v *VertexData) VertexAddr() uint64 { return uint64(v.Addr) }

func (v *VertexData) HasLabel(label string) bool {
	for _, l := range v.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (v *VertexData) clone() *VertexData {
	out := &VertexData{
		Addr:       v.Addr,
		Labels:     append([]string(nil), v.Labels...),
		Properties: make(map[string]gval.TypedValue, len(v.Properties)),
		InEdges:    append([]Incidence(nil), v.InEdges...),
		OutEdges:   append([]Incidence(nil), v.OutEdges...),
	}
	for k, val := range v.Properties {
		out.Properties[k] = val.Clone()
	}
	return out
}

// EdgeData is the durable payload of an edge.
type EdgeData struct {
	Addr       Address
	From       Address
	To         Address
	Type       string
	Properties map[string]gval.TypedValue
}

func (e *EdgeData) EdgeAddr() uint64 { return uint64(e.Addr) }

func (e *EdgeData) clone() *EdgeData {
	out := &EdgeData{
		Addr:       e.Addr,
		From:       e.From,
		To:         e.To,
		Type:       e.Type,
		Properties: make(map[string]gval.TypedValue, len(e.Properties)),
	}
	for k, val := range e.Properties {
		out.Properties[k] = val.Clone()
	}
	return out
}

// Direction selects which incidence list Expand walks.
type Direction uint8

const (
	DirOut Direction = iota
	DirIn
	DirBoth
)
