package operators

import (
	"context"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/gval"
)

// DDLKind names one of the DDL/Admin statement forms. Unlike
// the mutation operators, these carry no per-row semantics: each runs its
// side effect once per statement, against a single input row supplied by
// an upstream Once.
type DDLKind uint8

const (
	DDLCreateIndex DDLKind = iota
	DDLCreateStream
	DDLDropStream
	DDLShowStreams
	DDLStartStream
	DDLStopStream
	DDLTestStream
	DDLAuthQuery
)

func (k DDLKind) String() string {
	switch k {
	case DDLCreateIndex:
		return "CreateIndex"
	case DDLCreateStream:
		return "CreateStream"
	case DDLDropStream:
		return "DropStream"
	case DDLShowStreams:
		return "ShowStreams"
	case DDLStartStream:
		return "StartStream"
	case DDLStopStream:
		return "StopStream"
	case DDLTestStream:
		return "TestStream"
	case DDLAuthQuery:
		return "AuthQuery"
	default:
		return "Unknown"
	}
}

// DDL runs one of the admin statement forms: CreateIndex,
// CreateStream, DropStream, ShowStreams, StartStream, StopStream,
// TestStream, and AuthQuery. All eight share the same boundary contract:
// reject inside an explicit (multicommand) transaction, otherwise perform
// the effect exactly once and yield a single row.
//
// TestStream and AuthQuery are boundary-check-only: stream ingest and
// authentication are both out of scope here, so there is no ingest
// pipeline to test-connect to and no credential store to check against.
// They still enforce the multicommand rule and yield their one row, since
// that much of the contract is real regardless of scope.
type DDL struct {
	Input cursor.Cursor
	Kind  DDLKind

	Label      string      // CreateIndex
	Property   string      // CreateIndex
	StreamName string      // CreateStream/DropStream/StartStream/StopStream/TestStream
	Output     gval.Symbol // ShowStreams' bound list of stream names
}

func (d *DDL) Pull(ctx context.Context, frame *gval.Frame, execCtx *cursor.ExecContext) (bool, error) {
	if err := cursor.CheckAbort(ctx, execCtx); err != nil {
		return false, err
	}
	ok, err := d.Input.Pull(ctx, frame, execCtx)
	if err != nil || !ok {
		return false, err
	}
	if execCtx.Tx.InExplicitTransaction() {
		return false, cursor.New(cursor.KindIndexInMulticommand, "%s is not allowed inside an explicit transaction", d.Kind)
	}

	switch d.Kind {
	case DDLCreateIndex:
		if !execCtx.Tx.DeclareIndex(d.Label, d.Property) {
			return false, cursor.New(cursor.KindIndexExists, "index already exists on :%s(%s)", d.Label, d.Property)
		}
	case DDLCreateStream:
		execCtx.Tx.CreateStream(d.StreamName)
	case DDLDropStream:
		if !execCtx.Tx.DropStream(d.StreamName) {
			return false, cursor.New(cursor.KindQueryRuntime, "no such stream %q", d.StreamName)
		}
	case DDLShowStreams:
		names := execCtx.Tx.StreamNames()
		items := make([]gval.TypedValue, len(names))
		for i, n := range names {
			items[i] = gval.String(n)
		}
		frame.Set(d.Output, gval.List(items))
	case DDLStartStream:
		if !execCtx.Tx.StartStream(d.StreamName) {
			return false, cursor.New(cursor.KindQueryRuntime, "no such stream %q", d.StreamName)
		}
	case DDLStopStream:
		if !execCtx.Tx.StopStream(d.StreamName) {
			return false, cursor.New(cursor.KindQueryRuntime, "no such stream %q", d.StreamName)
		}
	case DDLTestStream, DDLAuthQuery:
		// boundary check only, see type doc comment.
	}
	return true, nil
}

func (d *DDL) Reset() error { return d.Input.Reset() }
func (d *DDL) Close() error { return d.Input.Close() }
