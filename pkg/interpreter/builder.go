package interpreter

import (
	"fmt"

	"github.com/nornic-labs/graphcore/pkg/cursor"
	"github.com/nornic-labs/graphcore/pkg/operators"
	"github.com/nornic-labs/graphcore/pkg/planpb"
)

// wrapFunc lets Build's tree walk decorate every constructed cursor the
// same way, used by buildProfiled to slot a Profile around each operator
// without duplicating the Kind switch.
type wrapFunc func(node *planpb.Node, c cursor.Cursor) cursor.Cursor

func identityWrap(_ *planpb.Node, c cursor.Cursor) cursor.Cursor { return c }

// Build translates a planpb.Node tree into the pkg/operators cursor tree it
// describes. Most fields carry over to the same-named operator field; the
// ones named differently are mapped in the Kind switch below: Target to
// CreateExpand.FromVertex, PropName to SetProperty/RemoveProperty.Name,
// HopFilter to ExpandVariable.Filter, OrderKeys to OrderBy.Keys, Properties
// to Merge.CreateProps, and DDLKind/PropertyName to DDL.Kind/DDL.Property.
func Build(node *planpb.Node) (cursor.Cursor, error) {
	return build(node, identityWrap)
}

func build(node *planpb.Node, wrap wrapFunc) (cursor.Cursor, error) {
	if node == nil {
		return nil, cursor.New(cursor.KindSemantic, "nil plan node")
	}

	child := func(n *planpb.Node) (cursor.Cursor, error) { return build(n, wrap) }

	var c cursor.Cursor

	switch node.Kind {
	case planpb.KindOnce:
		c = operators.NewOnce()

	case planpb.KindScanAll:
		c = &operators.ScanAll{
			OutputVertex:  node.OutputVertex,
			View:          node.View,
			Label:         node.Label,
			PropertyName:  node.PropertyName,
			PropertyValue: node.PropertyValue,
			PropertyRange: node.PropertyRange,
		}

	case planpb.KindExpand:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Expand{
			Input:       in,
			InputVertex: node.InputVertex,
			OutputEdge:  node.OutputEdge,
			OutputOther: node.OutputOther,
			Direction:   node.Direction,
			EdgeTypes:   node.EdgeTypes,
			View:        node.View,
		}

	case planpb.KindExpandVariable:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.ExpandVariable{
			Input:        in,
			InputVertex:  node.InputVertex,
			TargetVertex: node.TargetVertex,
			OutputOther:  node.OutputOther,
			OutputEdges:  node.OutputEdges,
			Direction:    node.Direction,
			EdgeTypes:    node.EdgeTypes,
			MinHops:      node.MinHops,
			MaxHops:      node.MaxHops,
			Filter:       node.HopFilter,
			View:         node.View,
		}

	case planpb.KindExpandBFS:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.ExpandBFS{
			Input:        in,
			InputVertex:  node.InputVertex,
			TargetVertex: node.TargetVertex,
			OutputOther:  node.OutputOther,
			OutputEdges:  node.OutputEdges,
			Direction:    node.Direction,
			EdgeTypes:    node.EdgeTypes,
			MaxHops:      node.MaxHops,
			View:         node.View,
		}

	case planpb.KindExpandWSP:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.ExpandWeightedShortestPath{
			Input:        in,
			InputVertex:  node.InputVertex,
			TargetVertex: node.TargetVertex,
			OutputOther:  node.OutputOther,
			OutputEdges:  node.OutputEdges,
			OutputWeight: node.OutputWeight,
			Direction:    node.Direction,
			EdgeTypes:    node.EdgeTypes,
			WeightProp:   node.WeightProp,
			MaxHops:      node.MaxHops,
			View:         node.View,
		}

	case planpb.KindConstructNamedPath:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.ConstructNamedPath{
			Input:       in,
			StartVertex: node.StartVertex,
			EdgeList:    node.EdgeList,
			OutputPath:  node.OutputPath,
			View:        node.View,
		}

	case planpb.KindFilter:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Filter{Input: in, Predicate: node.Predicate, View: node.View}

	case planpb.KindProduce:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Produce{Input: in, Projections: node.Projections}

	case planpb.KindDistinct:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Distinct{Input: in, Keys: node.Keys}

	case planpb.KindSkip:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Skip{Input: in, Count: node.Count}

	case planpb.KindLimit:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Limit{Input: in, Count: node.Count}

	case planpb.KindOrderBy:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.OrderBy{Input: in, Keys: node.OrderKeys}

	case planpb.KindUnion:
		left, e := child(node.Left)
		if e != nil {
			return nil, e
		}
		right, e := child(node.Right)
		if e != nil {
			return nil, e
		}
		c = &operators.Union{
			Left: left, Right: right,
			LeftSymbols: node.LeftSymbols, RightSymbols: node.RightSymbols,
			Output: node.OutputSymbols,
		}

	case planpb.KindCartesian:
		left, e := child(node.Left)
		if e != nil {
			return nil, e
		}
		right, e := child(node.Right)
		if e != nil {
			return nil, e
		}
		c = &operators.Cartesian{Left: left, Right: right}

	case planpb.KindCreateNode:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.CreateNode{Input: in, Output: node.Output, Labels: node.Labels, Properties: node.Properties}

	case planpb.KindCreateExpand:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.CreateExpand{
			Input:         in,
			FromVertex:    node.Target,
			ExistingOther: node.ExistingOther,
			OtherLabels:   node.OtherLabels,
			OtherProps:    node.OtherProps,
			OutputOther:   node.OutputOther,
			OutputEdge:    node.OutputEdge,
			EdgeType:      node.EdgeType,
			EdgeProps:     node.EdgeProps,
			Reversed:      node.Reversed,
		}

	case planpb.KindDelete:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Delete{Input: in, Targets: node.Targets, Detach: node.Detach}

	case planpb.KindSetProperty:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.SetProperty{Input: in, Target: node.Target, Name: node.PropName, Value: node.Value}

	case planpb.KindSetProperties:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.SetProperties{Input: in, Target: node.Target, Value: node.Value, Mode: node.Mode}

	case planpb.KindSetLabels:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.SetLabels{Input: in, Target: node.Target, Labels: node.Labels}

	case planpb.KindRemoveProperty:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.RemoveProperty{Input: in, Target: node.Target, Name: node.PropName}

	case planpb.KindRemoveLabels:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.RemoveLabels{Input: in, Target: node.Target, Labels: node.Labels}

	case planpb.KindMerge:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		match, e := child(node.Match)
		if e != nil {
			return nil, e
		}
		c = &operators.Merge{
			Input: in, Match: match,
			Labels: node.Labels, CreateProps: node.Properties, Output: node.Output,
			OnCreate: node.OnCreate, OnMatch: node.OnMatch,
		}

	case planpb.KindAccumulate:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Accumulate{Input: in}

	case planpb.KindAggregate:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Aggregate{Input: in, GroupKeys: node.GroupKeys, Aggregates: node.Aggregates}

	case planpb.KindOptional:
		branch, e := child(node.Branch)
		if e != nil {
			return nil, e
		}
		c = &operators.Optional{Branch: branch, Symbols: node.Symbols}

	case planpb.KindUnwind:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.Unwind{Input: in, List: node.List, Output: node.Output}

	case planpb.KindApply:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		branch, e := child(node.Branch)
		if e != nil {
			return nil, e
		}
		c = &operators.Apply{Input: in, Branch: branch, OnlyExists: node.OnlyExists, Negate: node.Negate}

	case planpb.KindAdvanceCommand:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.AdvanceCommand{Input: in}

	case planpb.KindDDL:
		in, e := child(node.Input)
		if e != nil {
			return nil, e
		}
		c = &operators.DDL{
			Input:      in,
			Kind:       node.DDLKind,
			Label:      node.Label,
			Property:   node.PropertyName,
			StreamName: node.StreamName,
			Output:     node.Output,
		}

	default:
		return nil, cursor.New(cursor.KindUnsupported, "unsupported plan node kind %d", node.Kind)
	}

	return wrap(node, c), nil
}

// nodeLabel names a plan node the way EXPLAIN/PROFILE output identifies it,
// mirroring QueryStats' field naming (short, operator-shaped labels rather
// than Go type names).
func nodeLabel(node *planpb.Node) string {
	switch node.Kind {
	case planpb.KindOnce:
		return "Once"
	case planpb.KindScanAll:
		if node.Label != "" {
			return fmt.Sprintf("ScanAll(%s)", node.Label)
		}
		return "ScanAll"
	case planpb.KindExpand:
		return fmt.Sprintf("Expand(%v)", node.EdgeTypes)
	case planpb.KindExpandVariable:
		return fmt.Sprintf("ExpandVariable(%d..%d)", node.MinHops, node.MaxHops)
	case planpb.KindExpandBFS:
		return "ExpandBFS"
	case planpb.KindExpandWSP:
		return "ExpandWeightedShortestPath"
	case planpb.KindConstructNamedPath:
		return "ConstructNamedPath"
	case planpb.KindFilter:
		return "Filter"
	case planpb.KindProduce:
		return "Produce"
	case planpb.KindDistinct:
		return "Distinct"
	case planpb.KindSkip:
		return "Skip"
	case planpb.KindLimit:
		return "Limit"
	case planpb.KindOrderBy:
		return "OrderBy"
	case planpb.KindUnion:
		return "Union"
	case planpb.KindCartesian:
		return "Cartesian"
	case planpb.KindCreateNode:
		return fmt.Sprintf("CreateNode(%v)", node.Labels)
	case planpb.KindCreateExpand:
		return fmt.Sprintf("CreateExpand(%s)", node.EdgeType)
	case planpb.KindDelete:
		if node.Detach {
			return "DetachDelete"
		}
		return "Delete"
	case planpb.KindSetProperty:
		return fmt.Sprintf("SetProperty(%s)", node.PropName)
	case planpb.KindSetProperties:
		return "SetProperties"
	case planpb.KindSetLabels:
		return fmt.Sprintf("SetLabels(%v)", node.Labels)
	case planpb.KindRemoveProperty:
		return fmt.Sprintf("RemoveProperty(%s)", node.PropName)
	case planpb.KindRemoveLabels:
		return fmt.Sprintf("RemoveLabels(%v)", node.Labels)
	case planpb.KindMerge:
		return "Merge"
	case planpb.KindAccumulate:
		return "Accumulate"
	case planpb.KindAggregate:
		return "Aggregate"
	case planpb.KindOptional:
		return "Optional"
	case planpb.KindUnwind:
		return "Unwind"
	case planpb.KindApply:
		if node.OnlyExists {
			return "SemiApply"
		}
		return "Apply"
	case planpb.KindAdvanceCommand:
		return "AdvanceCommand"
	case planpb.KindDDL:
		return fmt.Sprintf("DDL(%s)", node.DDLKind)
	default:
		return "Unknown"
	}
}
