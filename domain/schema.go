package domain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kdevan/gchat-bridge/wire"
)

// MismatchKind classifies a positional schema difference detected by
// SchemaTracker (§7 SchemaMismatch).
type MismatchKind string

const (
	MismatchMissing    MismatchKind = "MISSING_FIELD"
	MismatchAdded      MismatchKind = "ADDED_FIELD"
	MismatchTypeChange MismatchKind = "TYPE_CHANGE"
)

// Mismatch describes one difference between a learned baseline and a later
// response for the same rpcId, at a dot-separated positional path (e.g.
// "1.2" means field 2 of the submessage at field 1).
type Mismatch struct {
	Kind         MismatchKind
	RPCID        string
	Path         string
	BaselineType string
	CurrentType  string
}

func (m Mismatch) String() string {
	switch m.Kind {
	case MismatchMissing:
		return fmt.Sprintf("SchemaMismatch[%s] rpc %q field %s missing (was %s)", m.Kind, m.RPCID, m.Path, m.BaselineType)
	case MismatchAdded:
		return fmt.Sprintf("SchemaMismatch[%s] rpc %q field %s added (type %s)", m.Kind, m.RPCID, m.Path, m.CurrentType)
	case MismatchTypeChange:
		return fmt.Sprintf("SchemaMismatch[%s] rpc %q field %s type changed %s -> %s", m.Kind, m.RPCID, m.Path, m.BaselineType, m.CurrentType)
	default:
		return fmt.Sprintf("SchemaMismatch[%s] rpc %q field %s", m.Kind, m.RPCID, m.Path)
	}
}

type positionalSchema map[string]string

// SchemaTracker learns the positional (field-index -> type) shape of the
// first response seen per rpcId and flags structural drift on subsequent
// ones, non-fatally (§7: SchemaMismatch is logged, never fatal). It is the
// PBLite analog of a JSON-key schema diff, since PBLite fields are
// addressed by position rather than name.
type SchemaTracker struct {
	mu        sync.RWMutex
	baselines map[string]positionalSchema
}

// NewSchemaTracker creates an empty tracker; the first Observe call for each
// rpcId establishes its baseline.
func NewSchemaTracker() *SchemaTracker {
	return &SchemaTracker{baselines: make(map[string]positionalSchema)}
}

// Observe records m's positional shape against rpcId's baseline (learning
// one if none exists yet) and returns any mismatches found.
func (t *SchemaTracker) Observe(rpcID string, m *wire.Message) []Mismatch {
	current := extractPositionalSchema(m, "")

	t.mu.Lock()
	baseline, ok := t.baselines[rpcID]
	if !ok {
		t.baselines[rpcID] = current
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return diffPositionalSchemas(rpcID, baseline, current)
}

// Reset discards the learned baseline for rpcID, if any.
func (t *SchemaTracker) Reset(rpcID string) {
	t.mu.Lock()
	delete(t.baselines, rpcID)
	t.mu.Unlock()
}

func extractPositionalSchema(m *wire.Message, prefix string) positionalSchema {
	s := make(positionalSchema)
	if m == nil {
		return s
	}
	for i, v := range m.Fields {
		path := fmt.Sprintf("%d", i+1)
		if prefix != "" {
			path = prefix + "." + path
		}
		switch t := v.(type) {
		case *wire.Message:
			s[path] = "message"
			for k, v2 := range extractPositionalSchema(t, path) {
				s[k] = v2
			}
		case []wire.Value:
			s[path] = "array"
		case string:
			s[path] = "string"
		case float64:
			s[path] = "number"
		case bool:
			s[path] = "bool"
		case nil:
			s[path] = "null"
		default:
			s[path] = "unknown"
		}
	}
	return s
}

func diffPositionalSchemas(rpcID string, baseline, current positionalSchema) []Mismatch {
	var out []Mismatch
	for path, bType := range baseline {
		cType, ok := current[path]
		if !ok {
			out = append(out, Mismatch{Kind: MismatchMissing, RPCID: rpcID, Path: path, BaselineType: bType})
			continue
		}
		if cType != bType {
			out = append(out, Mismatch{Kind: MismatchTypeChange, RPCID: rpcID, Path: path, BaselineType: bType, CurrentType: cType})
		}
	}
	for path, cType := range current {
		if _, ok := baseline[path]; !ok {
			out = append(out, Mismatch{Kind: MismatchAdded, RPCID: rpcID, Path: path, CurrentType: cType})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return string(out[i].Kind) < string(out[j].Kind)
	})
	return out
}
