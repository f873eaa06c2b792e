package domain_test

import (
	"testing"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/wire"
)

func TestSchemaTracker_LearnsBaselineAndIsQuiet(t *testing.T) {
	tr := domain.NewSchemaTracker()
	msg := wire.NewMessage("a", 1.0, true)

	if got := tr.Observe("dfe.t.lt", msg); len(got) != 0 {
		t.Fatalf("first observation should learn baseline quietly, got %v", got)
	}
	if got := tr.Observe("dfe.t.lt", msg); len(got) != 0 {
		t.Fatalf("identical second observation should be quiet, got %v", got)
	}
}

func TestSchemaTracker_DetectsTypeChangeAndAddedField(t *testing.T) {
	tr := domain.NewSchemaTracker()
	tr.Observe("dfe.t.lt", wire.NewMessage("a", 1.0))

	mismatches := tr.Observe("dfe.t.lt", wire.NewMessage(1.0, 1.0, "extra"))
	if len(mismatches) != 2 {
		t.Fatalf("expected 2 mismatches, got %d: %v", len(mismatches), mismatches)
	}

	var sawTypeChange, sawAdded bool
	for _, m := range mismatches {
		switch m.Kind {
		case domain.MismatchTypeChange:
			sawTypeChange = true
		case domain.MismatchAdded:
			sawAdded = true
		}
	}
	if !sawTypeChange || !sawAdded {
		t.Errorf("expected both a type change and an added field, got %v", mismatches)
	}
}

func TestSchemaTracker_DetectsMissingField(t *testing.T) {
	tr := domain.NewSchemaTracker()
	tr.Observe("dfe.t.lt", wire.NewMessage("a", 1.0))

	mismatches := tr.Observe("dfe.t.lt", wire.NewMessage("a"))
	if len(mismatches) != 1 || mismatches[0].Kind != domain.MismatchMissing {
		t.Fatalf("expected a single missing-field mismatch, got %v", mismatches)
	}
}

func TestSchemaTracker_ResetForgetsBaseline(t *testing.T) {
	tr := domain.NewSchemaTracker()
	tr.Observe("dfe.t.lt", wire.NewMessage("a"))
	tr.Reset("dfe.t.lt")

	if got := tr.Observe("dfe.t.lt", wire.NewMessage(1.0)); len(got) != 0 {
		t.Fatalf("after Reset the next observation should re-learn quietly, got %v", got)
	}
}
