package trader

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRosterAdd(t *testing.T) {
	r := NewRoster()

	h, err := r.AddHuman(Human{Name: "Alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ID == "" {
		t.Fatal("expected generated ID")
	}
	if _, err := r.AddHuman(Human{Name: " alice "}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := r.AddAI(AI{Name: "ALICE"}); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName for AI, got %v", err)
	}

	got, ok := r.HumanByName("ALICE")
	if !ok || got.ID != h.ID {
		t.Errorf("expected lookup by name to find %s, got %+v", h.ID, got)
	}
}

func TestRosterAIsOrderAndCopies(t *testing.T) {
	r := NewRoster()
	names := []string{"Carl", "Ava", "Max"}
	for _, n := range names {
		if _, err := r.AddAI(AI{Name: n}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ais := r.AIs()
	if len(ais) != len(names) {
		t.Fatalf("expected %d AIs, got %d", len(names), len(ais))
	}
	for i, n := range names {
		if ais[i].Name != n {
			t.Errorf("expected AI %d to be %s, got %s", i, n, ais[i].Name)
		}
	}

	fv := decimal.NewFromInt(70)
	ais[0].FairValue = &fv
	again, _ := r.AI(ais[0].ID)
	if again.FairValue != nil {
		t.Error("expected roster to be unaffected by mutating a returned copy")
	}

	if ids := r.AIIDs(); len(ids) != 3 || ids[1] != ais[1].ID {
		t.Errorf("unexpected AI IDs %v", ids)
	}
}

func TestRosterUpdateHuman(t *testing.T) {
	r := NewRoster()
	h, _ := r.AddHuman(Human{Name: "bob"})

	got, err := r.UpdateHuman(h.ID, func(h *Human) { h.Bid = decimal.NewFromInt(65) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Bid.Equal(decimal.NewFromInt(65)) {
		t.Errorf("expected bid 65, got %s", got.Bid)
	}

	if err := r.SetSnapshot(h.ID, -2000, decimal.NewFromInt(140000)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := r.Human(h.ID)
	if stored.Position != -2000 || !stored.Bid.Equal(decimal.NewFromInt(65)) {
		t.Errorf("expected position -2000 with bid kept, got %+v", stored)
	}

	if _, err := r.UpdateHuman("missing", func(*Human) {}); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("expected ErrUnknownParticipant, got %v", err)
	}
}

func TestRosterName(t *testing.T) {
	r := NewRoster()
	h, _ := r.AddHuman(Human{Name: "bob"})
	a, _ := r.AddAI(AI{Name: "Carl"})

	if r.Name(h.ID) != "bob" || r.Name(a.ID) != "Carl" || r.Name("x") != "" {
		t.Errorf("unexpected names %q %q %q", r.Name(h.ID), r.Name(a.ID), r.Name("x"))
	}
}
