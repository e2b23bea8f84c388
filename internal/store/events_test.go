package store

import (
	"testing"
)

func TestAppendListEvents(t *testing.T) {
	db := testDB(t)

	events := []Event{
		{ID: 1, Kind: "group_registered", GroupID: 7, CreatedAt: 1000},
		{ID: 2, Kind: "inspected", GroupID: 7, ItemID: 3, Actor: testOwner, CreatedAt: 1001,
			Attrs: map[string]any{"level": 2, "kinship": 51}},
		{ID: 3, Kind: "inspected", GroupID: 7, ItemID: 4, Actor: testOther, CreatedAt: 1002},
	}
	for _, e := range events {
		if err := db.AppendEvent(e); err != nil {
			t.Fatalf("AppendEvent %d: %v", e.ID, err)
		}
	}

	got, err := db.ListEvents(10)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListEvents = %d, want 3", len(got))
	}
	if got[0].ID != 3 {
		t.Errorf("first event = %d, want newest 3", got[0].ID)
	}
	if !got[2].Actor.IsZero() {
		t.Error("group event should have no actor")
	}

	limited, _ := db.ListEvents(1)
	if len(limited) != 1 {
		t.Errorf("ListEvents(1) = %d, want 1", len(limited))
	}

	item, err := db.ListItemEvents(7, 3, 10)
	if err != nil {
		t.Fatalf("ListItemEvents: %v", err)
	}
	if len(item) != 1 {
		t.Fatalf("ListItemEvents = %d, want 1", len(item))
	}
	if item[0].Actor != testOwner {
		t.Errorf("actor = %s, want %s", item[0].Actor, testOwner)
	}
	// Attrs round-trip through JSON, so numbers come back as float64.
	if item[0].Attrs["level"] != float64(2) {
		t.Errorf("attrs level = %v, want 2", item[0].Attrs["level"])
	}
}
