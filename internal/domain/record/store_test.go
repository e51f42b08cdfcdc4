package record

import "testing"

func note(pid int64, seq int, text string) Note {
	return Note{Meta: Meta{PatientID: pid, Seq: seq}, Text: text}
}

func TestNewStore_IndexesByPatientInSourceOrder(t *testing.T) {
	store, err := NewStore([]Record{
		note(2, 1, "b"),
		note(1, 2, "c"),
		note(2, 0, "a"),
		Vital{Meta: Meta{PatientID: 1, Seq: 0}, Type: "Pulse", Reading: "80"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ids := store.PatientIDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	b, ok := store.Patient(2)
	if !ok {
		t.Fatal("expected patient 2")
	}
	notes := b.Records[CategoryNotes]
	if len(notes) != 2 || notes[0].(Note).Text != "a" || notes[1].(Note).Text != "b" {
		t.Errorf("expected notes in source order, got %+v", notes)
	}
	for _, r := range b.All() {
		if r.Patient() != 2 {
			t.Errorf("bundle for patient 2 contains record of patient %d", r.Patient())
		}
	}
	if store.Len() != 4 || len(store.Records()) != 4 {
		t.Errorf("expected 4 records, got %d / %d", store.Len(), len(store.Records()))
	}
}

func TestStore_PatientReturnsCopy(t *testing.T) {
	store, _ := NewStore([]Record{note(1, 0, "a")})
	b, _ := store.Patient(1)
	b.Records[CategoryNotes][0] = note(1, 0, "mutated")
	b.Records[CategoryVitals] = []Record{Vital{}}

	again, _ := store.Patient(1)
	if again.Records[CategoryNotes][0].(Note).Text != "a" {
		t.Error("store was mutated through a returned bundle")
	}
	if len(again.Records[CategoryVitals]) != 0 {
		t.Error("store gained a category through a returned bundle")
	}
}

func TestStore_UnknownPatient(t *testing.T) {
	store, _ := NewStore(nil)
	if store.PatientExists(42) {
		t.Error("expected unknown patient")
	}
	if _, ok := store.Patient(42); ok {
		t.Error("expected no bundle for unknown patient")
	}
}

func TestNewStore_RejectsNil(t *testing.T) {
	if _, err := NewStore([]Record{nil}); err == nil {
		t.Error("expected error for nil record")
	}
}
