package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/storage"
)

const testKey = "clinic_simple_v2"

func TestKVRepository_LoadMissingKey(t *testing.T) {
	repo := NewKVRepository(storage.NewMemory(), testKey, zerolog.Nop())
	if _, err := repo.Load(context.Background()); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
}

func TestKVRepository_LoadUnusable(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", `{"doctors": [`},
		{"not an object", `"hello"`},
		{"missing appts", `{"doctors": []}`},
		{"missing doctors", `{"appts": []}`},
		{"null doctors", `{"doctors": null, "appts": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := storage.NewMemory()
			if err := kv.Put(ctx, testKey, []byte(tt.raw)); err != nil {
				t.Fatalf("put: %v", err)
			}
			repo := NewKVRepository(kv, testKey, zerolog.Nop())
			if _, err := repo.Load(ctx); !errors.Is(err, ErrNoState) {
				t.Fatalf("expected ErrNoState, got %v", err)
			}
		})
	}
}

func TestKVRepository_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewKVRepository(kv, testKey, zerolog.Nop())

	st := &State{
		Doctors: []Doctor{{ID: "d1", Name: "Dr. A", Phone: "123456789", Spec: "GP"}},
		Appts:   []Appointment{appt("a1", "d1", "2025-01-01", "09:00", StatusDone)},
	}
	if err := repo.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Doctors) != 1 || got.Doctors[0] != st.Doctors[0] {
		t.Errorf("doctors mismatch: %+v", got.Doctors)
	}
	if len(got.Appts) != 1 || got.Appts[0] != st.Appts[0] {
		t.Errorf("appts mismatch: %+v", got.Appts)
	}
}

func TestKVRepository_SaveUsesWireNames(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewKVRepository(kv, testKey, zerolog.Nop())

	if err := repo.Save(ctx, &State{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := kv.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(m["doctors"]) != "[]" || string(m["appts"]) != "[]" {
		t.Errorf("expected empty lists, got %s", raw)
	}
}

func TestKVRepository_LoadEmptyLists(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	kv.Put(ctx, testKey, []byte(`{"doctors": [], "appts": []}`))

	got, err := NewKVRepository(kv, testKey, zerolog.Nop()).Load(ctx)
	if err != nil {
		t.Fatalf("expected empty lists to load, got %v", err)
	}
	if len(got.Doctors) != 0 || len(got.Appts) != 0 {
		t.Errorf("expected empty state, got %+v", got)
	}
}

func TestKVRepository_Clear(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	repo := NewKVRepository(kv, testKey, zerolog.Nop())

	repo.Save(ctx, &State{})
	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := kv.Get(ctx, testKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}

func TestKVRepository_FileBackend(t *testing.T) {
	ctx := context.Background()
	kv, err := storage.NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	repo := NewKVRepository(kv, testKey, zerolog.Nop())

	st := WithDefaults(nil, "2025-01-01")
	if err := repo.Save(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Doctors[0].Name != SeedDoctorName {
		t.Errorf("expected seed doctor, got %+v", got.Doctors)
	}
}

func TestWithDefaults(t *testing.T) {
	t.Run("nothing stored", func(t *testing.T) {
		st := WithDefaults(nil, "2025-01-01")
		if len(st.Doctors) != 1 || st.Doctors[0].Name != SeedDoctorName || st.Doctors[0].Phone != SeedDoctorPhone || st.Doctors[0].Spec != SeedDoctorSpec {
			t.Fatalf("unexpected seed doctors %+v", st.Doctors)
		}
		if len(st.Appts) != 1 {
			t.Fatalf("expected one seed appointment, got %d", len(st.Appts))
		}
		a := st.Appts[0]
		if a.Patient != SeedPatient || a.Date != "2025-01-01" || a.Time != SeedTime || a.Status != StatusScheduled {
			t.Errorf("unexpected seed appointment %+v", a)
		}
		if a.DoctorID != st.Doctors[0].ID {
			t.Error("seed appointment must reference the seed doctor")
		}
	})

	t.Run("doctors kept, no appointments", func(t *testing.T) {
		saved := &State{Doctors: []Doctor{{ID: "d1", Name: "Dr. A"}, {ID: "d2", Name: "Dr. B"}}}
		st := WithDefaults(saved, "2025-01-01")
		if len(st.Doctors) != 2 {
			t.Fatalf("expected stored doctors kept, got %+v", st.Doctors)
		}
		if len(st.Appts) != 1 || st.Appts[0].DoctorID != "d1" {
			t.Fatalf("expected seed appointment for first stored doctor, got %+v", st.Appts)
		}
	})

	t.Run("appointments kept, no doctors", func(t *testing.T) {
		saved := &State{Appts: []Appointment{appt("a1", "gone", "2025-01-01", "09:00", "")}}
		st := WithDefaults(saved, "2025-01-01")
		if len(st.Doctors) != 1 || st.Doctors[0].Name != SeedDoctorName {
			t.Fatalf("expected seed doctor, got %+v", st.Doctors)
		}
		if len(st.Appts) != 1 || st.Appts[0].ID != "a1" {
			t.Fatalf("expected stored appointment kept, got %+v", st.Appts)
		}
		if st.Appts[0].Status != StatusScheduled {
			t.Errorf("expected missing status to read as scheduled, got %q", st.Appts[0].Status)
		}
		if saved.Appts[0].Status != "" {
			t.Error("WithDefaults must not modify its input")
		}
	})
}
