package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/storage"
)

type kvRepo struct {
	kv     storage.KV
	key    string
	logger zerolog.Logger
}

// NewKVRepository stores the state as one JSON document under key.
func NewKVRepository(kv storage.KV, key string, logger zerolog.Logger) Repository {
	return &kvRepo{kv: kv, key: key, logger: logger}
}

// storedState distinguishes a missing list from an empty one.
type storedState struct {
	Doctors *[]Doctor      `json:"doctors"`
	Appts   *[]Appointment `json:"appts"`
}

func (r *kvRepo) Load(ctx context.Context) (*State, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var stored storedState
	if err := json.Unmarshal(raw, &stored); err != nil {
		r.logger.Warn().Err(err).Str("key", r.key).Msg("stored state is malformed, using defaults")
		return nil, ErrNoState
	}
	if stored.Doctors == nil || stored.Appts == nil {
		r.logger.Warn().Str("key", r.key).Msg("stored state is incomplete, using defaults")
		return nil, ErrNoState
	}

	return &State{Doctors: *stored.Doctors, Appts: *stored.Appts}, nil
}

func (r *kvRepo) Save(ctx context.Context, st *State) error {
	out := State{Doctors: st.Doctors, Appts: st.Appts}
	if out.Doctors == nil {
		out.Doctors = []Doctor{}
	}
	if out.Appts == nil {
		out.Appts = []Appointment{}
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.kv.Put(ctx, r.key, raw); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (r *kvRepo) Clear(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}
