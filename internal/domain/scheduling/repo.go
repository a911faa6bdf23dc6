package scheduling

import (
	"context"
	"errors"
)

// ErrNoState means nothing usable is stored: the key is absent, the JSON is
// malformed, or a required list is missing.
var ErrNoState = errors.New("no stored state")

// Repository persists the whole State blob.
type Repository interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
	Clear(ctx context.Context) error
}
