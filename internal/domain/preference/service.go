package preference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/storage"
	"github.com/clinic/clinic/internal/platform/websocket"
)

// ErrInvalidTheme is returned by Set for anything but light or dark.
var ErrInvalidTheme = errors.New("theme must be light or dark")

// Service reads and writes the theme under its own key. The value is stored
// as the bare theme name.
type Service struct {
	kv        storage.KV
	key       string
	publisher websocket.EventPublisher
	logger    zerolog.Logger

	mu sync.Mutex
}

func NewService(kv storage.KV, key string, publisher websocket.EventPublisher, logger zerolog.Logger) *Service {
	return &Service{kv: kv, key: key, publisher: publisher, logger: logger}
}

// Get returns the stored theme, light when nothing is stored.
func (s *Service) Get(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, storage.ErrNotFound) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", fmt.Errorf("read theme: %w", err)
	}
	return Normalize(string(raw)), nil
}

func (s *Service) Set(ctx context.Context, theme string) (string, error) {
	if !Valid(theme) {
		return "", ErrInvalidTheme
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return theme, s.put(ctx, theme)
}

// Toggle switches between light and dark and returns the new theme.
func (s *Service) Toggle(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	next := Toggle(cur)
	return next, s.put(ctx, next)
}

func (s *Service) put(ctx context.Context, theme string) error {
	if err := s.kv.Put(ctx, s.key, []byte(theme)); err != nil {
		return fmt.Errorf("write theme: %w", err)
	}
	s.logger.Debug().Str("theme", theme).Msg("theme saved")

	if s.publisher != nil {
		evt := websocket.NewEvent(websocket.TopicPreferences, "theme.updated", "Preference", "theme", "", Theme{Theme: theme})
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Warn().Err(err).Msg("publish theme notice")
		}
	}
	return nil
}
