package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// Settings are the user settings carried by a backup.
type Settings struct {
	ScopeLevel domain.ScopeLevel `json:"scopeLevel" yaml:"scope_level"`
}

// UserData is a full backup: settings plus the permanent layer in rule text.
type UserData struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	App      string    `json:"app" yaml:"app"`
	Version  string    `json:"version" yaml:"version"`
	When     time.Time `json:"when" yaml:"when"`
	Settings Settings  `json:"settings" yaml:"settings"`
	Rules    string    `json:"rules" yaml:"rules"`
}

// Backup snapshots the settings and the permanent layer.
func (s *Service) Backup() UserData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return UserData{
		ID:       uuid.New(),
		App:      s.appName,
		Version:  s.version,
		When:     s.now().UTC(),
		Settings: Settings{ScopeLevel: s.level},
		Rules:    s.perm.Serialize(),
	}
}

// Restore replaces settings and both layers from a backup and saves the
// permanent layer.
func (s *Service) Restore(ctx context.Context, ud UserData) error {
	if ud.App != "" && !strings.EqualFold(ud.App, s.appName) {
		return fmt.Errorf("%w: app %q", ErrInvalidUserData, ud.App)
	}
	if ud.Settings.ScopeLevel > domain.ScopeSite {
		return fmt.Errorf("%w: scope level %d", ErrInvalidUserData, ud.Settings.ScopeLevel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.newLayer()
	n, err := next.Deserialize(ud.Rules)
	if err != nil {
		return err
	}
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.perm = next
	s.temp.AssignFrom(s.perm)
	s.level = ud.Settings.ScopeLevel
	s.cls.Reset()
	s.mutated(LayerPermanent, "restore")
	s.logger.Info(map[string]any{"id": ud.ID.String(), "rules": n, "when": ud.When.Format(time.RFC3339)}, "user_data_restored")
	return nil
}

// Reset wipes both layers and the store and restores the configured scope
// level.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.store.Purge(); err != nil {
			s.logger.Error(map[string]any{"error": err.Error()}, "store_purge_failed")
			return err
		}
		s.saveVersion = 0
	}
	s.temp.Reset()
	s.perm.Reset()
	s.level = s.defaultLevel
	s.cls.Reset()
	s.mutated(LayerPermanent, "reset")
	s.logger.Info(nil, "user_data_reset")
	return nil
}
