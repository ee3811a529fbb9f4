package policy

import (
	"context"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// ToggleSwitch flips the evaluated switch of scope in the temporary layer and
// returns the new state.
func (s *Service) ToggleSwitch(scope string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.eval.EvaluateSwitch(s.temp, scope)
	if err := s.temp.ToggleSwitch(scope, current); err != nil {
		return current, err
	}
	s.mutated(LayerTemporary, "toggle_switch")
	s.logger.Debug(map[string]any{"scope": scope, "enabled": !current}, "switch_toggled")
	return !current, nil
}

func (s *Service) BlockCell(scope, host string, t domain.RequestType) error {
	return s.setCell(scope, host, t, domain.Block, "block")
}

func (s *Service) AllowCell(scope, host string, t domain.RequestType) error {
	return s.setCell(scope, host, t, domain.Allow, "allow")
}

func (s *Service) GraylistCell(scope, host string, t domain.RequestType) error {
	return s.setCell(scope, host, t, domain.Graylist, "graylist")
}

func (s *Service) setCell(scope, host string, t domain.RequestType, h domain.Hue, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.temp.SetCell(scope, host, t, h); err != nil {
		s.logger.Debug(map[string]any{"scope": scope, "hostname": host, "type": t.String(), "error": err.Error()}, "cell_rejected")
		return err
	}
	s.mutated(LayerTemporary, op)
	return nil
}

// ClearCell removes the explicit temporary cell. It reports whether one existed.
func (s *Service) ClearCell(scope, host string, t domain.RequestType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.temp.RemoveCell(scope, host, t) {
		return false
	}
	s.mutated(LayerTemporary, "clear")
	return true
}

// PendingDiff lists what differs between the layers for pageURL. Without a
// request log only the page hostname itself is compared.
func (s *Service) PendingDiff(pageURL string) []domain.DiffEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages.Lookup(pageURL); ok {
		return s.snapshotLocked(pageURL).Diff
	}
	host := hostname.FromURL(pageURL)
	return s.rec.Diff(s.temp, s.perm, host, []string{host})
}

// Persist copies the entries from the temporary into the permanent layer and
// saves it when anything changed. The permanent layer only changes once the
// save succeeded; a failed save leaves the entries pending.
func (s *Service) Persist(ctx context.Context, diff []domain.DiffEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}
	next := s.clonePermanent()
	if !s.rec.ApplyDiff(diff, s.temp, next) {
		s.metrics.ObservePersist("unchanged")
		return false, nil
	}
	if err := s.save(ctx, next); err != nil {
		return false, err
	}
	s.perm = next
	s.mutated(LayerPermanent, "persist")
	s.logger.Info(map[string]any{"entries": len(diff)}, "persist_applied")
	return true, nil
}

// RevertScope copies the entries back from the permanent layer.
func (s *Service) RevertScope(diff []domain.DiffEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rec.ApplyDiff(diff, s.perm, s.temp) {
		return false
	}
	s.mutated(LayerTemporary, "revert")
	return true
}

// RevertAll replaces the temporary layer with the permanent one.
func (s *Service) RevertAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rec.Assign(s.temp, s.perm)
	s.mutated(LayerTemporary, "revert_all")
}

// RuleTexts is both layers in rule text.
type RuleTexts struct {
	Temporary string `json:"temporaryRules" yaml:"temporary"`
	Permanent string `json:"permanentRules" yaml:"permanent"`
}

// RuleTextsUpdate replaces the layers whose text is set.
type RuleTextsUpdate struct {
	Temporary *string `json:"temporaryRules,omitempty"`
	Permanent *string `json:"permanentRules,omitempty"`
}

func (s *Service) UserRules() RuleTexts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ruleTextsLocked()
}

func (s *Service) ruleTextsLocked() RuleTexts {
	return RuleTexts{Temporary: s.temp.Serialize(), Permanent: s.perm.Serialize()}
}

// SetUserRules replaces the given layers from rule text. Malformed lines are
// skipped. A new permanent text is saved.
func (s *Service) SetUserRules(ctx context.Context, u RuleTextsUpdate) (RuleTexts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Temporary != nil {
		n, err := s.temp.Deserialize(*u.Temporary)
		if err != nil {
			return s.ruleTextsLocked(), err
		}
		s.mutated(LayerTemporary, "set_rules")
		s.logger.Info(map[string]any{"layer": LayerTemporary, "rules": n}, "user_rules_set")
	}
	if u.Permanent != nil {
		next := s.newLayer()
		n, err := next.Deserialize(*u.Permanent)
		if err != nil {
			return s.ruleTextsLocked(), err
		}
		if err := s.save(ctx, next); err != nil {
			return s.ruleTextsLocked(), err
		}
		s.perm = next
		s.mutated(LayerPermanent, "set_rules")
		s.logger.Info(map[string]any{"layer": LayerPermanent, "rules": n}, "user_rules_set")
	}
	return s.ruleTextsLocked(), nil
}

// FilterRequest decides an outgoing request of pageURL against the temporary
// layer and records it in the page's log. Requests without a hostname are
// attributed to the page.
func (s *Service) FilterRequest(pageURL string, t domain.RequestType, requestURL string) (domain.Decision, error) {
	if !t.Valid() {
		return domain.Decision{}, domain.ErrInvalidType
	}
	s.mu.Lock()
	scope, pageHost := s.scopeOf(pageURL)
	reqHost := hostname.FromURL(requestURL)
	host := reqHost
	if host == "" {
		host = pageHost
	}
	if host == "" || hostname.Reserved(host) {
		s.mu.Unlock()
		return domain.Decision{}, domain.ErrInvalidHostname
	}
	k := domain.CellKey{Scope: scope, Hostname: host, Type: t}
	d, cached := s.decisions.Get(k)
	if !cached {
		d = s.eval.Decide(s.temp, scope, host, t)
		s.decisions.Put(k, d)
	}
	s.mu.Unlock()

	s.metrics.ObserveDecision(t, d, cached)
	err := s.pages.Record(pageURL, domain.Request{Type: t, Hostname: reqHost, URL: requestURL, Blocked: d.Blocked})
	if err != nil {
		s.logger.Debug(map[string]any{"page": pageURL, "error": err.Error()}, "request_not_recorded")
	}
	return d, nil
}

// MustBlock reports whether the temporary layer blocks (scope, host, t).
func (s *Service) MustBlock(scope, host string, t domain.RequestType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eval.Decide(s.temp, scope, host, t).Blocked
}

// Evaluate resolves one cell in both layers.
func (s *Service) Evaluate(scope, host string, t domain.RequestType) (temporary, permanent domain.Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eval.EvaluateColor(s.temp, scope, host, t), s.eval.EvaluateColor(s.perm, scope, host, t)
}
