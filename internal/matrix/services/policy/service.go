// Package policy is the control surface over the two rule layers. A Service
// serializes every operation behind one mutex: the temporary layer takes user
// edits, the permanent layer is what gets saved.
package policy

import (
	"context"
	"sync"
	"time"

	"github.com/haukened/rr-matrix/internal/matrix/common/clock"
	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/decisioncache"
	"github.com/haukened/rr-matrix/internal/matrix/repos/pagestore"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/services/classifier"
	"github.com/haukened/rr-matrix/internal/matrix/services/evaluator"
	"github.com/haukened/rr-matrix/internal/matrix/services/reconciler"
	"github.com/haukened/rr-matrix/internal/matrix/services/snapshot"
)

type Service struct {
	mu sync.Mutex

	temp *rules.Matrix
	perm *rules.Matrix

	eval *evaluator.Evaluator
	rec  *reconciler.Reconciler
	agg  *snapshot.Aggregator
	cls  *classifier.Classifier

	pages     *pagestore.Store
	decisions decisioncache.Cache
	store     rules.Store
	layerOpts []rules.Option
	metrics   Metrics
	logger    log.Logger
	clock     clock.Clock

	level        domain.ScopeLevel
	defaultLevel domain.ScopeLevel
	seedRules    string
	appName      string
	version      string
	saveVersion  uint64
}

type Options struct {
	Evaluator  *evaluator.Evaluator
	Store      rules.Store
	Pages      *pagestore.Store
	Decisions  decisioncache.Cache
	Metrics    Metrics
	Logger     log.Logger
	Clock      clock.Clock
	ScopeLevel domain.ScopeLevel
	// Bloom enables the hostname prefilter on both layers.
	Bloom       rules.BloomFactory
	BloomFPRate float64
	// SeedRules is loaded into the permanent layer when the store is empty.
	SeedRules string
	AppName   string
	Version   string
}

func New(opts Options) (*Service, error) {
	s := &Service{
		eval:         opts.Evaluator,
		pages:        opts.Pages,
		decisions:    opts.Decisions,
		store:        opts.Store,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Clock,
		level:        opts.ScopeLevel,
		defaultLevel: opts.ScopeLevel,
		seedRules:    opts.SeedRules,
		appName:      opts.AppName,
		version:      opts.Version,
	}
	if s.eval == nil {
		s.eval = evaluator.Default()
	}
	if s.logger == nil {
		s.logger = log.NewNoopLogger()
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.appName == "" {
		s.appName = "rr-matrix"
	}
	if s.pages == nil {
		p, err := pagestore.New(pagestore.Options{})
		if err != nil {
			return nil, err
		}
		s.pages = p
	}
	if s.decisions == nil {
		dc, err := decisioncache.New(0)
		if err != nil {
			return nil, err
		}
		s.decisions = dc
	}

	var mopts []rules.Option
	mopts = append(mopts, rules.WithLogger(s.logger))
	if opts.Bloom != nil {
		mopts = append(mopts, rules.WithBloom(opts.Bloom, opts.BloomFPRate))
	}
	s.layerOpts = mopts
	s.temp = s.newLayer()
	s.perm = s.newLayer()

	s.rec = reconciler.New(s.eval)
	s.agg = snapshot.New(s.eval, s.rec)
	s.cls = classifier.New()
	return s, nil
}

// Load reads the permanent layer from the store and copies it into the
// temporary layer. An empty store is seeded from SeedRules.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.store != nil {
		in, switches, err := s.store.Load()
		if err != nil {
			s.logger.Error(map[string]any{"error": err.Error()}, "permanent_rules_load_failed")
			return err
		}
		n := s.perm.Replace(in, switches)
		s.saveVersion = s.store.Stats().Version
		s.logger.Info(map[string]any{"rules": n, "version": s.saveVersion}, "permanent_rules_loaded")
	}
	if s.perm.Len() == 0 && s.seedRules != "" {
		next := s.newLayer()
		n, err := next.Deserialize(s.seedRules)
		if err != nil {
			return err
		}
		if err := s.save(ctx, next); err != nil {
			return err
		}
		s.perm = next
		s.logger.Info(map[string]any{"rules": n}, "permanent_rules_seeded")
	}
	s.temp.AssignFrom(s.perm)
	s.mutated(LayerTemporary, "load")
	return nil
}

// newLayer returns an empty matrix built with the service's layer options.
func (s *Service) newLayer() *rules.Matrix {
	return rules.New(s.layerOpts...)
}

// clonePermanent returns a copy of the permanent layer to stage edits on.
func (s *Service) clonePermanent() *rules.Matrix {
	next := s.newLayer()
	next.AssignFrom(s.perm)
	return next
}

// save writes layer to the store as the next permanent version. Without a
// store it is a no-op. Callers swap layer in as the permanent layer only
// after save succeeds, so a failed write leaves memory and disk in step.
func (s *Service) save(ctx context.Context, layer *rules.Matrix) error {
	if s.store == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.saveVersion + 1
	err := s.store.RebuildAll(layer.Rules(), layer.Switches(), next, s.clock.Now().Unix())
	if err != nil {
		s.metrics.ObservePersist("error")
		s.logger.Error(map[string]any{"error": err.Error()}, "permanent_rules_save_failed")
		return err
	}
	s.saveVersion = next
	s.metrics.ObservePersist("saved")
	s.logger.Debug(map[string]any{"version": next, "rules": layer.Len()}, "permanent_rules_saved")
	return nil
}

// mutated runs after every write to a layer. Cached decisions are dropped.
func (s *Service) mutated(layer, op string) {
	s.decisions.Purge()
	s.metrics.ObserveMutation(layer, op)
	s.metrics.SetLayerSize(LayerTemporary, s.temp.Len())
	s.metrics.SetLayerSize(LayerPermanent, s.perm.Len())
}

// ScopeLevel returns the active scope level.
func (s *Service) ScopeLevel() domain.ScopeLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// SetScopeLevel changes how page scopes are derived.
func (s *Service) SetScopeLevel(l domain.ScopeLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = l
	s.decisions.Purge()
	s.cls.Reset()
}

// scopeOf derives the scope of a page URL under the active level.
func (s *Service) scopeOf(pageURL string) (scope, pageHost string) {
	pageHost = hostname.FromURL(pageURL)
	return s.level.Scope(pageHost, hostname.Domain(pageHost)), pageHost
}

// Snapshot aggregates the request log of pageURL. Unknown pages yield an
// empty snapshot.
func (s *Service) Snapshot(pageURL string) *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(pageURL)
}

func (s *Service) snapshotLocked(pageURL string) *snapshot.Snapshot {
	start := s.clock.Now()
	page, _ := s.pages.Lookup(pageURL)
	snap := s.agg.Aggregate(page, s.temp, s.perm, s.level)
	s.metrics.ObserveSnapshot(s.clock.Now().Sub(start))
	return snap
}

// Groups classifies the domains of pageURL's snapshot.
func (s *Service) Groups(pageURL string) classifier.Groups {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cls.Classify(s.snapshotLocked(pageURL))
}

// RequestLog returns the requests of pageURL, newest first.
func (s *Service) RequestLog(pageURL string) ([]domain.Request, bool) {
	page, ok := s.pages.Lookup(pageURL)
	if !ok {
		return nil, false
	}
	out := make([]domain.Request, 0, len(page.Requests))
	for i := len(page.Requests) - 1; i >= 0; i-- {
		out = append(out, page.Requests[i])
	}
	return out, true
}

// ClearRequestLog forgets pageURL.
func (s *Service) ClearRequestLog(pageURL string) bool {
	return s.pages.Forget(pageURL)
}

// Stats reports layer sizes, cache counters and the store state.
type Stats struct {
	TemporaryRules int               `json:"temporaryRules"`
	PermanentRules int               `json:"permanentRules"`
	Pages          int               `json:"pages"`
	CacheHits      uint64            `json:"cacheHits"`
	CacheMisses    uint64            `json:"cacheMisses"`
	Store          *rules.StoreStats `json:"store,omitempty"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	hits, misses, _ := s.decisions.Stats()
	st := Stats{
		TemporaryRules: s.temp.Len(),
		PermanentRules: s.perm.Len(),
		Pages:          s.pages.Len(),
		CacheHits:      hits,
		CacheMisses:    misses,
	}
	if s.store != nil {
		ss := s.store.Stats()
		st.Store = &ss
	}
	return st
}

// StoreStats returns the persisted layer metadata.
func (s *Service) StoreStats() (rules.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return rules.StoreStats{}, ErrNoStore
	}
	return s.store.Stats(), nil
}

// Close releases the store.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Service) now() time.Time { return s.clock.Now() }
