// Package persistence is the store manager: it opens a record store for the
// team model and owns the coordinator and shared view context the rest of the
// application works through.
package persistence

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/roster/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/roster/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/roster/internal/core/domain"
	"github.com/custodia-labs/roster/internal/core/ports/driven"
	"github.com/custodia-labs/roster/internal/core/schema"
	"github.com/custodia-labs/roster/internal/core/services"
)

// ViewContextName names the shared working context.
const ViewContextName = "view"

// Options configures a Persistence.
type Options struct {
	// InMemory selects a throwaway store instead of the on-disk SQLite store.
	InMemory bool

	// DataDir is the directory of the on-disk store. Empty means ~/.roster/data.
	DataDir string

	// MergePolicy applies to the view context and new background contexts.
	// Empty means domain.DefaultMergePolicy.
	MergePolicy domain.MergePolicy

	// AutomaticallyMergesChanges makes the view context pick up saves from
	// background contexts. Nil means enabled.
	AutomaticallyMergesChanges *bool

	// Logger receives store and context diagnostics. Nil discards them.
	Logger *zap.SugaredLogger
}

// OptionsFromSettings converts stored settings into options.
func OptionsFromSettings(s domain.StoreSettings, log *zap.SugaredLogger) Options {
	return Options{
		InMemory:    s.InMemory,
		DataDir:     s.DataDir,
		MergePolicy: s.MergePolicy,
		Logger:      log,
	}
}

// Persistence owns one record store, its coordinator and the view context.
type Persistence struct {
	model  *schema.Schema
	store  driven.RecordStore
	coord  *services.StoreCoordinator
	view   *services.ManagedContext
	roster *services.RosterService
	policy domain.MergePolicy
	log    *zap.SugaredLogger

	mu     sync.Mutex
	bgSeq  int
	closed bool
}

// NewPersistence builds the team model and opens a store for it.
// Every call returns an independent store.
func NewPersistence(opts Options) (*Persistence, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	policy := opts.MergePolicy
	if policy == "" {
		policy = domain.DefaultMergePolicy
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("%w: unknown merge policy %q", domain.ErrInvalidInput, policy)
	}

	model, err := schema.TeamModel()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", schema.ModelName, err)
	}

	var store driven.RecordStore
	if opts.InMemory {
		store = memory.NewRecordStore(model, log.Named("store.memory"))
	} else {
		s, err := sqlite.NewStore(opts.DataDir, model, log.Named("store.sqlite"))
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		store = s
	}

	coord := services.NewStoreCoordinator(model, store, log.Named("coordinator"))
	view := coord.NewContext(ViewContextName, policy)
	view.SetAutomaticallyMergesChanges(opts.AutomaticallyMergesChanges == nil || *opts.AutomaticallyMergesChanges)

	log.Debugw("persistence ready", "model", model.Name(), "store", store.Path(), "policy", policy)
	return &Persistence{
		model:  model,
		store:  store,
		coord:  coord,
		view:   view,
		roster: services.NewRosterService(view),
		policy: policy,
		log:    log,
	}, nil
}

// ViewContext returns the shared working context.
func (p *Persistence) ViewContext() *services.ManagedContext {
	return p.view
}

// Roster returns the roster service working on the view context.
func (p *Persistence) Roster() *services.RosterService {
	return p.roster
}

// NewBackgroundContext returns a new top-level context on the same store.
// Its saves are merged into the view context when automatic merging is on.
func (p *Persistence) NewBackgroundContext() *services.ManagedContext {
	p.mu.Lock()
	p.bgSeq++
	name := fmt.Sprintf("background-%d", p.bgSeq)
	p.mu.Unlock()
	return p.coord.NewContext(name, p.policy)
}

// Model returns the schema the store was opened with.
func (p *Persistence) Model() *schema.Schema {
	return p.model
}

// StorePath returns the store location, ":memory:" for in-memory stores.
func (p *Persistence) StorePath() string {
	return p.store.Path()
}

// Close closes the store. Contexts must not be used afterwards.
func (p *Persistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.store.Close()
}

var (
	sharedMu sync.Mutex
	shared   *Persistence
)

// Initialize opens the process-wide persistence. Later calls return the
// existing instance and ignore opts.
func Initialize(opts Options) (*Persistence, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	p, err := NewPersistence(opts)
	if err != nil {
		return nil, err
	}
	shared = p
	return p, nil
}

// MustInitialize is Initialize that logs at fatal level, ending the process,
// when the store cannot be opened.
func MustInitialize(opts Options) *Persistence {
	p, err := Initialize(opts)
	if err != nil {
		log := opts.Logger
		if log == nil {
			log = zap.NewExample().Sugar()
		}
		log.Fatalw("unable to open store", "model", schema.ModelName, "error", err)
	}
	return p
}

// Shared returns the process-wide persistence.
func Shared() (*Persistence, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		return nil, domain.ErrNotInitialized
	}
	return shared, nil
}

// ResetShared closes and clears the process-wide persistence.
func ResetShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.Close()
	shared = nil
	return err
}
