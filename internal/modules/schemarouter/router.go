package schemarouter

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/igasovic/PKM-sub000/internal/pkg/dbctx"
	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const (
	DefaultProdSchema = "pkm"
	DefaultTestSchema = "pkm_test"
	DefaultCacheTTL   = 10 * time.Second
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IdentifierError reports a configured schema name that is not a plain SQL identifier.
type IdentifierError struct {
	Name string
	Role string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("invalid %s schema identifier %q", e.Role, e.Name)
}

func (e *IdentifierError) Unwrap() error { return pkgerrors.ErrSchemaIdentifier }

// ValidateIdentifier returns an *IdentifierError unless name matches ^[A-Za-z_][A-Za-z0-9_]*$.
func ValidateIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return &IdentifierError{Name: name, Role: "configured"}
	}
	return nil
}

// StateStore persists the test-mode flag.
type StateStore interface {
	GetTestMode(dbc dbctx.Context) (bool, error)
	SetTestMode(dbc dbctx.Context, value bool) error
}

type Config struct {
	SchemaProd string
	SchemaTest string
	CacheTTL   time.Duration
}

// Router resolves the active schema from the persisted test-mode flag. The
// flag is cached in-process for CacheTTL; writes through this Router update
// the cache immediately.
type Router struct {
	log   *logger.Logger
	store StateStore
	prod  string
	test  string
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	cached   bool
	cachedAt time.Time
	hasCache bool
	// gen changes on every write and invalidation.
	gen uint64
}

func New(cfg Config, store StateStore, baseLog *logger.Logger) *Router {
	log := baseLog.With("service", "SchemaRouter")
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Router{
		log:   log,
		store: store,
		prod:  resolveSchema(log, "prod", cfg.SchemaProd, DefaultProdSchema),
		test:  resolveSchema(log, "test", cfg.SchemaTest, DefaultTestSchema),
		ttl:   ttl,
		now:   time.Now,
	}
}

// An empty value takes the default; an invalid override falls back to "pkm".
func resolveSchema(log *logger.Logger, role, value, def string) string {
	if value == "" {
		return def
	}
	if !identifierRe.MatchString(value) {
		err := &IdentifierError{Name: value, Role: role}
		log.Error("schema override rejected, using fallback", "role", role, "fallback", DefaultProdSchema, "error", err)
		return DefaultProdSchema
	}
	return value
}

// WithClock replaces the time source. Used by tests.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

func (r *Router) ProdSchema() string { return r.prod }
func (r *Router) TestSchema() string { return r.test }

// Schemas lists the configured schemas, prod first, without duplicates.
func (r *Router) Schemas() []string {
	if r.prod == r.test {
		return []string{r.prod}
	}
	return []string{r.prod, r.test}
}

// SchemaFor maps a test-mode value to its schema.
func (r *Router) SchemaFor(testMode bool) string {
	if testMode {
		return r.test
	}
	return r.prod
}

// GetState returns the test-mode flag, reading the store only when the cached
// value is missing or older than the TTL. A read that overlaps a write through
// this Router is not cached, so it cannot replace the newer value.
func (r *Router) GetState(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.hasCache && r.now().Sub(r.cachedAt) < r.ttl {
		v := r.cached
		r.mu.Unlock()
		return v, nil
	}
	gen := r.gen
	r.mu.Unlock()

	v, err := r.store.GetTestMode(dbctx.With(ctx))
	if err != nil {
		return false, fmt.Errorf("read test mode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		if r.hasCache {
			return r.cached, nil
		}
		return v, nil
	}
	r.setCached(v)
	return v, nil
}

// SetState writes next to the store, then to the cache.
func (r *Router) SetState(ctx context.Context, next bool) (bool, error) {
	if err := r.store.SetTestMode(dbctx.With(ctx), next); err != nil {
		return false, fmt.Errorf("write test mode: %w", err)
	}
	r.remember(next)
	r.log.Info("test mode updated", "is_test_mode", next, "active_schema", r.SchemaFor(next))
	return next, nil
}

// Toggle flips the persisted flag. The current value is read from the store,
// not the cache, so a flip made by another process is not undone.
func (r *Router) Toggle(ctx context.Context) (bool, error) {
	cur, err := r.store.GetTestMode(dbctx.With(ctx))
	if err != nil {
		return false, fmt.Errorf("read test mode: %w", err)
	}
	return r.SetState(ctx, !cur)
}

// ActiveSchema returns the schema selected by the current test-mode flag.
func (r *Router) ActiveSchema(ctx context.Context) (string, error) {
	v, err := r.GetState(ctx)
	if err != nil {
		return "", err
	}
	return r.SchemaFor(v), nil
}

// Invalidate drops the cached flag.
func (r *Router) Invalidate() {
	r.mu.Lock()
	r.hasCache = false
	r.gen++
	r.mu.Unlock()
}

func (r *Router) remember(v bool) {
	r.mu.Lock()
	r.gen++
	r.setCached(v)
	r.mu.Unlock()
}

// setCached requires r.mu.
func (r *Router) setCached(v bool) {
	r.cached = v
	r.cachedAt = r.now()
	r.hasCache = true
}
