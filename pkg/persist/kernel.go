// Package persist is the public kernel. It saves object graphs across the
// level tables of their inheritance stacks, loads them back through a weak
// identity cache, tracks ownership so that deletion cascades only to rows
// nothing else holds, and migrates stored tables when shapes change.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/config"
	"github.com/redbco/redb-persist/pkg/database"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/identity"
	"github.com/redbco/redb-persist/pkg/idgen"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/logger"
	"github.com/redbco/redb-persist/pkg/migrate"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/protection"
	"github.com/redbco/redb-persist/pkg/shape"
	"github.com/redbco/redb-persist/pkg/statement"
)

// DefaultPageSize is the number of objects Find loads per round trip.
const DefaultPageSize = 100

// Options configure a kernel.
type Options struct {
	// CreateSchema allows creating missing tables.
	CreateSchema bool
	// AlterSchema allows migrating existing tables.
	AlterSchema bool

	// Allocator selects how C__ID values are assigned. Native reads them
	// back from the engine, falling back to the sequence table on engines
	// without identity columns.
	Allocator idgen.Kind
	// Redis is required by the redis allocator.
	Redis redis.Cmdable

	PageSize      int
	SweepInterval time.Duration

	Logger   *logger.Logger
	LogLevel logger.Level
}

// DefaultOptions allows schema creation and alteration with native ids.
func DefaultOptions() Options {
	return Options{
		CreateSchema: true,
		AlterSchema:  true,
		Allocator:    idgen.Native,
		PageSize:     DefaultPageSize,
		LogLevel:     logger.LevelInfo,
	}
}

// OptionsFromConfig reads kernel options from configuration keys.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	kind, err := idgen.ParseKind(cfg.Get(config.KeyIDAllocator))
	if err != nil {
		return Options{}, err
	}
	return Options{
		CreateSchema:  cfg.GetBool(config.KeySchemaCreate, true),
		AlterSchema:   cfg.GetBool(config.KeySchemaAlter, true),
		Allocator:     kind,
		PageSize:      cfg.GetInt(config.KeyFindPageSize, DefaultPageSize),
		SweepInterval: cfg.GetDuration(config.KeySweepInterval, 0),
		LogLevel:      logger.ParseLevel(cfg.Get(config.KeyLogLevel)),
	}, nil
}

// Kernel owns the caches, the ownership tracker and the migrator of one
// database. It is safe for concurrent use; each call runs against the
// executor it is given.
type Kernel struct {
	id       uuid.UUID
	db       *sql.DB
	dialect  adapter.Dialect
	registry *shape.Registry
	opts     Options
	log      *logger.Logger

	types    *descriptor.Cache
	stacks   *inheritance.Cache
	gen      *statement.Generator
	cache    *identity.Cache[object.Object]
	catalog  *catalog.Catalog
	tracker  *protection.Tracker
	nav      *navigate.Navigator
	migrator *migrate.Migrator
	ids      idgen.Allocator

	schemaMu sync.Mutex
	verified sync.Map // type name -> struct{}

	sweepMu   sync.Mutex
	lastSweep time.Time

	closed  atomic.Bool
	closers []func() error
}

// Open creates a kernel over an open database. The system catalog is
// created or upgraded first.
func Open(ctx context.Context, db *sql.DB, d adapter.Dialect, registry *shape.Registry, opts Options) (*Kernel, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("persist")
		log.SetLevel(opts.LogLevel)
	}

	k := &Kernel{
		id:        uuid.New(),
		db:        db,
		dialect:   d,
		registry:  registry,
		opts:      opts,
		log:       log,
		cache:     identity.New[object.Object](),
		lastSweep: time.Now(),
	}

	k.catalog = catalog.New(d, log)
	if err := k.catalog.Bootstrap(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to bootstrap catalog: %w", err)
	}

	switch opts.Allocator {
	case idgen.Sequence:
		k.ids = idgen.NewSequenceAllocator(d)
	case idgen.Redis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("the redis id allocator needs a redis client")
		}
		k.ids = idgen.NewRedisAllocator(opts.Redis, d, idgen.DefaultKeyPrefix)
	case idgen.Native, "":
		if d.Features().IDMode == adapter.IDSequence {
			k.ids = idgen.NewSequenceAllocator(d)
		}
	default:
		return nil, fmt.Errorf("unknown id allocator %q", opts.Allocator)
	}

	k.types = descriptor.NewCache(registry, d)
	k.stacks = inheritance.NewCache(k.types)
	k.gen = statement.New(d, k.stacks, k.cache)
	k.tracker = protection.NewTracker(k.catalog, log)
	k.nav = navigate.New(d, k.stacks)
	k.migrator = migrate.New(d, k.catalog, registry, k.nav, k.ids == nil, log)

	log.With("kernel", k.id.String()).Info("Kernel opened on %s", d.ID())
	return k, nil
}

// OpenConfig opens the database named by database.url and a kernel over
// it. The kernel closes the database, and the redis client of the redis
// allocator, on Close.
func OpenConfig(ctx context.Context, cfg *config.Config, registry *shape.Registry) (*Kernel, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	closers := []func() error{db.Close}

	if opts.Allocator == idgen.Redis {
		r, err := database.RedisFromGlobalConfig(ctx, cfg)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts.Redis = r.Client()
		closers = append(closers, func() error { r.Close(); return nil })
	}

	k, err := Open(ctx, db.DB, db.Dialect, registry, opts)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	k.closers = closers
	return k, nil
}

// Close drops the identity cache and releases owned resources. Further
// calls fail with ErrClosed.
func (k *Kernel) Close() error {
	if !k.closed.CompareAndSwap(false, true) {
		return nil
	}
	k.cache.Clear()

	var first error
	for _, c := range slices.Backward(k.closers) {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	k.log.With("kernel", k.id.String()).Info("Kernel closed")
	return first
}

// ID returns the kernel instance id used in log fields.
func (k *Kernel) ID() uuid.UUID { return k.id }

// DB returns the database the kernel was opened on. Operations may run
// against it or against a transaction on it.
func (k *Kernel) DB() *sql.DB { return k.db }

// Dialect returns the kernel's dialect.
func (k *Kernel) Dialect() adapter.Dialect { return k.dialect }

// Registry returns the shape registry.
func (k *Kernel) Registry() *shape.Registry { return k.registry }

// Catalog returns the system catalog.
func (k *Kernel) Catalog() *catalog.Catalog { return k.catalog }

// CacheLen returns the number of identity cache entries.
func (k *Kernel) CacheLen() int { return k.cache.Len() }

// StoredID returns the concrete row id of a saved or loaded object.
func (k *Kernel) StoredID(o *object.Object) (int64, bool) { return k.cache.ID(o) }

// begin checks the kernel is open and sweeps the identity cache when the
// sweep interval has elapsed.
func (k *Kernel) begin() error {
	if k.closed.Load() {
		return ErrClosed
	}
	if k.opts.SweepInterval <= 0 {
		return nil
	}

	k.sweepMu.Lock()
	defer k.sweepMu.Unlock()
	if time.Since(k.lastSweep) < k.opts.SweepInterval {
		return nil
	}
	k.lastSweep = time.Now()
	if n := k.cache.Sweep(); n > 0 {
		k.log.With("kernel", k.id.String()).Debug("Swept %d collected cache entries", n)
	}
	return nil
}

// atomic runs fn in a transaction when ex can begin one, and directly on
// ex otherwise.
func (k *Kernel) atomic(ctx context.Context, ex adapter.Executor, fn func(adapter.Executor) error) error {
	b, ok := ex.(adapter.TxBeginner)
	if !ok {
		return fn(ex)
	}

	tx, err := b.BeginTx(ctx, nil)
	if err != nil {
		return adapter.WrapError(k.dialect.ID(), "begin", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			k.log.Warnf("Rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return adapter.WrapError(k.dialect.ID(), "commit", err)
	}
	return nil
}

// row returns the ownership catalog address of a concrete row.
func (k *Kernel) row(r navigate.Row) (catalog.Row, error) {
	t, err := k.types.Type(r.Type)
	if err != nil {
		return catalog.Row{}, err
	}
	return catalog.Row{Table: t.Table, ID: r.ID}, nil
}

// stored returns the concrete row of a cached object.
func (k *Kernel) stored(o *object.Object) (navigate.Row, bool) {
	id, ok := k.cache.ID(o)
	if !ok {
		return navigate.Row{}, false
	}
	return navigate.Row{Type: o.Type(), ID: id}, true
}

// Protect pins a stored object so that it survives the deletion of its
// owners.
func (k *Kernel) Protect(ctx context.Context, ex adapter.Executor, o *object.Object) error {
	if err := k.begin(); err != nil {
		return err
	}
	r, ok := k.stored(o)
	if !ok {
		return ErrNotStored
	}
	cr, err := k.row(r)
	if err != nil {
		return err
	}
	return k.tracker.ProtectExternal(ctx, ex, cr, r.Type)
}

// Unprotect removes the pin of a stored object and reports whether it had
// one. The object is not deleted.
func (k *Kernel) Unprotect(ctx context.Context, ex adapter.Executor, o *object.Object) (bool, error) {
	if err := k.begin(); err != nil {
		return false, err
	}
	r, ok := k.stored(o)
	if !ok {
		return false, ErrNotStored
	}
	cr, err := k.row(r)
	if err != nil {
		return false, err
	}
	return k.tracker.UnprotectExternal(ctx, ex, cr)
}

// IsProtected reports whether a stored object is pinned.
func (k *Kernel) IsProtected(ctx context.Context, ex adapter.Executor, o *object.Object) (bool, error) {
	if err := k.begin(); err != nil {
		return false, err
	}
	r, ok := k.stored(o)
	if !ok {
		return false, ErrNotStored
	}
	cr, err := k.row(r)
	if err != nil {
		return false, err
	}
	return k.tracker.IsProtectedExternal(ctx, ex, cr)
}

// Types lists the registered types that have a stored table, sorted.
func (k *Kernel) Types(ctx context.Context, ex adapter.Executor) ([]string, error) {
	if err := k.begin(); err != nil {
		return nil, err
	}
	tables, err := k.catalog.Tables(ctx, ex)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, t := range tables {
		switch t.Type {
		case shape.Root, object.ArrayType, migrate.MemberTypeName:
			continue
		}
		if !slices.Contains(out, t.Type) {
			out = append(out, t.Type)
		}
	}
	slices.Sort(out)
	return out, nil
}
