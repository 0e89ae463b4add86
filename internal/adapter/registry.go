package adapter

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"positionScope/internal/config"
	"positionScope/internal/errs"
)

// DefaultTimeout bounds every adapter operation unless configured otherwise.
const DefaultTimeout = 15 * time.Second

// Deps is what a constructor receives for one platform on one chain.
type Deps struct {
	Platform         string
	ChainID          uint64
	Deployment       config.PlatformDeployment
	Reader           ChainReader
	Logger           *zap.Logger
	Metrics          *Metrics
	Timeout          time.Duration
	Concurrency      int
	GasBufferPercent uint64
}

// Constructor builds an adapter.
type Constructor func(Deps) (Adapter, error)

// ReaderFactory returns the chain reader of a chain.
type ReaderFactory func(chainID uint64) (ChainReader, error)

// PlatformFailure records why one platform could not be constructed.
type PlatformFailure struct {
	Platform string
	Err      error
}

// Resolution is the outcome of ResolveAll: working adapters next to per-platform failures.
type Resolution struct {
	Adapters []Adapter
	Failures []PlatformFailure
}

type registryKey struct {
	platform string
	chainID  uint64
}

func (k registryKey) String() string {
	return k.platform + "@" + strconv.FormatUint(k.chainID, 10)
}

// Registry maps platform id x chain id to adapters, constructing them lazily.
type Registry struct {
	deployments config.Deployments
	readers     ReaderFactory
	logger      *zap.Logger
	metrics     *Metrics
	timeout     time.Duration
	concurrency int
	bufferPct   uint64

	mu           sync.Mutex
	constructors map[string]Constructor
	generations  map[string]uint64
	cache        map[registryKey]Adapter

	// inflight collapses concurrent constructions of one key; construction runs outside mu.
	inflight singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

func WithConcurrency(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithGasBufferPercent(pct uint64) Option {
	return func(r *Registry) {
		r.bufferPct = pct
	}
}

// NewRegistry creates a registry over static deployments.
func NewRegistry(deployments config.Deployments, readers ReaderFactory, opts ...Option) *Registry {
	r := &Registry{
		deployments:  deployments,
		readers:      readers,
		logger:       zap.NewNop(),
		timeout:      DefaultTimeout,
		concurrency:  8,
		constructors: make(map[string]Constructor),
		generations:  make(map[string]uint64),
		cache:        make(map[registryKey]Adapter),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	return r
}

// Register binds a constructor to a platform id. Registering twice replaces the
// constructor and drops cached adapters of that platform.
func (r *Registry) Register(platform string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[platform] = ctor
	r.generations[platform]++
	for key := range r.cache {
		if key.platform == platform {
			delete(r.cache, key)
		}
	}
}

// Metrics returns the registry's metrics.
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}

// Platforms returns the enabled platforms of chainID that have a registered constructor.
func (r *Registry) Platforms(chainID uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, platform := range r.deployments.EnabledPlatforms(chainID) {
		if _, ok := r.constructors[platform]; ok {
			out = append(out, platform)
		}
	}
	return out
}

// Resolve returns the adapter of platform on chainID, constructing and caching it on first use.
// Construction runs outside the registry lock, so a slow platform never blocks the others.
func (r *Registry) Resolve(platform string, chainID uint64) (Adapter, error) {
	key := registryKey{platform: platform, chainID: chainID}

	r.mu.Lock()
	if a, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return a, nil
	}
	ctor, ok := r.constructors[platform]
	generation := r.generations[platform]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("resolve %s on chain %d: %w: no adapter for platform", platform, chainID, errs.ErrNotRegistered)
	}
	deployment, ok := r.deployments.Platform(platform, chainID)
	if !ok {
		return nil, fmt.Errorf("resolve %s on chain %d: %w: platform not deployed on chain", platform, chainID, errs.ErrNotRegistered)
	}
	if !deployment.Enabled {
		return nil, fmt.Errorf("resolve %s on chain %d: %w: platform disabled", platform, chainID, errs.ErrNotRegistered)
	}

	v, err, _ := r.inflight.Do(key.String(), func() (interface{}, error) {
		r.mu.Lock()
		if a, ok := r.cache[key]; ok {
			r.mu.Unlock()
			return a, nil
		}
		r.mu.Unlock()

		a, err := r.construct(ctor, platform, chainID, deployment)
		chainLabel := strconv.FormatUint(chainID, 10)
		if err != nil {
			r.metrics.incConstructError(platform, chainLabel)
			r.logger.Warn("adapter construction failed", zap.String("platform", platform), zap.Uint64("chain_id", chainID), zap.Error(err))
			return nil, err
		}
		r.metrics.incConstructed(platform, chainLabel)

		r.mu.Lock()
		// A Register during construction replaced the constructor; do not cache the stale adapter.
		if r.generations[platform] == generation {
			r.cache[key] = a
		}
		r.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s on chain %d: %w", platform, chainID, err)
	}
	return v.(Adapter), nil
}

// construct runs ctor, converting a panic into an error so one platform cannot take down the others.
func (r *Registry) construct(ctor Constructor, platform string, chainID uint64, deployment config.PlatformDeployment) (a Adapter, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a, err = nil, fmt.Errorf("constructor panic: %v", rec)
		}
	}()

	var reader ChainReader
	if r.readers != nil {
		if reader, err = r.readers(chainID); err != nil {
			return nil, fmt.Errorf("chain reader: %w", err)
		}
	}
	a, err = ctor(Deps{
		Platform:         platform,
		ChainID:          chainID,
		Deployment:       deployment,
		Reader:           reader,
		Logger:           r.logger.With(zap.String("platform", platform), zap.Uint64("chain_id", chainID)),
		Metrics:          r.metrics,
		Timeout:          r.timeout,
		Concurrency:      r.concurrency,
		GasBufferPercent: r.bufferPct,
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("constructor returned nil adapter")
	}
	return a, nil
}

// ResolveAll constructs every enabled platform of chainID. A failing platform is recorded
// in Failures and never prevents the others from resolving.
func (r *Registry) ResolveAll(chainID uint64) Resolution {
	var res Resolution
	platforms := r.deployments.EnabledPlatforms(chainID)
	sort.Strings(platforms)
	for _, platform := range platforms {
		a, err := r.Resolve(platform, chainID)
		if err != nil {
			res.Failures = append(res.Failures, PlatformFailure{Platform: platform, Err: err})
			continue
		}
		res.Adapters = append(res.Adapters, a)
	}
	return res
}
