package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/cache"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

const DefaultOptionPageSize = 100

type OptionSource string

const (
	OptionSourceRemote   OptionSource = "remote"
	OptionSourceFallback OptionSource = "fallback"
)

// OptionProvider is the selectable value list of one dropdown field.
type OptionProvider interface {
	Options() []string
	Lookup(name string) (onboarding.Option, bool)
	Source() OptionSource
}

type remoteOptionProvider struct {
	items []onboarding.Option
}

func NewRemoteOptionProvider(items []onboarding.Option) OptionProvider {
	return remoteOptionProvider{items: append([]onboarding.Option(nil), items...)}
}

func (p remoteOptionProvider) Options() []string {
	out := make([]string, 0, len(p.items))
	for _, item := range p.items {
		out = append(out, item.Name)
	}
	return out
}

func (p remoteOptionProvider) Lookup(name string) (onboarding.Option, bool) {
	name = strings.TrimSpace(name)
	for _, item := range p.items {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return onboarding.Option{}, false
}

func (remoteOptionProvider) Source() OptionSource {
	return OptionSourceRemote
}

// staticOptionProvider has names only, so Lookup never resolves an id.
type staticOptionProvider struct {
	names []string
}

func NewStaticOptionProvider(names []string) OptionProvider {
	return staticOptionProvider{names: append([]string(nil), names...)}
}

func (p staticOptionProvider) Options() []string {
	return append([]string(nil), p.names...)
}

func (staticOptionProvider) Lookup(string) (onboarding.Option, bool) {
	return onboarding.Option{}, false
}

func (staticOptionProvider) Source() OptionSource {
	return OptionSourceFallback
}

// SelectOptionProvider prefers the remote list whenever it has entries.
func SelectOptionProvider(remote []onboarding.Option, fallback []string) OptionProvider {
	if len(remote) > 0 {
		return NewRemoteOptionProvider(remote)
	}
	return NewStaticOptionProvider(fallback)
}

// OptionSets maps dropdown fields to their providers.
type OptionSets map[onboarding.Field]OptionProvider

// For returns the provider for field, falling back to the registry list.
func (s OptionSets) For(field onboarding.Field) OptionProvider {
	if p, ok := s[field]; ok && p != nil {
		return p
	}
	spec, _ := onboarding.Registry(field)
	return NewStaticOptionProvider(spec.Fallback)
}

// FallbackOptionSets is used when no reference list has been loaded.
func FallbackOptionSets() OptionSets {
	out := make(OptionSets, len(onboarding.DropdownFields()))
	for _, field := range onboarding.DropdownFields() {
		spec, _ := onboarding.Registry(field)
		out[field] = NewStaticOptionProvider(spec.Fallback)
	}
	return out
}

// ReferenceFetcher reads one page of a remote reference list.
type ReferenceFetcher interface {
	ListReference(ctx context.Context, ref onboarding.Reference, limit, offset int) ([]onboarding.Option, error)
}

type OptionLoaderConfig struct {
	PageSize int
	CacheTTL time.Duration
	Timeout  time.Duration
}

type OptionLoader struct {
	fetcher ReferenceFetcher
	cache   *cache.Store[[]onboarding.Option]
	cfg     OptionLoaderConfig
	metrics Metrics
	logger  *logging.Logger
}

var errEmptyReference = errors.New("reference list is empty")

func NewOptionLoader(
	fetcher ReferenceFetcher,
	store *cache.Store[[]onboarding.Option],
	cfg OptionLoaderConfig,
	metrics Metrics,
	logger *logging.Logger,
) *OptionLoader {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultOptionPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if store == nil {
		store = cache.NewStore[[]onboarding.Option](cfg.CacheTTL, cache.WithLogger[[]onboarding.Option](logger))
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &OptionLoader{
		fetcher: fetcher,
		cache:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

type referenceResult struct {
	ref   onboarding.Reference
	items []onboarding.Option
}

// Load fetches every reference list once, concurrently and without retry.
// A failed or empty list degrades that field to its fallback names.
func (l *OptionLoader) Load(ctx context.Context) OptionSets {
	ctx, span := startUsecaseSpan(ctx, "usecase.OptionLoader.Load")
	defer span.End()

	p := pool.NewWithResults[referenceResult]()
	for _, ref := range onboarding.References {
		p.Go(func() referenceResult {
			items, err := l.loadReference(ctx, ref)
			if err != nil {
				l.logger.WarnContext(ctx, "reference list unavailable, using fallback", "reference", ref, "error", err)
				return referenceResult{ref: ref}
			}
			return referenceResult{ref: ref, items: items}
		})
	}

	byRef := make(map[onboarding.Reference][]onboarding.Option, len(onboarding.References))
	for _, res := range p.Wait() {
		byRef[res.ref] = res.items
	}

	out := make(OptionSets, len(onboarding.DropdownFields()))
	for _, field := range onboarding.DropdownFields() {
		spec, _ := onboarding.Registry(field)
		provider := SelectOptionProvider(byRef[spec.Reference], spec.Fallback)
		out[field] = provider
		l.metrics.OptionSource(field, provider.Source())
	}
	return out
}

func (l *OptionLoader) loadReference(ctx context.Context, ref onboarding.Reference) ([]onboarding.Option, error) {
	if l.fetcher == nil {
		return nil, fmt.Errorf("%w: reference fetcher is not configured", ErrDependencyUnavailable)
	}

	key := fmt.Sprintf("reference:%s:%d", ref, l.cfg.PageSize)
	return l.cache.GetOrLoad(ctx, key, func(ctx context.Context) ([]onboarding.Option, error) {
		if l.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
			defer cancel()
		}

		items, err := l.fetcher.ListReference(ctx, ref, l.cfg.PageSize, 0)
		if err != nil {
			return nil, err
		}
		items = cleanOptions(items)
		if len(items) == 0 {
			return nil, errEmptyReference
		}
		return items, nil
	})
}

func cleanOptions(items []onboarding.Option) []onboarding.Option {
	out := make([]onboarding.Option, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, onboarding.Option{ID: item.ID, Name: name})
	}
	return out
}
