package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/platform/cache"
)

// FeatureConfig record fields.
const (
	fieldFeatureKey = "feature_key"
	fieldEnabled    = "enabled"
)

// ErrUnknownFeature indicates the key is not in the registry.
var ErrUnknownFeature = errors.New("features: unknown feature")

// Feature is a definition merged with its runtime override.
type Feature struct {
	Definition
	Enabled    bool `json:"enabled"`
	Overridden bool `json:"overridden"`
}

// Store is the entity client subset used for overrides.
type Store interface {
	List(ctx context.Context, collection string) ([]entitystore.Record, error)
	Filter(ctx context.Context, collection string, match entitystore.Match) ([]entitystore.Record, error)
	Create(ctx context.Context, collection string, data entitystore.Record) (entitystore.Record, error)
	Update(ctx context.Context, collection, id string, patch entitystore.Record) (entitystore.Record, error)
}

// Service merges FeatureConfig overrides over registry defaults.
type Service struct {
	registry *Registry
	store    Store
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewService wires the registry with its override store. cache may be nil.
func NewService(registry *Registry, store Store, overrides *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: registry, store: store, cache: overrides, logger: logger}
}

// Registry returns the injected registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// List returns the features offered to role with overrides applied. When overrides
// cannot be loaded the registry defaults are returned.
func (s *Service) List(ctx context.Context, role string) ([]Feature, error) {
	overrides, err := s.overrides(ctx)
	if err != nil {
		s.logger.Warn("feature overrides unavailable", slog.Any("error", err))
		overrides = map[string]bool{}
	}
	return merge(s.registry.ForRole(strings.TrimSpace(role)), overrides), nil
}

// SetEnabled persists an override, invalidates cached overrides and returns the
// feature as re-read from the store.
func (s *Service) SetEnabled(ctx context.Context, key string, enabled bool) (Feature, error) {
	def, ok := s.registry.Lookup(key)
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s", ErrUnknownFeature, key)
	}
	existing, err := s.store.Filter(ctx, entitystore.CollectionFeatureConfig, entitystore.Match{fieldFeatureKey: key})
	if err != nil {
		return Feature{}, fmt.Errorf("features: load override: %w", err)
	}
	if len(existing) > 0 {
		_, err = s.store.Update(ctx, entitystore.CollectionFeatureConfig, existing[0].ID(), entitystore.Record{fieldEnabled: enabled})
	} else {
		_, err = s.store.Create(ctx, entitystore.CollectionFeatureConfig, entitystore.Record{fieldFeatureKey: key, fieldEnabled: enabled})
	}
	if err != nil {
		return Feature{}, fmt.Errorf("features: save override: %w", err)
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("feature cache bump failed", slog.String("feature_key", key), slog.Any("error", err))
	}
	s.logger.Info("feature toggled", slog.String("feature_key", key), slog.Bool("enabled", enabled))

	overrides, err := s.loadOverrides(ctx)
	if err != nil {
		return Feature{}, fmt.Errorf("features: reload overrides: %w", err)
	}
	return merge([]Definition{def}, overrides)[0], nil
}

func (s *Service) overrides(ctx context.Context) (map[string]bool, error) {
	var out map[string]bool
	if err := s.cache.Fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return s.loadOverrides(ctx)
	}, "overrides"); err != nil {
		return nil, err
	}
	return out, nil
}

// loadOverrides reads FeatureConfig records. The newest record wins per key.
func (s *Service) loadOverrides(ctx context.Context) (map[string]bool, error) {
	records, err := s.store.List(ctx, entitystore.CollectionFeatureConfig)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(records))
	for _, rec := range records {
		key := rec.String(fieldFeatureKey)
		if key == "" {
			continue
		}
		if _, seen := out[key]; seen {
			continue
		}
		if enabled, ok := rec.Bool(fieldEnabled); ok {
			out[key] = enabled
		}
	}
	return out, nil
}

func merge(defs []Definition, overrides map[string]bool) []Feature {
	out := make([]Feature, 0, len(defs))
	for _, def := range defs {
		f := Feature{Definition: def, Enabled: def.DefaultEnabled}
		if enabled, ok := overrides[def.Key]; ok {
			f.Enabled = enabled
			f.Overridden = true
		}
		out = append(out, f)
	}
	return out
}
