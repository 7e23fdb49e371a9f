package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/platform/cache"
)

// Store is the subset of the entity client the service reads from.
type Store interface {
	List(ctx context.Context, collection string) ([]entitystore.Record, error)
	Filter(ctx context.Context, collection string, match entitystore.Match) ([]entitystore.Record, error)
	Get(ctx context.Context, collection, id string) (entitystore.Record, error)
}

// Instrumentation receives statement build signals. observability.Metrics satisfies it.
type Instrumentation interface {
	FetchFailed(collection string)
	StatementBuilt(kind string, elapsed time.Duration)
}

// Config tunes optional behaviour of the service.
type Config struct {
	Inception    time.Time
	FetchTimeout time.Duration
	Metrics      Instrumentation
}

// Service assembles financial statements from entity store records.
type Service struct {
	store        Store
	cache        *cache.Cache
	logger       *slog.Logger
	resolver     Resolver
	metrics      Instrumentation
	fetchTimeout time.Duration
	validate     *validator.Validate
	now          func() time.Time
}

// NewService wires the store with the title cache. cache may be nil.
func NewService(store Store, titles *cache.Cache, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		cache:        titles,
		logger:       logger,
		resolver:     NewResolver(cfg.Inception),
		metrics:      cfg.Metrics,
		fetchTimeout: cfg.FetchTimeout,
		validate:     validator.New(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithNow overrides the clock used to resolve periods.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Resolver exposes the period resolver used by the service.
func (s *Service) Resolver() Resolver {
	return s.resolver
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.now()
}

// source describes one collection feeding an entity's line items.
type source struct {
	collection string
	owner      string
	normalize  func([]entitystore.Record, Lookups) []LineItem
}

func sourcesFor(kind EntityKind) []source {
	courseSales := source{entitystore.CollectionRevenueTransaction, "finfluencer_id", NormalizeCourseSales}
	events := source{entitystore.CollectionEventCommissionTracking, "organizer_id", NormalizeEventCommissions}
	switch kind {
	case KindFinfluencer:
		return []source{courseSales, events}
	case KindOrganizer:
		return []source{events}
	case KindAdvisor:
		return []source{{entitystore.CollectionCommissionTracking, "advisor_id", func(recs []entitystore.Record, _ Lookups) []LineItem {
			return NormalizeSubscriptions(recs)
		}}}
	case KindVendor:
		return []source{{entitystore.CollectionCampaignBilling, "vendor_id", func(recs []entitystore.Record, _ Lookups) []LineItem {
			return NormalizeAdBilling(recs)
		}}}
	default:
		return nil
	}
}

// Generate builds the statement for the requested entity and period. Collection
// fetch failures degrade to empty inputs; only invalid requests and unexpected
// failures return an error.
func (s *Service) Generate(ctx context.Context, req Request) (stmt *Statement, err error) {
	if s == nil || s.store == nil {
		return nil, ErrStatementUnavailable
	}
	req.EntityKind = EntityKind(strings.ToLower(strings.TrimSpace(string(req.EntityKind))))
	req.EntityID = strings.TrimSpace(req.EntityID)
	if verr := s.validate.Struct(req); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, verr)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("statement build panicked", slog.String("entity_kind", string(req.EntityKind)), slog.Any("panic", r))
			stmt, err = nil, ErrStatementUnavailable
		}
	}()

	start := time.Now()
	now := s.now()
	period := s.resolver.Resolve(req.PeriodToken, now)
	sources := sourcesFor(req.EntityKind)

	var (
		batches = make([][]entitystore.Record, len(sources))
		payouts []entitystore.Record
		lookups Lookups
		name    = UnknownLabel
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		i, src := i, src
		g.Go(guard(func() error {
			batches[i] = s.fetch(gctx, src.collection, entitystore.Match{src.owner: req.EntityID})
			return nil
		}))
	}
	g.Go(guard(func() error {
		payouts = s.fetch(gctx, entitystore.CollectionPayoutRequest, entitystore.Match{FieldPayoutEntityID: req.EntityID})
		return nil
	}))
	g.Go(guard(func() error {
		lookups = s.lookups(gctx, req.EntityKind)
		return nil
	}))
	g.Go(guard(func() error {
		name = s.entityName(gctx, req.EntityKind, req.EntityID)
		return nil
	}))
	if werr := g.Wait(); werr != nil {
		s.logger.Error("statement fan-out failed", slog.String("entity_kind", string(req.EntityKind)), slog.Any("error", werr))
		return nil, ErrStatementUnavailable
	}

	earnings := make([]LineItem, 0)
	for i, src := range sources {
		earnings = append(earnings, src.normalize(RecordsInRange(batches[i], period), lookups)...)
	}
	SortNewestFirst(earnings)

	entityPayouts := make([]Payout, 0, len(payouts))
	for _, rec := range payouts {
		p := PayoutFromRecord(rec)
		if p.EntityKind != "" && p.EntityKind != req.EntityKind {
			continue
		}
		entityPayouts = append(entityPayouts, p)
	}
	sort.SliceStable(entityPayouts, func(i, j int) bool {
		return entityPayouts[i].CreatedDate.After(entityPayouts[j].CreatedDate)
	})

	stmt = &Statement{
		Entity:      Entity{Kind: req.EntityKind, ID: req.EntityID, Name: name},
		Period:      period,
		Summary:     Summarize(earnings, entityPayouts),
		Earnings:    earnings,
		Payouts:     entityPayouts,
		Breakdown:   Breakdown(earnings),
		GeneratedAt: now,
	}
	if s.metrics != nil {
		s.metrics.StatementBuilt(string(req.EntityKind), time.Since(start))
	}
	return stmt, nil
}

// guard turns a panic inside a fan-out task into an error for Wait.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("statement: task panicked: %v", r)
			}
		}()
		return fn()
	}
}

func (s *Service) fetch(ctx context.Context, collection string, match entitystore.Match) []entitystore.Record {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	records, err := s.store.Filter(ctx, collection, match)
	if err != nil {
		s.logger.Warn("statement source unavailable",
			slog.String("collection", collection),
			slog.Any("error", err),
		)
		if s.metrics != nil {
			s.metrics.FetchFailed(collection)
		}
		return nil
	}
	return records
}

func (s *Service) lookups(ctx context.Context, kind EntityKind) Lookups {
	var out Lookups
	switch kind {
	case KindFinfluencer:
		out.Courses = s.titles(ctx, entitystore.CollectionCourse)
		out.Events = s.titles(ctx, entitystore.CollectionEvent)
	case KindOrganizer:
		out.Events = s.titles(ctx, entitystore.CollectionEvent)
	}
	return out
}

// titles returns id -> title for a collection. Failures yield an empty map so
// descriptions fall back to Unknown.
func (s *Service) titles(ctx context.Context, collection string) map[string]string {
	loader := func(ctx context.Context) (any, error) {
		records, err := s.store.List(ctx, collection)
		if err != nil {
			return nil, err
		}
		titles := make(map[string]string, len(records))
		for _, rec := range records {
			if id := rec.ID(); id != "" {
				titles[id] = rec.String(fieldTitle)
			}
		}
		return titles, nil
	}
	var titles map[string]string
	if err := s.cache.Fetch(ctx, &titles, loader, "titles", collection); err != nil {
		s.logger.Warn("title lookup unavailable", slog.String("collection", collection), slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.FetchFailed(collection)
		}
		return map[string]string{}
	}
	return titles
}

func (s *Service) entityName(ctx context.Context, kind EntityKind, id string) string {
	rec, err := s.store.Get(ctx, entitystore.CollectionUser, id)
	if err != nil {
		if !errors.Is(err, entitystore.ErrNotFound) {
			s.logger.Warn("entity lookup failed", slog.String("entity_id", id), slog.Any("error", err))
		}
		return UnknownLabel
	}
	fields := []string{"full_name", "display_name"}
	if kind == KindVendor {
		fields = append([]string{"business_name"}, fields...)
	}
	for _, field := range fields {
		if v := strings.TrimSpace(rec.String(field)); v != "" {
			return v
		}
	}
	return UnknownLabel
}
