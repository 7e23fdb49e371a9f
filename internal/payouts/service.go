// Package payouts manages withdrawal requests against an entity's statement balance.
package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/finverse/finverse/internal/entitystore"
	"github.com/finverse/finverse/internal/statement"
)

var (
	// ErrInvalidInput indicates a malformed payout request or transition.
	ErrInvalidInput = errors.New("payouts: invalid input")
	// ErrInsufficientBalance indicates the amount exceeds the withdrawable balance.
	ErrInsufficientBalance = errors.New("payouts: amount exceeds available balance")
	// ErrInvalidTransition indicates the action is not allowed from the current status.
	ErrInvalidTransition = errors.New("payouts: invalid status transition")
	// ErrNotFound indicates the payout request does not exist.
	ErrNotFound = errors.New("payouts: request not found")
)

// Action is an operator decision on a payout request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionProcess Action = "process"
	ActionReject  Action = "reject"
)

// transitions lists the allowed status changes; processed and rejected are terminal.
var transitions = map[statement.PayoutStatus]map[Action]statement.PayoutStatus{
	statement.PayoutPending: {
		ActionApprove: statement.PayoutApproved,
		ActionReject:  statement.PayoutRejected,
	},
	statement.PayoutApproved: {
		ActionProcess: statement.PayoutProcessed,
		ActionReject:  statement.PayoutRejected,
	},
}

// Next returns the status reached by applying action to current.
func Next(current statement.PayoutStatus, action Action) (statement.PayoutStatus, error) {
	next, ok := transitions[current][action]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current)
	}
	return next, nil
}

// Store is the entity client subset used by the service.
type Store interface {
	Filter(ctx context.Context, collection string, match entitystore.Match) ([]entitystore.Record, error)
	Get(ctx context.Context, collection, id string) (entitystore.Record, error)
	Create(ctx context.Context, collection string, data entitystore.Record) (entitystore.Record, error)
	Update(ctx context.Context, collection, id string, patch entitystore.Record) (entitystore.Record, error)
}

// Balances builds the statement used to check the withdrawable balance.
type Balances interface {
	Generate(ctx context.Context, req statement.Request) (*statement.Statement, error)
}

// StatusEvent describes a completed status change.
type StatusEvent struct {
	PayoutID   string                 `json:"payout_id"`
	EntityKind statement.EntityKind   `json:"entity_kind"`
	EntityID   string                 `json:"entity_id"`
	From       statement.PayoutStatus `json:"from"`
	To         statement.PayoutStatus `json:"to"`
	Amount     decimal.Decimal        `json:"amount"`
	Reference  string                 `json:"reference,omitempty"`
}

// Notifier publishes status changes. jobs.Client satisfies it.
type Notifier interface {
	PayoutStatusChanged(ctx context.Context, event StatusEvent) error
}

// RequestInput is a new withdrawal request.
type RequestInput struct {
	EntityKind string          `json:"entity_kind" validate:"required,oneof=advisor finfluencer organizer"`
	EntityID   string          `json:"entity_id" validate:"required,max=128"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"payout_method" validate:"required,oneof=bank_transfer upi paypal"`
	Note       string          `json:"note" validate:"max=500"`
}

// TransitionInput is an operator action on an existing request.
type TransitionInput struct {
	Action    Action `json:"-" validate:"required,oneof=approve process reject"`
	Reference string `json:"transaction_reference" validate:"max=128"`
	Note      string `json:"note" validate:"max=500"`
}

// Service coordinates payout requests.
type Service struct {
	store    Store
	balances Balances
	notifier Notifier
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the payout service. notifier may be nil.
func NewService(store Store, balances Balances, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		balances: balances,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithNow overrides the clock used to stamp processed dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Request validates and records a new pending payout request.
func (s *Service) Request(ctx context.Context, in RequestInput) (statement.Payout, error) {
	in.EntityKind = strings.ToLower(strings.TrimSpace(in.EntityKind))
	in.EntityID = strings.TrimSpace(in.EntityID)
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if err := s.validate.Struct(in); err != nil {
		return statement.Payout{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !in.Amount.IsPositive() {
		return statement.Payout{}, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	}

	stmt, err := s.balances.Generate(ctx, statement.Request{
		EntityKind:  statement.EntityKind(in.EntityKind),
		EntityID:    in.EntityID,
		PeriodToken: statement.TokenAllTime,
	})
	if err != nil {
		return statement.Payout{}, fmt.Errorf("payouts: load balance: %w", err)
	}
	if available := stmt.Summary.Withdrawable(); in.Amount.GreaterThan(available) {
		return statement.Payout{}, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, in.Amount.StringFixed(2), available.StringFixed(2))
	}

	rec, err := s.store.Create(ctx, entitystore.CollectionPayoutRequest, entitystore.Record{
		statement.FieldPayoutEntityID: in.EntityID,
		statement.FieldPayoutKind:     in.EntityKind,
		statement.FieldPayoutAmount:   json.Number(in.Amount.String()),
		statement.FieldPayoutStatus:   string(statement.PayoutPending),
		statement.FieldPayoutMethod:   in.Method,
		statement.FieldPayoutNote:     in.Note,
	})
	if err != nil {
		return statement.Payout{}, fmt.Errorf("payouts: create: %w", err)
	}
	payout := statement.PayoutFromRecord(rec)
	s.logger.Info("payout requested",
		slog.String("payout_id", payout.ID),
		slog.String("entity_kind", in.EntityKind),
		slog.String("entity_id", in.EntityID),
		slog.String("amount", in.Amount.StringFixed(2)),
	)
	return payout, nil
}

// Transition applies an operator action and returns the stored result.
func (s *Service) Transition(ctx context.Context, id string, in TransitionInput) (statement.Payout, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if err := s.validate.Struct(in); err != nil {
		return statement.Payout{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	current, err := s.get(ctx, id)
	if err != nil {
		return statement.Payout{}, err
	}
	next, err := Next(current.Status, in.Action)
	if err != nil {
		return statement.Payout{}, err
	}

	patch := entitystore.Record{statement.FieldPayoutStatus: string(next)}
	if next == statement.PayoutProcessed {
		if in.Reference == "" {
			return statement.Payout{}, fmt.Errorf("%w: transaction reference required", ErrInvalidInput)
		}
		patch[statement.FieldPayoutReference] = in.Reference
		patch[statement.FieldPayoutProcessed] = s.now().Format(time.RFC3339)
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		patch[statement.FieldPayoutNote] = note
	}
	if _, err := s.store.Update(ctx, entitystore.CollectionPayoutRequest, id, patch); err != nil {
		return statement.Payout{}, mapStoreError(err)
	}

	updated, err := s.get(ctx, id)
	if err != nil {
		return statement.Payout{}, err
	}
	s.notify(ctx, StatusEvent{
		PayoutID:   updated.ID,
		EntityKind: updated.EntityKind,
		EntityID:   updated.EntityID,
		From:       current.Status,
		To:         updated.Status,
		Amount:     updated.RequestedAmount,
		Reference:  updated.TransactionReference,
	})
	return updated, nil
}

// List returns the entity's payout requests, newest first.
func (s *Service) List(ctx context.Context, kind statement.EntityKind, entityID string) ([]statement.Payout, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity id required", ErrInvalidInput)
	}
	records, err := s.store.Filter(ctx, entitystore.CollectionPayoutRequest, entitystore.Match{statement.FieldPayoutEntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("payouts: list: %w", err)
	}
	out := make([]statement.Payout, 0, len(records))
	for _, rec := range records {
		p := statement.PayoutFromRecord(rec)
		if kind != "" && p.EntityKind != "" && p.EntityKind != kind {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedDate.After(out[j].CreatedDate)
	})
	return out, nil
}

func (s *Service) get(ctx context.Context, id string) (statement.Payout, error) {
	rec, err := s.store.Get(ctx, entitystore.CollectionPayoutRequest, strings.TrimSpace(id))
	if err != nil {
		return statement.Payout{}, mapStoreError(err)
	}
	return statement.PayoutFromRecord(rec), nil
}

func (s *Service) notify(ctx context.Context, event StatusEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PayoutStatusChanged(ctx, event); err != nil {
		s.logger.Warn("payout notification failed",
			slog.String("payout_id", event.PayoutID),
			slog.Any("error", err),
		)
	}
}

func mapStoreError(err error) error {
	if errors.Is(err, entitystore.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("payouts: store: %w", err)
}
