package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/metrics"
	"tiendapos/backend/internal/report"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

type managerOverrideKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// WithManagerOverride marks the request as approved by a manager PIN.
func WithManagerOverride(ctx context.Context) context.Context {
	return context.WithValue(ctx, managerOverrideKey{}, true)
}

func hasManagerOverride(ctx context.Context) bool {
	approved, _ := ctx.Value(managerOverrideKey{}).(bool)
	return approved
}

type Service struct {
	repo    store.Repository
	reports *report.Engine
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces the wall clock used for sale dates and report windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo store.Repository, reports *report.Engine, opts ...Option) *Service {
	if reports == nil {
		reports = report.NewEngine(nil, 0)
	}
	s := &Service{
		repo:    repo,
		reports: reports,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// attributedUser picks the operator a sale or turn is recorded under. It is
// the caller unless an admin names someone else.
func attributedUser(ctx context.Context, requested string) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return requested, nil
	}
	if requested == "" || requested == actor.UserID {
		return actor.UserID, nil
	}
	if actor.Role != domain.RoleAdmin {
		return "", ErrForbidden
	}
	return requested, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, store.ErrInvalidTransaction
		}
		from = parsed.UTC()
	}

	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

// logAudit runs after the unit of work commits. A failed audit write never
// fails the operation.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New(),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Warn().Str("component", "audit").Err(err).
			Str("action", action).Str("entity", entityType+"/"+entityID).
			Msg("failed to write audit log")
	}
}
