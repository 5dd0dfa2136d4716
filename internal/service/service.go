package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"backoffice/backend/internal/cache"
	"backoffice/backend/internal/domain"
	"backoffice/backend/internal/inventory"
	"backoffice/backend/internal/lock"
	"backoffice/backend/internal/logging"
	"backoffice/backend/internal/store"
	"backoffice/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const defaultMaxAttempts = 3

var ErrForbidden = errors.New("admin role required")

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrForbidden
	}
	return nil
}

type Options struct {
	Locker      lock.Locker
	Cache       cache.BillingCache
	CacheTTL    time.Duration
	MaxAttempts int
	Clock       func() time.Time
}

type Service struct {
	repo        store.Repository
	ledger      *inventory.Ledger
	locker      lock.Locker
	cache       cache.BillingCache
	cacheTTL    time.Duration
	maxAttempts int
	clock       func() time.Time
	log         zerolog.Logger
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopBillingCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Service{
		repo:        repo,
		ledger:      inventory.NewLedger(),
		locker:      opts.Locker,
		cache:       opts.Cache,
		cacheTTL:    opts.CacheTTL,
		maxAttempts: opts.MaxAttempts,
		clock:       opts.Clock,
		log:         logging.WithComponent("service"),
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// withRetry runs fn in a transaction while holding lockKeys. ErrConflict
// restarts the whole attempt from fresh reads, up to maxAttempts times.
func (s *Service) withRetry(ctx context.Context, op string, lockKeys []string, fn store.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.attempt(ctx, lockKeys, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		lastErr = err
		s.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("conflict")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, s.maxAttempts, lastErr)
}

func (s *Service) attempt(ctx context.Context, lockKeys []string, fn store.TxFunc) error {
	release, err := s.locker.Acquire(ctx, lockKeys...)
	if err != nil {
		return err
	}
	defer release()
	return s.repo.RunInTx(ctx, fn)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	day := s.now()
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidRequest)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if limit < 1 {
		limit = 200
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: defaultString(actor.Username, "system"),
		ActorRole:     defaultString(actor.Role, "system"),
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("failed to write audit log")
	}
}

func actorName(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.Username
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
