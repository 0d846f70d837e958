package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/feed"
	"invoicedesk/backend/internal/numbering"
	"invoicedesk/backend/internal/pdf"
	"invoicedesk/backend/internal/store"
	"invoicedesk/backend/internal/xid"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(domain.Identity)
	return identity, ok
}

func requireUID(ctx context.Context) (string, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return "", ErrUnauthenticated
	}
	return identity.UID, nil
}

type Service struct {
	repo            store.Repository
	numbers         *numbering.Allocator
	renderer        pdf.Renderer
	changes         feed.Broker
	now             func() time.Time
	newLineID       func() string
	defaultCurrency string
	log             zerolog.Logger
}

type Option func(*Service)

func WithBroker(broker feed.Broker) Option {
	return func(s *Service) {
		if broker != nil {
			s.changes = broker
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithDefaultCurrency(currency string) Option {
	return func(s *Service) {
		if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
			s.defaultCurrency = currency
		}
	}
}

func WithLineIDs(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newLineID = newID
		}
	}
}

func New(repo store.Repository, numbers *numbering.Allocator, renderer pdf.Renderer, opts ...Option) *Service {
	s := &Service{
		repo:            repo,
		numbers:         numbers,
		renderer:        renderer,
		changes:         feed.NoopBroker{},
		now:             func() time.Time { return time.Now().UTC() },
		newLineID:       xid.NewLineItemID,
		defaultCurrency: "EUR",
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() string {
	return s.now().Format("2006-01-02")
}

// publish is best effort; live views catch up on the next change.
func (s *Service) publish(ctx context.Context, userID string, collection feed.Collection, id string, op feed.Op) {
	err := s.changes.Publish(ctx, feed.Change{
		UserID:     userID,
		Collection: collection,
		ID:         id,
		Op:         op,
		At:         s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("collection", string(collection)).Str("id", id).Msg("failed to publish change")
	}
}
