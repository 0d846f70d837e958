// Package numbering issues human-readable, per-user sequential document
// numbers such as INV-2024-001.
//
// Sequences are scoped by (user, document type, year) and live in the store,
// so every allocation is a read-increment-write transaction against shared
// state. Concurrent callers that lose the race get store.ErrConflict and are
// retried here.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"invoicedesk/backend/internal/domain"
	"invoicedesk/backend/internal/store"
)

var (
	ErrAllocationFailed = errors.New("document number allocation failed")
	ErrNoOwner          = errors.New("document number owner is required")
)

const (
	DefaultMaxAttempts = 5
	defaultBackoff     = 15 * time.Millisecond
)

func Prefix(docType domain.DocumentType) string {
	if docType == domain.DocumentTypeQuotation {
		return "QUO"
	}
	return "INV"
}

// Year takes the year from an ISO date ("2024-05-01" -> 2024) and falls back
// to now's year when the date is empty or malformed.
func Year(date string, now time.Time) int {
	date = strings.TrimSpace(date)
	if len(date) >= 4 && isDigits(date[:4]) {
		if year, err := strconv.Atoi(date[:4]); err == nil && year > 0 {
			return year
		}
	}
	return now.Year()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// BuildPrefix returns "{PFX}-{YYYY}-".
func BuildPrefix(docType domain.DocumentType, date string, now time.Time) string {
	return fmt.Sprintf("%s-%04d-", Prefix(docType), Year(date, now))
}

func CounterID(userID string, docType domain.DocumentType, year int) string {
	return fmt.Sprintf("%s_%s_%d", userID, docType, year)
}

// Format pads the sequence to three digits; larger sequences keep growing.
func Format(prefix string, seq int64) string {
	return fmt.Sprintf("%s%03d", prefix, seq)
}

type Allocator struct {
	counters    store.CounterStore
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

type Option func(*Allocator)

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(a *Allocator) {
		if d >= 0 {
			a.backoff = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Allocator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(a *Allocator) {
		a.log = log
	}
}

func NewAllocator(counters store.CounterStore, opts ...Option) *Allocator {
	a := &Allocator{
		counters:    counters,
		maxAttempts: DefaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         func() time.Time { return time.Now().UTC() },
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AllocateNext reserves the next number for (userID, docType, year of date).
// Two successful calls never return the same number.
func (a *Allocator) AllocateNext(ctx context.Context, userID string, docType domain.DocumentType, date string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrNoOwner
	}
	if !docType.Valid() {
		return "", fmt.Errorf("%w: unknown document type %q", store.ErrInvalidInput, docType)
	}

	now := a.now()
	year := Year(date, now)
	prefix := BuildPrefix(docType, date, now)
	id := CounterID(userID, docType, year)

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		counter, err := a.counters.RunCounterTransaction(ctx, id, func(current domain.DocCounter, found bool) (domain.DocCounter, error) {
			seq := current.Seq
			if !found || seq < 0 {
				seq = 0
			}
			return domain.DocCounter{
				ID:           id,
				UserID:       userID,
				DocumentType: docType,
				Year:         year,
				Seq:          seq + 1,
				UpdatedAt:    now,
			}, nil
		})
		if err == nil {
			return Format(prefix, counter.Seq), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastErr = err
		a.log.Debug().
			Err(err).
			Str("counter_id", id).
			Int("attempt", attempt).
			Msg("counter transaction failed, retrying")

		if attempt < a.maxAttempts && a.backoff > 0 {
			timer := time.NewTimer(time.Duration(attempt) * a.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}

	a.log.Warn().Err(lastErr).Str("counter_id", id).Int("attempts", a.maxAttempts).Msg("document number allocation exhausted retries")
	return "", fmt.Errorf("%w after %d attempts: %w", ErrAllocationFailed, a.maxAttempts, lastErr)
}

// Resolve returns override when it is non-blank and otherwise allocates.
// Overrides are trusted as-is; no uniqueness check is made.
func (a *Allocator) Resolve(ctx context.Context, userID string, docType domain.DocumentType, date string, override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed, nil
	}
	return a.AllocateNext(ctx, userID, docType, date)
}
