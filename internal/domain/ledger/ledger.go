// Package ledger appends completed stage attempts to the run ledger. The
// ledger is append-only and never consults existing state, so it stays a
// complete audit trail regardless of what the best records do.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/adapters/repository"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/internal/domain/model"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/logger"
	"github.com/Enmanuel-Otero-Montano/juego-de-banderas-backend/pkg/metrics"
)

// ErrIncompleteAttempt is returned for attempts without a user or stage.
var ErrIncompleteAttempt = errors.New("attempt needs a user and a stage")

// Ledger appends attempts.
type Ledger struct {
	logger logger.Logger
	now    func() time.Time
}

// New creates a Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Named("ledger")
	}
	return l
}

// Append writes a within tx and returns its id. A zero CompletedAt is set to
// the current time.
func (l *Ledger) Append(ctx context.Context, tx repository.Tx, a model.StageAttempt) (int64, error) {
	if a.UserID <= 0 || strings.TrimSpace(a.StageID) == "" {
		return 0, ErrIncompleteAttempt
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = l.now()
	}
	a.CompletedAt = a.CompletedAt.UTC()
	a.Groups = slices.Clone(a.Groups)

	id, err := tx.AppendAttempt(ctx, a)
	if err != nil {
		metrics.RecordErrorByComponent("ledger", "append")
		return 0, fmt.Errorf("append attempt: %w", err)
	}
	metrics.RecordLedgerAppend()
	l.logger.Debug(ctx, "attempt appended",
		logger.Int64("attempt_id", id),
		logger.Int64("user_id", a.UserID),
		logger.String("stage", a.StageID),
		logger.Int("score", a.Score))
	return id, nil
}
