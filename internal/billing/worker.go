package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/pixelmint/backend/internal/ledger"
)

type GrantCreditsArgs struct {
	UserID    uuid.UUID `json:"user_id"`
	Amount    int       `json:"amount"`
	GrantKind string    `json:"grant_kind"`
	Reference string    `json:"reference"`
}

func (GrantCreditsArgs) Kind() string { return "grant_credits" }

// InsertOpts dedupes on the payment reference so a replayed webhook
// cannot enqueue a second grant for the same payment.
func (a GrantCreditsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	}
}

// GrantCreditsWorker applies purchased or bonus credits to the ledger.
// Grants are idempotent at the queue level via unique args, and the
// ledger append is the single source of truth for the balance.
type GrantCreditsWorker struct {
	river.WorkerDefaults[GrantCreditsArgs]
	ledger ledger.Service
	log    *slog.Logger
}

func NewGrantCreditsWorker(lgr ledger.Service, log *slog.Logger) *GrantCreditsWorker {
	if log == nil {
		log = slog.Default()
	}
	return &GrantCreditsWorker{ledger: lgr, log: log}
}

func (w *GrantCreditsWorker) Work(ctx context.Context, job *river.Job[GrantCreditsArgs]) error {
	args := job.Args
	if args.Amount <= 0 {
		// Malformed job, retrying will never help.
		w.log.Error("dropping grant with non-positive amount", "user_id", args.UserID, "amount", args.Amount, "reference", args.Reference)
		return nil
	}

	balance, err := w.ledger.Grant(ctx, args.UserID, args.Amount, args.GrantKind, "payment "+args.Reference)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownUser) {
			w.log.Error("grant for unknown user", "user_id", args.UserID, "reference", args.Reference)
			return nil
		}
		return fmt.Errorf("grant credits: %w", err)
	}

	w.log.Info("credits granted",
		"user_id", args.UserID,
		"amount", args.Amount,
		"kind", args.GrantKind,
		"reference", args.Reference,
		"balance", balance,
	)
	return nil
}
