package billing

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/pixelmint/backend/internal/ledger"
	"github.com/pixelmint/backend/internal/models"
)

func TestGrantCreditsWorker(t *testing.T) {
	lgr := ledger.NewMemory()
	userID := uuid.New()
	lgr.SetBalance(userID, 5)

	worker := NewGrantCreditsWorker(lgr, slog.New(slog.DiscardHandler))
	job := &river.Job[GrantCreditsArgs]{Args: GrantCreditsArgs{
		UserID:    userID,
		Amount:    50,
		GrantKind: models.CreditKindPurchase,
		Reference: "pay_777",
	}}

	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("work failed: %v", err)
	}

	balance, _ := lgr.Balance(context.Background(), userID)
	if balance != 55 {
		t.Errorf("expected balance 55, got %d", balance)
	}
	txs, _ := lgr.Transactions(context.Background(), userID)
	if len(txs) != 1 || txs[0].Kind != models.CreditKindPurchase || txs[0].Amount != 50 {
		t.Errorf("unexpected transactions: %+v", txs)
	}
}

func TestGrantCreditsWorker_UnknownUserDropped(t *testing.T) {
	worker := NewGrantCreditsWorker(ledger.NewMemory(), slog.New(slog.DiscardHandler))
	job := &river.Job[GrantCreditsArgs]{Args: GrantCreditsArgs{
		UserID:    uuid.New(),
		Amount:    10,
		GrantKind: models.CreditKindPurchase,
		Reference: "pay_orphan",
	}}

	// No retry loop for a user that does not exist.
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("expected nil (dropped), got %v", err)
	}
}

func TestGrantCreditsWorker_NonPositiveAmountDropped(t *testing.T) {
	lgr := ledger.NewMemory()
	userID := uuid.New()
	lgr.SetBalance(userID, 5)

	worker := NewGrantCreditsWorker(lgr, slog.New(slog.DiscardHandler))
	job := &river.Job[GrantCreditsArgs]{Args: GrantCreditsArgs{
		UserID: userID, Amount: 0, GrantKind: models.CreditKindPurchase, Reference: "pay_zero",
	}}

	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("expected nil (dropped), got %v", err)
	}
	balance, _ := lgr.Balance(context.Background(), userID)
	if balance != 5 {
		t.Errorf("balance must be untouched, got %d", balance)
	}
}
