package wallet

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

type ledgerBuilder struct {
	entries   []models.WalletTransaction
	available int64
	reserved  int64
}

func (b *ledgerBuilder) add(txType enums.TransactionType, orderID *uuid.UUID, amount, delta int64) *ledgerBuilder {
	b.available += amount
	b.reserved += delta
	b.entries = append(b.entries, models.WalletTransaction{
		Sequence:           int64(len(b.entries) + 1),
		Type:               txType,
		OrderID:            orderID,
		AmountCents:        amount,
		ReservedDeltaCents: delta,
		BalanceAfterCents:  b.available,
		ReservedAfterCents: b.reserved,
	})
	return b
}

func hasProblem(problems []Problem, fragment string) bool {
	for _, p := range problems {
		if strings.Contains(p.Detail, fragment) {
			return true
		}
	}
	return false
}

func TestReplayEntriesConsistentLedger(t *testing.T) {
	orderA, orderB := uuid.New(), uuid.New()
	b := &ledgerBuilder{}
	b.add(enums.TransactionTypeDeposit, nil, 10000, 0).
		add(enums.TransactionTypeReserve, &orderA, -5000, 5000).
		add(enums.TransactionTypeReserve, &orderB, -2000, 2000).
		add(enums.TransactionTypeRelease, &orderA, 0, -5000).
		add(enums.TransactionTypeProfit, &orderA, 3000, 0).
		add(enums.TransactionTypeFee, &orderA, 0, 0)

	replay, problems := ReplayEntries(b.entries)
	if len(problems) != 0 {
		t.Fatalf("expected no problems, got %+v", problems)
	}
	if replay.AvailableCents != 6000 || replay.ReservedCents != 2000 {
		t.Fatalf("unexpected replay %+v", replay)
	}
	if held := replay.OpenReservations[orderB]; held != 2000 || len(replay.OpenReservations) != 1 {
		t.Fatalf("expected only orderB open, got %+v", replay.OpenReservations)
	}
}

func TestReplayEntriesReportsDrift(t *testing.T) {
	order := uuid.New()

	t.Run("double release", func(t *testing.T) {
		b := &ledgerBuilder{}
		b.add(enums.TransactionTypeDeposit, nil, 10000, 0).
			add(enums.TransactionTypeReserve, &order, -5000, 5000).
			add(enums.TransactionTypeRelease, &order, 5000, -5000).
			add(enums.TransactionTypeRelease, &order, 5000, -5000)
		_, problems := ReplayEntries(b.entries)
		if !hasProblem(problems, "release without open reservation") {
			t.Fatalf("expected double release problem, got %+v", problems)
		}
	})

	t.Run("balance snapshot mismatch", func(t *testing.T) {
		b := &ledgerBuilder{}
		b.add(enums.TransactionTypeDeposit, nil, 10000, 0).
			add(enums.TransactionTypeWithdrawal, nil, -500, 0)
		b.entries[1].BalanceAfterCents = 9600
		_, problems := ReplayEntries(b.entries)
		if !hasProblem(problems, "balance_after 9600") {
			t.Fatalf("expected balance_after problem, got %+v", problems)
		}
	})

	t.Run("sequence gap", func(t *testing.T) {
		b := &ledgerBuilder{}
		b.add(enums.TransactionTypeDeposit, nil, 100, 0).
			add(enums.TransactionTypeDeposit, nil, 100, 0)
		b.entries[1].Sequence = 3
		_, problems := ReplayEntries(b.entries)
		if !hasProblem(problems, "sequence gap") {
			t.Fatalf("expected sequence gap, got %+v", problems)
		}
	})

	t.Run("wrong sign", func(t *testing.T) {
		b := &ledgerBuilder{}
		b.add(enums.TransactionTypeRefund, &order, 100, 0)
		_, problems := ReplayEntries(b.entries)
		if !hasProblem(problems, "must debit available") {
			t.Fatalf("expected sign problem, got %+v", problems)
		}
	})
}

func TestSummarizeOrderRejectsDuplicates(t *testing.T) {
	order := uuid.New()
	b := &ledgerBuilder{}
	b.add(enums.TransactionTypeDeposit, nil, 1000, 0).
		add(enums.TransactionTypeReserve, &order, -500, 500).
		add(enums.TransactionTypeReserve, &order, -500, 500)

	_, err := summarizeOrder(b.entries[1:])
	if !pkgerrors.IsCode(err, pkgerrors.CodeInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	history, err := summarizeOrder(b.entries[1:2])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !history.open() || history.heldCents() != 500 {
		t.Fatalf("expected open reservation of 500, got %+v", history)
	}
}
