package wallet

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vendorisland/vendorisland-backend/pkg/db/models"
	"github.com/vendorisland/vendorisland-backend/pkg/enums"
	pkgerrors "github.com/vendorisland/vendorisland-backend/pkg/errors"
)

// Problem is one inconsistency found while replaying a ledger.
type Problem struct {
	Sequence int64  `json:"sequence"`
	Detail   string `json:"detail"`
}

// Replay is the wallet state reconstructed from its entries alone.
type Replay struct {
	AvailableCents   int64
	ReservedCents    int64
	LastSequence     int64
	Entries          int
	OpenReservations map[uuid.UUID]int64
}

// ReplayEntries folds entries ordered by sequence from a zero balance. Every
// rule an append enforces is re-checked so drift introduced outside the
// service is reported rather than absorbed.
func ReplayEntries(entries []models.WalletTransaction) (Replay, []Problem) {
	state := Replay{OpenReservations: make(map[uuid.UUID]int64)}
	closed := make(map[uuid.UUID]bool)
	var problems []Problem
	report := func(seq int64, format string, args ...any) {
		problems = append(problems, Problem{Sequence: seq, Detail: fmt.Sprintf(format, args...)})
	}

	for _, entry := range entries {
		if entry.Sequence != state.LastSequence+1 {
			report(entry.Sequence, "sequence gap after %d", state.LastSequence)
		}
		state.LastSequence = entry.Sequence
		state.Entries++
		state.AvailableCents += entry.AmountCents
		state.ReservedCents += entry.ReservedDeltaCents

		if entry.BalanceAfterCents != state.AvailableCents {
			report(entry.Sequence, "balance_after %d, replay gives %d", entry.BalanceAfterCents, state.AvailableCents)
		}
		if entry.ReservedAfterCents != state.ReservedCents {
			report(entry.Sequence, "reserved_after %d, replay gives %d", entry.ReservedAfterCents, state.ReservedCents)
		}
		if state.ReservedCents < 0 {
			report(entry.Sequence, "reserved balance negative")
		}
		if detail := checkShape(entry); detail != "" {
			report(entry.Sequence, "%s", detail)
		}

		if entry.OrderID == nil {
			continue
		}
		orderID := *entry.OrderID
		switch entry.Type {
		case enums.TransactionTypeReserve:
			if _, open := state.OpenReservations[orderID]; open || closed[orderID] {
				report(entry.Sequence, "second reserve for order %s", orderID)
				continue
			}
			state.OpenReservations[orderID] = entry.ReservedDeltaCents
		case enums.TransactionTypeRelease:
			held, open := state.OpenReservations[orderID]
			if !open {
				report(entry.Sequence, "release without open reservation for order %s", orderID)
				continue
			}
			if -entry.ReservedDeltaCents != held {
				report(entry.Sequence, "release of %d against reservation of %d", -entry.ReservedDeltaCents, held)
			}
			delete(state.OpenReservations, orderID)
			closed[orderID] = true
		}
	}

	var held int64
	for _, amount := range state.OpenReservations {
		held += amount
	}
	if held != state.ReservedCents {
		report(state.LastSequence, "open reservations total %d, reserved balance %d", held, state.ReservedCents)
	}
	return state, problems
}

// checkShape validates the per-type sign convention of a single entry.
func checkShape(entry models.WalletTransaction) string {
	switch entry.Type {
	case enums.TransactionTypeDeposit:
		if entry.AmountCents <= 0 || entry.ReservedDeltaCents != 0 {
			return "deposit must credit available only"
		}
	case enums.TransactionTypeWithdrawal, enums.TransactionTypeRefund:
		if entry.AmountCents >= 0 || entry.ReservedDeltaCents != 0 {
			return fmt.Sprintf("%s must debit available only", entry.Type)
		}
	case enums.TransactionTypeReserve:
		if entry.ReservedDeltaCents <= 0 || entry.AmountCents != -entry.ReservedDeltaCents || entry.OrderID == nil {
			return "reserve must move funds from available to reserved for an order"
		}
	case enums.TransactionTypeRelease:
		if entry.ReservedDeltaCents >= 0 || entry.OrderID == nil {
			return "release must reduce reserved for an order"
		}
		if entry.AmountCents != 0 && entry.AmountCents != -entry.ReservedDeltaCents {
			return "release must return the full reservation or nothing"
		}
	case enums.TransactionTypeProfit:
		if entry.ReservedDeltaCents != 0 {
			return "profit cannot touch reserved"
		}
	case enums.TransactionTypeFee:
		if entry.AmountCents > 0 || entry.ReservedDeltaCents != 0 {
			return "fee cannot credit"
		}
	default:
		return fmt.Sprintf("unknown transaction type %q", entry.Type)
	}
	return ""
}

// orderLedger summarizes the entries one order has produced on a wallet.
type orderLedger struct {
	reserve *models.WalletTransaction
	release *models.WalletTransaction
	profit  *models.WalletTransaction
}

func summarizeOrder(entries []models.WalletTransaction) (orderLedger, error) {
	var l orderLedger
	for i := range entries {
		entry := &entries[i]
		switch entry.Type {
		case enums.TransactionTypeReserve:
			if l.reserve != nil {
				return l, violation("order has more than one reserve entry")
			}
			l.reserve = entry
		case enums.TransactionTypeRelease:
			if l.release != nil {
				return l, violation("order has more than one release entry")
			}
			if l.reserve == nil {
				return l, violation("order released without a reserve entry")
			}
			l.release = entry
		case enums.TransactionTypeProfit:
			l.profit = entry
		}
	}
	return l, nil
}

// open reports whether the order currently holds reserved funds.
func (l orderLedger) open() bool {
	return l.reserve != nil && l.release == nil
}

func (l orderLedger) heldCents() int64 {
	if l.reserve == nil {
		return 0
	}
	return l.reserve.ReservedDeltaCents
}

func violation(message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvariant, message)
}
