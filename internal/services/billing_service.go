package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"langexam/internal/db"
	"langexam/internal/models"
	"langexam/internal/payments"
	"langexam/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type PackStore interface {
	GetByID(ctx context.Context, packID string) (models.CreditPack, error)
	ListActive(ctx context.Context) ([]models.CreditPack, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BillingService struct {
	txRunner  db.TxRunner
	users     UserStore
	ledger    LedgerStore
	packs     PackStore
	audit     AuditStore
	provider  payments.Provider
	hub       BalanceHub
	logger    *zap.Logger
	returnURL string
}

func NewBillingService(txRunner db.TxRunner, users UserStore, ledger LedgerStore, packs PackStore, audit AuditStore, provider payments.Provider, hub BalanceHub, logger *zap.Logger, returnURL string) *BillingService {
	return &BillingService{
		txRunner:  txRunner,
		users:     users,
		ledger:    ledger,
		packs:     packs,
		audit:     audit,
		provider:  provider,
		hub:       hub,
		logger:    logger,
		returnURL: returnURL,
	}
}

func (s *BillingService) ListPacks(ctx context.Context) ([]models.CreditPack, error) {
	return s.packs.ListActive(ctx)
}

// Checkout is a pass-through to the payment provider; crediting happens later
// through Reconcile when the confirmation event arrives.
func (s *BillingService) Checkout(ctx context.Context, userID, packID string) (string, error) {
	pack, err := s.packs.GetByID(ctx, packID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownPack
		}
		return "", err
	}
	if !pack.Active {
		return "", ErrUnknownPack
	}
	url, err := s.provider.CreateCheckoutSession(ctx, userID, pack, s.returnURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	return url, nil
}

// PaymentEvent is the confirmation metadata extracted from a provider webhook,
// delivered at-least-once.
type PaymentEvent struct {
	UserID     string `json:"user_id"`
	PackID     string `json:"pack_id"`
	PaymentRef string `json:"payment_ref"`
}

// Reconcile applies exactly one credit grant per unique payment reference.
// Replays, including concurrent duplicate deliveries, are successful no-ops:
// the partial unique index on (kind, external_ref) is the authority, not a
// check-then-act in application code.
func (s *BillingService) Reconcile(ctx context.Context, event PaymentEvent) error {
	if event.UserID == "" || event.PackID == "" || event.PaymentRef == "" {
		return ErrMalformedEvent
	}

	if _, err := s.ledger.FindByExternalRef(ctx, event.PaymentRef, models.KindPurchase); err == nil {
		s.logger.Info("payment event replayed, already applied",
			zap.String("payment_ref", event.PaymentRef))
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	pack, err := s.packs.GetByID(ctx, event.PackID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownPack
		}
		return err
	}

	var balance int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credits, err := s.users.AdjustCreditsUnchecked(ctx, tx, event.UserID, pack.Credits)
		if err != nil {
			return err
		}
		balance = credits
		if err := s.ledger.Append(ctx, tx, store.LedgerEntryInput{
			ID:          uuid.NewString(),
			UserID:      event.UserID,
			Amount:      pack.Credits,
			Kind:        models.KindPurchase,
			ExternalRef: &event.PaymentRef,
			Reason:      "purchase: " + pack.Name,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"pack_id":     pack.ID,
			"credits":     pack.Credits,
			"payment_ref": event.PaymentRef,
		})
		return s.audit.Log(ctx, tx, event.UserID, "purchase_credited", "user", event.UserID, string(data))
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// A concurrent delivery won the insert. Same outcome, no error.
			s.logger.Info("payment event raced a duplicate, already applied",
				zap.String("payment_ref", event.PaymentRef))
			return nil
		}
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastBalance(event.UserID, balance)
	}
	return nil
}

type RefundResult struct {
	ReversalID string
	Amount     int64
	UserID     string
}

// Refund reverses one prior purchase, once. The external reversal runs first:
// a failed reversal with no local mutation is safely retryable, while the
// opposite ordering risks a phantom local deduction.
func (s *BillingService) Refund(ctx context.Context, adminID, entryID string) (RefundResult, error) {
	entry, err := s.ledger.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RefundResult{}, ErrEntryNotFound
		}
		return RefundResult{}, err
	}
	if entry.Kind != models.KindPurchase || entry.ExternalRef == nil {
		return RefundResult{}, ErrInvalidState
	}
	ref := *entry.ExternalRef

	if _, err := s.ledger.FindByExternalRef(ctx, ref, models.KindRefund); err == nil {
		return RefundResult{}, ErrAlreadyRefunded
	} else if !errors.Is(err, store.ErrNotFound) {
		return RefundResult{}, err
	}

	reversalID, err := s.provider.ReverseCharge(ctx, ref)
	if err != nil {
		return RefundResult{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	var balance int64
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credits, err := s.users.AdjustCreditsUnchecked(ctx, tx, entry.UserID, -entry.Amount)
		if err != nil {
			return err
		}
		balance = credits
		if err := s.ledger.Append(ctx, tx, store.LedgerEntryInput{
			ID:          uuid.NewString(),
			UserID:      entry.UserID,
			Amount:      -entry.Amount,
			Kind:        models.KindRefund,
			ExternalRef: &ref,
			Reason:      "refund of " + entry.ID,
		}); err != nil {
			return err
		}
		if err := s.ledger.AnnotateReason(ctx, tx, entry.ID, "refunded, reversal "+reversalID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"entry_id":    entry.ID,
			"user_id":     entry.UserID,
			"amount":      entry.Amount,
			"payment_ref": ref,
			"reversal_id": reversalID,
		})
		return s.audit.Log(ctx, tx, adminID, "refund", "ledger_entry", entry.ID, string(data))
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			// A concurrent refund of the same purchase won the insert.
			return RefundResult{}, ErrAlreadyRefunded
		}
		return RefundResult{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastBalance(entry.UserID, balance)
	}
	return RefundResult{ReversalID: reversalID, Amount: entry.Amount, UserID: entry.UserID}, nil
}

// Grant issues admin credits, paired with a GRANT ledger entry.
func (s *BillingService) Grant(ctx context.Context, adminID, userID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidState
	}
	var balance int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credits, err := s.users.AdjustCreditsUnchecked(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		balance = credits
		if err := s.ledger.Append(ctx, tx, store.LedgerEntryInput{
			ID:     uuid.NewString(),
			UserID: userID,
			Amount: amount,
			Kind:   models.KindGrant,
			Reason: reason,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"user_id": userID,
			"amount":  amount,
			"reason":  reason,
		})
		return s.audit.Log(ctx, tx, adminID, "grant_credits", "user", userID, string(data))
	})
	if err != nil {
		return 0, err
	}
	if s.hub != nil {
		s.hub.BroadcastBalance(userID, balance)
	}
	return balance, nil
}
