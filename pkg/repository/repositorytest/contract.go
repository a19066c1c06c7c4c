// Package repositorytest holds the behaviour every repository backend must
// show, run by each backend's tests.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"paygate/pkg/biller"
	"paygate/pkg/biller/netbilling"
	"paygate/pkg/repository"
	"paygate/pkg/settings"
	"paygate/pkg/transaction"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewCharge returns a pending Netbilling charge on a new card.
func NewCharge(t *testing.T) *transaction.ChargeTransaction {
	t.Helper()
	tx, err := transaction.NewChargeTransaction(transaction.ChargeParams{
		SiteID:      uuid.New(),
		BillerName:  biller.Netbilling,
		Settings:    settings.Netbilling{SiteTag: "tag", AccountID: "acc", MerchantPassword: "pw"},
		PaymentType: transaction.PaymentTypeCC,
		Payment: transaction.NewCreditCard{
			Number:          "4111111111111111",
			CVV:             "123",
			ExpirationMonth: 10,
			ExpirationYear:  2030,
		},
		Charge: transaction.ChargeInformation{Amount: decimal.RequireFromString("4.99"), Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("NewChargeTransaction failed: %v", err)
	}
	return tx
}

// Run exercises repo against the repository contract.
func Run(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	t.Run("add then find", func(t *testing.T) {
		tx := NewCharge(t)
		if err := repo.Add(ctx, tx); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		found, err := repo.FindByID(ctx, tx.ID())
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.ID() != tx.ID() || found.Status() != transaction.StatusPending || found.Kind() != transaction.KindCharge {
			t.Errorf("Unexpected transaction: %s %s %s", found.ID(), found.Status(), found.Kind())
		}
	})

	t.Run("add twice", func(t *testing.T) {
		tx := NewCharge(t)
		if err := repo.Add(ctx, tx); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if err := repo.Add(ctx, tx); !errors.Is(err, repository.ErrAlreadyExists) {
			t.Errorf("Expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("update keeps the ledger", func(t *testing.T) {
		tx := NewCharge(t)
		if err := repo.Add(ctx, tx); err != nil {
			t.Fatalf("Add failed: %v", err)
		}

		resp, err := netbilling.Normalize(`{"code":"0","trans_id":"T-1"}`, tx.CreatedAt(), tx.CreatedAt())
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		if err := tx.Record(resp); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if err := repo.Update(ctx, tx); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		found, err := repo.FindByID(ctx, tx.ID())
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Status() != transaction.StatusApproved {
			t.Errorf("Expected approved, got %s", found.Status())
		}
		want, got := tx.Interactions(), found.Interactions()
		if len(got) != len(want) {
			t.Fatalf("Expected %d interactions, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].Type != want[i].Type || got[i].Payload != want[i].Payload || !got[i].CreatedAt.Equal(want[i].CreatedAt) {
				t.Errorf("Interaction %d differs: %+v vs %+v", i, got[i], want[i])
			}
		}
	})

	t.Run("update unknown", func(t *testing.T) {
		if err := repo.Update(ctx, NewCharge(t)); !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("find unknown", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, uuid.New()); !repository.IsNotFound(err) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent adds of one id", func(t *testing.T) {
		tx := NewCharge(t)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Add(ctx, tx); err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if success != 1 {
			t.Errorf("Expected exactly one successful Add, got %d", success)
		}
	})
}
