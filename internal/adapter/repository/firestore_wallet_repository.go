package repository

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	"walletledger/pkg/errors"
)

const (
	walletsCollection = "wallets"
	claimsCollection  = "claims"
)

// Amounts are stored as decimal strings so no precision is lost on the way
// through Firestore.
type walletDoc struct {
	ID                 string            `firestore:"id"`
	UserID             string            `firestore:"userId"`
	Balances           map[string]string `firestore:"balances"`
	PrimaryCurrency    string            `firestore:"primaryCurrency"`
	Status             string            `firestore:"status"`
	Transactions       []entryDoc        `firestore:"transactions"`
	WithdrawalTracking trackingDoc       `firestore:"withdrawalTracking"`
	Statistics         statisticsDoc     `firestore:"statistics"`
	Version            int64             `firestore:"version"`
	CreatedAt          time.Time         `firestore:"createdAt"`
	UpdatedAt          time.Time         `firestore:"updatedAt"`
}

type entryDoc struct {
	ID           string            `firestore:"id"`
	Kind         string            `firestore:"type"`
	Amount       string            `firestore:"amount"`
	Currency     string            `firestore:"currency"`
	BalanceAfter string            `firestore:"balanceAfter"`
	Description  string            `firestore:"description"`
	RelatedRef   string            `firestore:"relatedRef,omitempty"`
	Status       string            `firestore:"status"`
	Metadata     map[string]string `firestore:"metadata,omitempty"`
	CreatedAt    time.Time         `firestore:"createdAt"`
	UpdatedAt    time.Time         `firestore:"updatedAt"`
}

type trackingDoc struct {
	Daily          map[string]string `firestore:"daily"`
	Monthly        map[string]string `firestore:"monthly"`
	DailyResetAt   time.Time         `firestore:"dailyResetAt"`
	MonthlyResetAt time.Time         `firestore:"monthlyResetAt"`
}

type statisticsDoc struct {
	TotalEarned       map[string]string `firestore:"totalEarned"`
	TotalWithdrawn    map[string]string `firestore:"totalWithdrawn"`
	TransactionCount  int64             `firestore:"transactionCount"`
	LastTransactionAt *time.Time        `firestore:"lastTransactionAt,omitempty"`
}

type claimDoc struct {
	Key       string    `firestore:"key"`
	Version   int64     `firestore:"version"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

type firestoreWalletRepository struct {
	client *firestore.Client
}

func NewFirestoreWalletRepository(client *firestore.Client) repository.WalletRepository {
	return &firestoreWalletRepository{
		client: client,
	}
}

// Wallet documents are keyed by user id, which makes creation a unique
// insert.
func (r *firestoreWalletRepository) walletRef(userID string) *firestore.DocumentRef {
	return r.client.Collection(walletsCollection).Doc(userID)
}

func (r *firestoreWalletRepository) claimRef(userID, claimKey string) *firestore.DocumentRef {
	return r.walletRef(userID).Collection(claimsCollection).Doc(strings.ReplaceAll(claimKey, "/", "_"))
}

func (r *firestoreWalletRepository) GetByUserID(ctx context.Context, userID string) (*entity.Wallet, error) {
	doc, err := r.walletRef(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.WalletNotFound(userID, err)
		}
		return nil, err
	}

	var wd walletDoc
	if err := doc.DataTo(&wd); err != nil {
		return nil, err
	}
	return wd.toEntity()
}

func (r *firestoreWalletRepository) Create(ctx context.Context, wallet *entity.Wallet) error {
	wallet.Version = 1
	_, err := r.walletRef(wallet.UserID).Create(ctx, toWalletDoc(wallet))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.AlreadyExists("Wallet", err)
		}
		return err
	}
	return nil
}

func (r *firestoreWalletRepository) Save(ctx context.Context, wallet *entity.Wallet, expectedVersion int64, claimKey string) error {
	ref := r.walletRef(wallet.UserID)
	now := time.Now().UTC()

	next := wallet.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = now

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.WalletNotFound(wallet.UserID, err)
			}
			return err
		}

		var current struct {
			Version int64 `firestore:"version"`
		}
		if err := snap.DataTo(&current); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return errors.VersionConflict(nil)
		}

		if claimKey != "" {
			claim := r.claimRef(wallet.UserID, claimKey)
			_, err := tx.Get(claim)
			if err == nil {
				return errors.DuplicateCredit(claimKey)
			}
			if status.Code(err) != codes.NotFound {
				return err
			}
			if err := tx.Create(claim, claimDoc{Key: claimKey, Version: next.Version, ClaimedAt: now}); err != nil {
				return err
			}
		}

		return tx.Set(ref, toWalletDoc(next))
	}, firestore.MaxAttempts(1))
	if err != nil {
		if _, ok := err.(*errors.AppError); ok {
			return err
		}
		if status.Code(err) == codes.Aborted {
			return errors.VersionConflict(err)
		}
		return err
	}

	wallet.Version = next.Version
	wallet.UpdatedAt = now
	return nil
}

func (r *firestoreWalletRepository) HasClaim(ctx context.Context, userID, claimKey string) (bool, error) {
	_, err := r.claimRef(userID, claimKey).Get(ctx)
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, err
}

func toWalletDoc(w *entity.Wallet) walletDoc {
	entries := make([]entryDoc, len(w.Transactions))
	for i, e := range w.Transactions {
		entries[i] = entryDoc{
			ID:           e.ID,
			Kind:         string(e.Kind),
			Amount:       e.Amount.String(),
			Currency:     e.Currency,
			BalanceAfter: e.BalanceAfter.String(),
			Description:  e.Description,
			RelatedRef:   e.RelatedRef,
			Status:       string(e.Status),
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
		}
	}

	return walletDoc{
		ID:              w.ID,
		UserID:          w.UserID,
		Balances:        amountsToStrings(w.Balances),
		PrimaryCurrency: w.PrimaryCurrency,
		Status:          string(w.Status),
		Transactions:    entries,
		WithdrawalTracking: trackingDoc{
			Daily:          amountsToStrings(w.WithdrawalTracking.Daily),
			Monthly:        amountsToStrings(w.WithdrawalTracking.Monthly),
			DailyResetAt:   w.WithdrawalTracking.DailyResetAt,
			MonthlyResetAt: w.WithdrawalTracking.MonthlyResetAt,
		},
		Statistics: statisticsDoc{
			TotalEarned:       amountsToStrings(w.Statistics.TotalEarned),
			TotalWithdrawn:    amountsToStrings(w.Statistics.TotalWithdrawn),
			TransactionCount:  w.Statistics.TransactionCount,
			LastTransactionAt: w.Statistics.LastTransactionAt,
		},
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func (d walletDoc) toEntity() (*entity.Wallet, error) {
	balances, err := stringsToAmounts(d.Balances)
	if err != nil {
		return nil, err
	}
	daily, err := stringsToAmounts(d.WithdrawalTracking.Daily)
	if err != nil {
		return nil, err
	}
	monthly, err := stringsToAmounts(d.WithdrawalTracking.Monthly)
	if err != nil {
		return nil, err
	}
	earned, err := stringsToAmounts(d.Statistics.TotalEarned)
	if err != nil {
		return nil, err
	}
	withdrawn, err := stringsToAmounts(d.Statistics.TotalWithdrawn)
	if err != nil {
		return nil, err
	}

	entries := make([]entity.LedgerEntry, len(d.Transactions))
	for i, e := range d.Transactions {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return nil, err
		}
		after, err := decimal.NewFromString(e.BalanceAfter)
		if err != nil {
			return nil, err
		}
		entries[i] = entity.LedgerEntry{
			ID:           e.ID,
			Kind:         entity.EntryKind(e.Kind),
			Amount:       amount,
			Currency:     e.Currency,
			BalanceAfter: after,
			Description:  e.Description,
			RelatedRef:   e.RelatedRef,
			Status:       entity.EntryStatus(e.Status),
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
		}
		if entries[i].Metadata == nil {
			entries[i].Metadata = map[string]string{}
		}
	}

	return &entity.Wallet{
		ID:              d.ID,
		UserID:          d.UserID,
		Balances:        balances,
		PrimaryCurrency: d.PrimaryCurrency,
		Status:          entity.WalletStatus(d.Status),
		Transactions:    entries,
		WithdrawalTracking: entity.WithdrawalTracking{
			Daily:          daily,
			Monthly:        monthly,
			DailyResetAt:   d.WithdrawalTracking.DailyResetAt,
			MonthlyResetAt: d.WithdrawalTracking.MonthlyResetAt,
		},
		Statistics: entity.WalletStatistics{
			TotalEarned:       earned,
			TotalWithdrawn:    withdrawn,
			TransactionCount:  d.Statistics.TransactionCount,
			LastTransactionAt: d.Statistics.LastTransactionAt,
		},
		Version:   d.Version,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func amountsToStrings(m map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v.String()
	}
	return out
}

func stringsToAmounts(m map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(m))
	for k, v := range m {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}
