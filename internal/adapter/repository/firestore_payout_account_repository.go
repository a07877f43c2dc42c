package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
)

type firestorePayoutAccountRepository struct {
	client *firestore.Client
}

func NewFirestorePayoutAccountRepository(client *firestore.Client) repository.PayoutAccountRepository {
	return &firestorePayoutAccountRepository{
		client: client,
	}
}

func (r *firestorePayoutAccountRepository) GetByID(ctx context.Context, id string) (*entity.PayoutAccount, error) {
	doc, err := r.client.Collection("payout_accounts").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Payout account", err)
		}
		return nil, err
	}

	var account entity.PayoutAccount
	if err := doc.DataTo(&account); err != nil {
		return nil, err
	}
	if account.ID == "" {
		account.ID = doc.Ref.ID
	}

	return &account, nil
}

func (r *firestorePayoutAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*entity.PayoutAccount, error) {
	iter := r.client.Collection("payout_accounts").
		Where("userId", "==", userID).
		Where("isActive", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var accounts []*entity.PayoutAccount
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		var account entity.PayoutAccount
		if err := doc.DataTo(&account); err != nil {
			return nil, err
		}
		if account.ID == "" {
			account.ID = doc.Ref.ID
		}
		accounts = append(accounts, &account)
	}

	return accounts, nil
}
