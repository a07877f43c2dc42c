package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
)

// The ledger only reads users and products; both are owned by the
// marketplace services.

type firestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) repository.UserRepository {
	return &firestoreUserRepository{
		client: client,
	}
}

func (r *firestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("User", err)
		}
		return nil, err
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = doc.Ref.ID
	}

	return &user, nil
}

type productDoc struct {
	ID        string    `firestore:"id"`
	SellerID  string    `firestore:"sellerId"`
	Title     string    `firestore:"title"`
	Price     float64   `firestore:"price"`
	Currency  string    `firestore:"currency"`
	Status    string    `firestore:"status"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type firestoreProductRepository struct {
	client *firestore.Client
}

func NewFirestoreProductRepository(client *firestore.Client) repository.ProductRepository {
	return &firestoreProductRepository{
		client: client,
	}
}

func (r *firestoreProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	doc, err := r.client.Collection("products").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Product", err)
		}
		return nil, apperrors.InternalServer("Failed to get product", err)
	}

	var pd productDoc
	if err := doc.DataTo(&pd); err != nil {
		return nil, err
	}
	if pd.ID == "" {
		pd.ID = doc.Ref.ID
	}

	return &entity.Product{
		ID:        pd.ID,
		SellerID:  pd.SellerID,
		Title:     pd.Title,
		Price:     decimal.NewFromFloat(pd.Price),
		Currency:  pd.Currency,
		Status:    pd.Status,
		CreatedAt: pd.CreatedAt,
		UpdatedAt: pd.UpdatedAt,
	}, nil
}
