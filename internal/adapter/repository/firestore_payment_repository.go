package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/repository"
	apperrors "walletledger/pkg/errors"
)

const (
	escrowCollection      = "escrow_transactions"
	paymentsCollection    = "payments"
	transactionCollection = "transactions"
)

// Payment collections are written by the checkout service, which stores
// amounts as numbers.
type paymentDoc struct {
	ID             string     `firestore:"id"`
	TransactionRef string     `firestore:"transactionRef,omitempty"`
	ExternalRef    string     `firestore:"externalRef,omitempty"`
	OrderNumber    string     `firestore:"orderNumber,omitempty"`
	BuyerID        string     `firestore:"buyerId"`
	SellerID       string     `firestore:"sellerId"`
	ProductID      string     `firestore:"productId"`
	GrossAmount    float64    `firestore:"amount"`
	PlatformFee    float64    `firestore:"platformFee"`
	Currency       string     `firestore:"currency"`
	Status         string     `firestore:"status"`
	PaymentMethod  string     `firestore:"paymentMethod,omitempty"`
	EscrowRef      string     `firestore:"escrowRef,omitempty"`
	ReleaseAt      *time.Time `firestore:"releaseAt,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
	CompletedAt    *time.Time `firestore:"completedAt,omitempty"`
}

func (d paymentDoc) record(id string) entity.PaymentRecord {
	if d.ID == "" {
		d.ID = id
	}
	return entity.PaymentRecord{
		ID:             d.ID,
		TransactionRef: d.TransactionRef,
		ExternalRef:    d.ExternalRef,
		OrderNumber:    d.OrderNumber,
		BuyerID:        d.BuyerID,
		SellerID:       d.SellerID,
		ProductID:      d.ProductID,
		GrossAmount:    decimal.NewFromFloat(d.GrossAmount),
		PlatformFee:    decimal.NewFromFloat(d.PlatformFee),
		Currency:       d.Currency,
		Status:         d.Status,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		CompletedAt:    d.CompletedAt,
	}
}

// paymentCollection holds the lookups the three payment collections share.
type paymentCollection struct {
	client   *firestore.Client
	name     string
	resource string
}

func (c paymentCollection) get(ctx context.Context, id string) (*paymentDoc, error) {
	doc, err := c.client.Collection(c.name).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound(c.resource, err)
		}
		return nil, err
	}
	return decodePayment(doc)
}

// findByRef tries the internal ref, then the gateway ref, then the order
// number.
func (c paymentCollection) findByRef(ctx context.Context, ref string) (*paymentDoc, error) {
	if ref == "" {
		return nil, apperrors.NotFound(c.resource, nil)
	}
	for _, field := range []string{"transactionRef", "externalRef", "orderNumber"} {
		iter := c.client.Collection(c.name).Where(field, "==", ref).Limit(1).Documents(ctx)
		doc, err := iter.Next()
		iter.Stop()
		if err == iterator.Done {
			continue
		}
		if err != nil {
			return nil, err
		}
		return decodePayment(doc)
	}
	return nil, apperrors.NotFound(c.resource, nil)
}

func (c paymentCollection) markCompleted(ctx context.Context, id string, at time.Time) error {
	_, err := c.client.Collection(c.name).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: entity.PaymentStatusCompleted},
		{Path: "completedAt", Value: at},
		{Path: "updatedAt", Value: at},
	})
	if err != nil && status.Code(err) == codes.NotFound {
		return apperrors.NotFound(c.resource, err)
	}
	return err
}

func decodePayment(doc *firestore.DocumentSnapshot) (*paymentDoc, error) {
	var pd paymentDoc
	if err := doc.DataTo(&pd); err != nil {
		return nil, err
	}
	if pd.ID == "" {
		pd.ID = doc.Ref.ID
	}
	return &pd, nil
}

// Escrow

type firestoreEscrowRepository struct {
	coll paymentCollection
}

func NewFirestoreEscrowRepository(client *firestore.Client) repository.EscrowRepository {
	return &firestoreEscrowRepository{
		coll: paymentCollection{client: client, name: escrowCollection, resource: "Escrow transaction"},
	}
}

func (r *firestoreEscrowRepository) GetByID(ctx context.Context, id string) (*entity.EscrowTransaction, error) {
	pd, err := r.coll.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toEscrow(pd), nil
}

func (r *firestoreEscrowRepository) FindByRef(ctx context.Context, ref string) (*entity.EscrowTransaction, error) {
	pd, err := r.coll.findByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return toEscrow(pd), nil
}

// FindByParties filters on equality only and picks the newest match here,
// so no composite index is needed.
func (r *firestoreEscrowRepository) FindByParties(ctx context.Context, buyerID, sellerID, productID string) (*entity.EscrowTransaction, error) {
	query := r.coll.client.Collection(escrowCollection).
		Where("buyerId", "==", buyerID).
		Where("sellerId", "==", sellerID).
		Where("productId", "==", productID)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var newest *paymentDoc
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		pd, err := decodePayment(doc)
		if err != nil {
			return nil, err
		}
		if newest == nil || pd.CreatedAt.After(newest.CreatedAt) {
			newest = pd
		}
	}

	if newest == nil {
		return nil, apperrors.NotFound("Escrow transaction", nil)
	}
	return toEscrow(newest), nil
}

func (r *firestoreEscrowRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return r.coll.markCompleted(ctx, id, at)
}

func toEscrow(pd *paymentDoc) *entity.EscrowTransaction {
	return &entity.EscrowTransaction{PaymentRecord: pd.record(pd.ID), ReleaseAt: pd.ReleaseAt}
}

// Standard payments

type firestoreStandardPaymentRepository struct {
	coll paymentCollection
}

func NewFirestoreStandardPaymentRepository(client *firestore.Client) repository.StandardPaymentRepository {
	return &firestoreStandardPaymentRepository{
		coll: paymentCollection{client: client, name: paymentsCollection, resource: "Payment"},
	}
}

func (r *firestoreStandardPaymentRepository) GetByID(ctx context.Context, id string) (*entity.StandardPayment, error) {
	pd, err := r.coll.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &entity.StandardPayment{PaymentRecord: pd.record(id), PaymentMethod: pd.PaymentMethod}, nil
}

func (r *firestoreStandardPaymentRepository) FindByRef(ctx context.Context, ref string) (*entity.StandardPayment, error) {
	pd, err := r.coll.findByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &entity.StandardPayment{PaymentRecord: pd.record(pd.ID), PaymentMethod: pd.PaymentMethod}, nil
}

func (r *firestoreStandardPaymentRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return r.coll.markCompleted(ctx, id, at)
}

// Generic transactions

type firestorePaymentTransactionRepository struct {
	coll paymentCollection
}

func NewFirestorePaymentTransactionRepository(client *firestore.Client) repository.PaymentTransactionRepository {
	return &firestorePaymentTransactionRepository{
		coll: paymentCollection{client: client, name: transactionCollection, resource: "Transaction"},
	}
}

func (r *firestorePaymentTransactionRepository) GetByID(ctx context.Context, id string) (*entity.PaymentTransaction, error) {
	pd, err := r.coll.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &entity.PaymentTransaction{PaymentRecord: pd.record(id), EscrowRef: pd.EscrowRef}, nil
}

func (r *firestorePaymentTransactionRepository) FindByRef(ctx context.Context, ref string) (*entity.PaymentTransaction, error) {
	pd, err := r.coll.findByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &entity.PaymentTransaction{PaymentRecord: pd.record(pd.ID), EscrowRef: pd.EscrowRef}, nil
}

func (r *firestorePaymentTransactionRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	return r.coll.markCompleted(ctx, id, at)
}
