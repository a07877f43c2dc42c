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

const ordersCollection = "orders"

type orderDoc struct {
	ID          string    `firestore:"id"`
	OrderNumber string    `firestore:"orderNumber"`
	PaymentRef  string    `firestore:"paymentRef,omitempty"`
	PaymentType string    `firestore:"paymentType"`
	BuyerID     string    `firestore:"buyerId"`
	SellerID    string    `firestore:"sellerId"`
	ProductID   string    `firestore:"productId"`
	Amount      float64   `firestore:"amount"`
	PlatformFee float64   `firestore:"platformFee"`
	Currency    string    `firestore:"currency"`
	Status      string    `firestore:"status"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d orderDoc) toEntity() *entity.Order {
	return &entity.Order{
		ID:          d.ID,
		OrderNumber: d.OrderNumber,
		PaymentRef:  d.PaymentRef,
		PaymentType: d.PaymentType,
		BuyerID:     d.BuyerID,
		SellerID:    d.SellerID,
		ProductID:   d.ProductID,
		Amount:      decimal.NewFromFloat(d.Amount),
		PlatformFee: decimal.NewFromFloat(d.PlatformFee),
		Currency:    d.Currency,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type firestoreOrderRepository struct {
	client *firestore.Client
}

func NewFirestoreOrderRepository(client *firestore.Client) repository.OrderRepository {
	return &firestoreOrderRepository{
		client: client,
	}
}

func (r *firestoreOrderRepository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	doc, err := r.client.Collection(ordersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.NotFound("Order", err)
		}
		return nil, err
	}
	return decodeOrder(doc)
}

func (r *firestoreOrderRepository) FindEscrowOrderByRef(ctx context.Context, ref string) (*entity.Order, error) {
	if ref == "" {
		return nil, apperrors.NotFound("Order", nil)
	}

	for _, field := range []string{"orderNumber", "paymentRef"} {
		iter := r.client.Collection(ordersCollection).
			Where(field, "==", ref).
			Where("paymentType", "==", entity.OrderPaymentTypeEscrow).
			Limit(1).
			Documents(ctx)
		doc, err := iter.Next()
		iter.Stop()
		if err == iterator.Done {
			continue
		}
		if err != nil {
			return nil, err
		}
		return decodeOrder(doc)
	}
	return nil, apperrors.NotFound("Order", nil)
}

// UpsertForPayment runs in a transaction so concurrent completions of one
// payment end up with a single order. New orders get an id derived from
// the payment id.
func (r *firestoreOrderRepository) UpsertForPayment(ctx context.Context, p *entity.ResolvedPayment, orderStatus string) (*entity.Order, error) {
	var result *entity.Order

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()

		ref, err := r.findExisting(tx, p)
		if err != nil {
			return err
		}
		if ref != nil {
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			existing, err := decodeOrder(snap)
			if err != nil {
				return err
			}
			existing.Status = orderStatus
			existing.UpdatedAt = now
			result = existing
			return tx.Update(ref, []firestore.Update{
				{Path: "status", Value: orderStatus},
				{Path: "updatedAt", Value: now},
			})
		}

		amount, _ := p.GrossAmount.Float64()
		fee, _ := p.PlatformFee.Float64()
		od := orderDoc{
			ID:          "ord_" + p.ID,
			OrderNumber: p.OrderNumber,
			PaymentRef:  p.ID,
			PaymentType: string(p.Kind),
			BuyerID:     p.BuyerID,
			SellerID:    p.SellerID,
			ProductID:   p.ProductID,
			Amount:      amount,
			PlatformFee: fee,
			Currency:    p.Currency,
			Status:      orderStatus,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		result = od.toEntity()
		return tx.Set(r.client.Collection(ordersCollection).Doc(od.ID), od)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *firestoreOrderRepository) findExisting(tx *firestore.Transaction, p *entity.ResolvedPayment) (*firestore.DocumentRef, error) {
	coll := r.client.Collection(ordersCollection)
	if p.OrderID != "" {
		return coll.Doc(p.OrderID), nil
	}

	queries := []firestore.Query{coll.Where("paymentRef", "==", p.ID).Limit(1)}
	if p.OrderNumber != "" {
		queries = append(queries, coll.Where("orderNumber", "==", p.OrderNumber).Limit(1))
	}

	for _, q := range queries {
		iter := tx.Documents(q)
		doc, err := iter.Next()
		iter.Stop()
		if err == iterator.Done {
			continue
		}
		if err != nil {
			return nil, err
		}
		return doc.Ref, nil
	}
	return nil, nil
}

func decodeOrder(doc *firestore.DocumentSnapshot) (*entity.Order, error) {
	var od orderDoc
	if err := doc.DataTo(&od); err != nil {
		return nil, err
	}
	if od.ID == "" {
		od.ID = doc.Ref.ID
	}
	return od.toEntity(), nil
}
