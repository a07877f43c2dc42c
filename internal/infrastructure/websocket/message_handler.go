package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/internal/domain/service"
	"walletledger/internal/infrastructure/metrics"
)

const (
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
	MessageTypePaymentReceived = "payment_received"
)

type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type PaymentReceivedData struct {
	PaymentID    string          `json:"payment_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	ProductID    string          `json:"product_id,omitempty"`
	ProductTitle string          `json:"product_title,omitempty"`
	BuyerName    string          `json:"buyer_name,omitempty"`
	OrderNumber  string          `json:"order_number,omitempty"`
}

var _ service.Notifier = (*Manager)(nil)

// NotifyPaymentReceived pushes the seller's net amount to every open
// connection of the seller. An offline seller is not an error.
func (m *Manager) NotifyPaymentReceived(ctx context.Context, payment *entity.ResolvedPayment, buyer, seller *entity.User, product *entity.Product) error {
	data := PaymentReceivedData{
		PaymentID:   payment.ID,
		Amount:      payment.SellerAmount(),
		Currency:    payment.Currency,
		ProductID:   payment.ProductID,
		OrderNumber: payment.OrderNumber,
	}
	if product != nil {
		data.ProductTitle = product.Title
	}
	if buyer != nil {
		data.BuyerName = buyer.DisplayName()
	}

	sellerID := payment.SellerID
	if seller != nil && seller.ID != "" {
		sellerID = seller.ID
	}

	body, err := json.Marshal(WSMessage{
		Type:      MessageTypePaymentReceived,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	if m.SendToUser(sellerID, body) == 0 {
		metrics.NotificationsTotal.WithLabelValues(MessageTypePaymentReceived, "offline").Inc()
		m.logger.Debug("seller not connected", zap.String("seller_id", sellerID), zap.String("payment_id", payment.ID))
		return nil
	}
	metrics.NotificationsTotal.WithLabelValues(MessageTypePaymentReceived, "delivered").Inc()
	return nil
}

// HandleClientMessage answers the few messages a client may send.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var wsMessage WSMessage
	if err := json.Unmarshal(messageBytes, &wsMessage); err != nil {
		m.sendToClient(client, WSMessage{Type: MessageTypeError, Data: map[string]string{"message": "Invalid message format"}})
		return
	}

	switch wsMessage.Type {
	case MessageTypePing:
		m.sendToClient(client, WSMessage{Type: MessageTypePong, Data: map[string]string{"status": "alive"}})
	default:
		m.sendToClient(client, WSMessage{Type: MessageTypeError, Data: map[string]string{"message": "Unknown message type"}})
	}
}

func (m *Manager) sendToClient(client *Client, msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if _, ok := m.clients[client.UserID][client]; !ok {
		return
	}
	select {
	case client.Send <- body:
	default:
	}
}
