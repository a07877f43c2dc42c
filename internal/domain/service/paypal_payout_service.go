package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walletledger/internal/domain/entity"
	"walletledger/pkg/errors"
	"walletledger/pkg/logger"
)

const (
	PayPalProviderName = "paypal"
	PayPalSandboxURL   = "https://api-m.sandbox.paypal.com"
	PayPalLiveURL      = "https://api-m.paypal.com"
)

// PayPalPayoutService is the PayPal rail, talking to the Payouts REST API.
type PayPalPayoutService struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewPayPalPayoutService(clientID, clientSecret, baseURL string, log *zap.Logger) *PayPalPayoutService {
	if baseURL == "" {
		baseURL = PayPalSandboxURL
	}
	return &PayPalPayoutService{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger.OrNop(log).Named("paypal"),
	}
}

type paypalAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type paypalPayoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        paypalAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type paypalPayoutRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject"`
	} `json:"sender_batch_header"`
	Items []paypalPayoutItem `json:"items"`
}

type paypalBatchResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
	Items []struct {
		TransactionStatus string `json:"transaction_status"`
		Errors            *struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		} `json:"errors,omitempty"`
	} `json:"items,omitempty"`
}

type paypalErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
}

func (p *PayPalPayoutService) Name() string {
	return PayPalProviderName
}

func (p *PayPalPayoutService) CreatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	if req.Account == nil || req.Account.Email == "" {
		return nil, errors.InvalidAccount("PayPal account has no receiver email")
	}

	var body paypalPayoutRequest
	// the entry id keeps PayPal from paying the same withdrawal twice
	body.SenderBatchHeader.SenderBatchID = req.Reference
	if body.SenderBatchHeader.SenderBatchID == "" {
		body.SenderBatchHeader.SenderBatchID = uuid.NewString()
	}
	body.SenderBatchHeader.EmailSubject = "You have a payout"
	body.Items = []paypalPayoutItem{{
		RecipientType: "EMAIL",
		Amount: paypalAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: strings.ToUpper(req.Currency),
		},
		Receiver:     req.Account.Email,
		Note:         req.Description,
		SenderItemID: req.Reference,
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payout request: %v", err)
	}

	var batch paypalBatchResponse
	// replaying the same request id returns the original answer
	rejected, err := p.do(ctx, http.MethodPost, "/v1/payments/payouts", "payout-"+body.SenderBatchHeader.SenderBatchID, payload, &batch)
	if err != nil || rejected != nil {
		return rejected, err
	}

	p.logger.Info("payout batch created",
		zap.String("batch_id", batch.BatchHeader.PayoutBatchID),
		zap.String("entry_id", req.Reference),
		zap.String("status", batch.BatchHeader.BatchStatus))
	return paypalResult(&batch), nil
}

func (p *PayPalPayoutService) RetrievePayout(ctx context.Context, payoutID string, account *entity.PayoutAccount) (*PayoutResult, error) {
	var batch paypalBatchResponse
	rejected, err := p.do(ctx, http.MethodGet, "/v1/payments/payouts/"+url.PathEscape(payoutID), "", nil, &batch)
	if err != nil || rejected != nil {
		return rejected, err
	}
	return paypalResult(&batch), nil
}

// do sends an authenticated request. A 4xx answer comes back as an
// unsuccessful result, anything that looks like an outage as an error.
func (p *PayPalPayoutService) do(ctx context.Context, method, path, requestID string, payload []byte, out interface{}) (*PayoutResult, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if requestID != "" {
		httpReq.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.PayoutGatewayUnavailable(PayPalProviderName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.PayoutGatewayUnavailable(PayPalProviderName, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		p.resetToken()
		return nil, errors.PayoutGatewayUnavailable(PayPalProviderName, fmt.Errorf("paypal rejected access token"))
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		p.logger.Warn("paypal unavailable", zap.Int("status", resp.StatusCode), zap.String("body", string(body)))
		return nil, errors.PayoutGatewayUnavailable(PayPalProviderName, fmt.Errorf("paypal API status %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		var apiErr paypalErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Name == "" {
			apiErr.Name = http.StatusText(resp.StatusCode)
		}
		p.logger.Info("payout refused", zap.String("code", apiErr.Name), zap.String("debug_id", apiErr.DebugID))
		return &PayoutResult{
			Success:      false,
			Status:       PayoutStatusFailed,
			ErrorCode:    apiErr.Name,
			ErrorMessage: apiErr.Message,
		}, nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, errors.PayoutGatewayUnavailable(PayPalProviderName, fmt.Errorf("failed to parse response: %v", err))
	}
	return nil, nil
}

// token returns a cached OAuth access token, fetching a new one shortly
// before the old one expires.
func (p *PayPalPayoutService) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.expiresAt) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %v", err)
	}
	httpReq.SetBasicAuth(p.clientID, p.clientSecret)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.PayoutGatewayUnavailable(PayPalProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.PayoutGatewayUnavailable(PayPalProviderName, fmt.Errorf("paypal token endpoint status %d", resp.StatusCode))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", errors.PayoutGatewayUnavailable(PayPalProviderName, fmt.Errorf("failed to parse token: %v", err))
	}

	p.accessToken = tok.AccessToken
	p.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

func (p *PayPalPayoutService) resetToken() {
	p.mu.Lock()
	p.accessToken = ""
	p.mu.Unlock()
}

func paypalResult(batch *paypalBatchResponse) *PayoutResult {
	result := &PayoutResult{
		Success:  true,
		PayoutID: batch.BatchHeader.PayoutBatchID,
		Status:   paypalStatus(batch.BatchHeader.BatchStatus),
	}

	// a finished batch with a failed item is a failed payout
	for _, item := range batch.Items {
		switch strings.ToUpper(item.TransactionStatus) {
		case "FAILED", "RETURNED", "BLOCKED", "REFUNDED":
			result.Status = PayoutStatusFailed
			result.ErrorCode = item.TransactionStatus
			if item.Errors != nil {
				result.ErrorCode = item.Errors.Name
				result.ErrorMessage = item.Errors.Message
			}
		}
	}
	return result
}

func paypalStatus(batchStatus string) PayoutStatus {
	switch strings.ToUpper(batchStatus) {
	case "SUCCESS":
		return PayoutStatusPaid
	case "PROCESSING":
		return PayoutStatusInTransit
	case "DENIED":
		return PayoutStatusFailed
	case "CANCELED":
		return PayoutStatusCanceled
	default:
		return PayoutStatusPending
	}
}
