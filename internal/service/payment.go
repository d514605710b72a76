package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/mercadopago"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/repository"
)

// Pricing and limits for the credit store.
const (
	UnitPriceCents = 50 // R$ 0,50 per credit
	MinCredits     = 1
	MaxCredits     = 10000

	// paymentTTL is how long a pending PIX payment stays redeemable.
	paymentTTL = time.Hour
)

var nonDigits = regexp.MustCompile(`\D`)

// PaymentService handles PIX credit purchases: creating the payment with the
// provider, reconciling webhook notifications, and polling for approval.
//
// Crediting is a read-then-write on the user's balance (same accounting
// model as the remix deduction) — there is no transaction spanning the
// payment row and the balance.
type PaymentService struct {
	payments repository.PaymentRepository
	users    repository.UserRepository
	mp       *mercadopago.Client
	logger   *slog.Logger
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(
	payments repository.PaymentRepository,
	users repository.UserRepository,
	mp *mercadopago.Client,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		payments: payments,
		users:    users,
		mp:       mp,
		logger:   logger,
	}
}

// PIXCheckout is what the store UI needs to render the QR code.
type PIXCheckout struct {
	PaymentID    string `json:"payment_id"`
	MPPaymentID  int64  `json:"mp_payment_id"`
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

// CreatePayment creates a pending payment row and a PIX payment with the
// provider, returning the QR data.
//
// The external reference is "userID:credits:paymentID" — the strict key the
// webhook tries first before falling back to the fuzzy pending-payment match.
func (s *PaymentService) CreatePayment(ctx context.Context, userID string, credits int, cpf string, saveCPF bool) (*PIXCheckout, error) {
	if credits < MinCredits || credits > MaxCredits {
		return nil, apperror.ValidationFailed("credits",
			fmt.Sprintf("Quantidade de créditos inválida (%d-%d)", MinCredits, MaxCredits))
	}

	cleanCPF := nonDigits.ReplaceAllString(cpf, "")
	if len(cleanCPF) < 11 {
		return nil, apperror.ValidationFailed("cpf", "CPF inválido")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/payment: loading user: %w", err)
	}

	if saveCPF {
		if err := s.users.SetCPF(ctx, userID, cleanCPF); err != nil {
			return nil, fmt.Errorf("service/payment: saving cpf: %w", err)
		}
	}

	payment := &model.Payment{
		UserID:           userID,
		CreditsPurchased: credits,
		AmountCents:      int64(credits) * UnitPriceCents,
		Status:           model.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("service/payment: creating payment record: %w", err)
	}

	plural := ""
	if credits > 1 {
		plural = "s"
	}
	mpPayment, err := s.mp.CreatePayment(ctx, mercadopago.PaymentRequest{
		TransactionAmount: float64(payment.AmountCents) / 100,
		Description:       fmt.Sprintf("%d crédito%s RemixHub", credits, plural),
		PaymentMethodID:   "pix",
		Payer: mercadopago.Payer{
			Email:          user.Email,
			Identification: mercadopago.Identification{Type: "CPF", Number: cleanCPF},
		},
		ExternalReference: fmt.Sprintf("%s:%d:%s", userID, credits, payment.ID),
	}, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("service/payment: provider rejected payment: %w", err)
	}

	mpID := strconv.FormatInt(mpPayment.ID, 10)
	if err := s.payments.SetMPPaymentID(ctx, payment.ID, mpID); err != nil {
		return nil, fmt.Errorf("service/payment: saving provider id: %w", err)
	}

	checkout := &PIXCheckout{
		PaymentID:   payment.ID,
		MPPaymentID: mpPayment.ID,
	}
	if poi := mpPayment.PointOfInteraction; poi != nil && poi.TransactionData != nil {
		checkout.QRCode = poi.TransactionData.QRCode
		checkout.QRCodeBase64 = poi.TransactionData.QRCodeBase64
		checkout.TicketURL = poi.TransactionData.TicketURL
	}

	s.logger.Info("pix payment created",
		slog.String("paymentID", payment.ID),
		slog.Int("credits", credits),
	)

	return checkout, nil
}

// WebhookNotification is the body Mercado Pago POSTs to our webhook.
type WebhookNotification struct {
	Type string `json:"type"`
	Data struct {
		ID any `json:"id"` // provider sends number or string depending on event
	} `json:"data"`
}

// HandleWebhook processes a payment notification: fetch the payment from the
// provider, and if approved, mark our row approved and credit the user.
//
// RECONCILIATION:
// The external reference "userID:credits:paymentID" is parsed first; if the
// row it names is not found or not pending, we fall back to the NEWEST
// pending payment for (userID, credits). Two pending payments for the same
// quantity could be conflated by that fallback. Known fragility.
//
// The webhook is unauthenticated by design (the provider calls it), so it
// trusts nothing in the body beyond the payment ID — all state comes from
// re-fetching the payment from the provider's API.
func (s *PaymentService) HandleWebhook(ctx context.Context, n WebhookNotification) error {
	if n.Type != "payment" || n.Data.ID == nil {
		return nil // not a payment event — acknowledge and ignore
	}

	mpID := fmt.Sprint(n.Data.ID)
	mpPayment, err := s.mp.GetPayment(ctx, mpID)
	if err != nil {
		return fmt.Errorf("service/payment: fetching provider payment %s: %w", mpID, err)
	}

	if mpPayment.Status != "approved" {
		return nil
	}

	userID, credits, paymentID, ok := parseExternalReference(mpPayment.ExternalReference)
	if !ok {
		return fmt.Errorf("service/payment: malformed external reference %q", mpPayment.ExternalReference)
	}

	payment, err := s.resolvePending(ctx, paymentID, userID, credits)
	if err != nil {
		return err
	}
	if payment == nil {
		// Already approved (webhook retry, or the status poller won the
		// race). Crediting again would double-pay.
		return nil
	}

	if err := s.payments.SetMPPaymentID(ctx, payment.ID, mpID); err != nil {
		return fmt.Errorf("service/payment: saving provider id: %w", err)
	}

	return s.approveAndCredit(ctx, payment)
}

// CheckStatus returns the payment's status, polling the provider if the row
// is still pending and crediting the user if it turns out approved.
func (s *PaymentService) CheckStatus(ctx context.Context, userID, paymentID string) (string, error) {
	payment, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return "", err
	}

	if payment.Status != model.PaymentStatusPending || payment.MPPaymentID == "" {
		return payment.Status, nil
	}

	mpPayment, err := s.mp.GetPayment(ctx, payment.MPPaymentID)
	if err != nil {
		return "", fmt.Errorf("service/payment: polling provider: %w", err)
	}

	if mpPayment.Status != "approved" {
		return payment.Status, nil
	}

	if err := s.approveAndCredit(ctx, payment); err != nil {
		return "", err
	}

	return model.PaymentStatusApproved, nil
}

// RecoverPayment re-fetches the QR data for a pending payment so the user
// can resume an interrupted checkout. Payments older than an hour are
// expired instead.
func (s *PaymentService) RecoverPayment(ctx context.Context, userID, paymentID string) (*PIXCheckout, error) {
	payment, err := s.getOwnedPayment(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}

	if payment.Status != model.PaymentStatusPending {
		return nil, apperror.ValidationFailed("payment", "Pagamento não encontrado ou já processado")
	}

	if time.Since(payment.CreatedAt) > paymentTTL {
		if err := s.payments.SetStatus(ctx, payment.ID, model.PaymentStatusExpired); err != nil {
			return nil, fmt.Errorf("service/payment: expiring payment: %w", err)
		}
		return nil, apperror.ValidationFailed("payment", "Pagamento expirado")
	}

	if payment.MPPaymentID == "" {
		return nil, apperror.ValidationFailed("payment", "Pagamento sem ID do Mercado Pago")
	}

	mpPayment, err := s.mp.GetPayment(ctx, payment.MPPaymentID)
	if err != nil {
		return nil, fmt.Errorf("service/payment: fetching provider payment: %w", err)
	}

	// Paid while the user was away — settle instead of re-showing the QR.
	if mpPayment.Status == "approved" {
		if err := s.approveAndCredit(ctx, payment); err != nil {
			return nil, err
		}
		return nil, apperror.Conflict("payment", payment.ID)
	}

	checkout := &PIXCheckout{
		PaymentID:   payment.ID,
		MPPaymentID: mpPayment.ID,
	}
	if poi := mpPayment.PointOfInteraction; poi != nil && poi.TransactionData != nil {
		checkout.QRCode = poi.TransactionData.QRCode
		checkout.QRCodeBase64 = poi.TransactionData.QRCodeBase64
		checkout.TicketURL = poi.TransactionData.TicketURL
	}

	return checkout, nil
}

// resolvePending finds the pending payment row to approve. Returns (nil, nil)
// when the payment was already settled.
func (s *PaymentService) resolvePending(ctx context.Context, paymentID, userID string, credits int) (*model.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err == nil {
		if payment.Status == model.PaymentStatusPending {
			return payment, nil
		}
		return nil, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/payment: loading payment %s: %w", paymentID, err)
	}

	// Fuzzy fallback — see HandleWebhook doc comment.
	payment, err = s.payments.FindNewestPending(ctx, userID, credits)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/payment: finding pending payment: %w", err)
	}

	return payment, nil
}

// approveAndCredit marks the payment approved and adds the purchased credits
// to the user's balance (read-then-write).
func (s *PaymentService) approveAndCredit(ctx context.Context, payment *model.Payment) error {
	if err := s.payments.SetStatus(ctx, payment.ID, model.PaymentStatusApproved); err != nil {
		return fmt.Errorf("service/payment: approving payment %s: %w", payment.ID, err)
	}

	user, err := s.users.GetByID(ctx, payment.UserID)
	if err != nil {
		return fmt.Errorf("service/payment: loading user %s: %w", payment.UserID, err)
	}

	if err := s.users.SetCredits(ctx, payment.UserID, user.Credits+payment.CreditsPurchased); err != nil {
		return fmt.Errorf("service/payment: crediting user %s: %w", payment.UserID, err)
	}

	s.logger.Info("payment approved",
		slog.String("paymentID", payment.ID),
		slog.Int("credits", payment.CreditsPurchased),
	)

	return nil
}

// getOwnedPayment loads a payment and verifies it belongs to the caller.
func (s *PaymentService) getOwnedPayment(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, apperror.ValidationFailed("payment_id", "ID do pagamento não informado")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperror.Forbidden("payment belongs to another user")
	}

	return payment, nil
}

// parseExternalReference splits "userID:credits:paymentID".
func parseExternalReference(ref string) (userID string, credits int, paymentID string, ok bool) {
	parts := strings.Split(ref, ":")
	if len(parts) != 3 {
		return "", 0, "", false
	}
	credits, err := strconv.Atoi(parts[1])
	if err != nil || parts[0] == "" || parts[2] == "" {
		return "", 0, "", false
	}
	return parts[0], credits, parts[2], true
}
