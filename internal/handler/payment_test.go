package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jardiel79162-commits/remixhub/internal/apperror"
	"github.com/jardiel79162-commits/remixhub/internal/handler"
	"github.com/jardiel79162-commits/remixhub/internal/mercadopago"
	"github.com/jardiel79162-commits/remixhub/internal/model"
	"github.com/jardiel79162-commits/remixhub/internal/service"
)

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*model.Payment
	nextID   int
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*model.Payment)}
}

func (f *fakePaymentRepo) Create(_ context.Context, p *model.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = fmt.Sprintf("pay-%d", f.nextID)
	p.CreatedAt = time.Now()
	if p.Status == "" {
		p.Status = model.PaymentStatusPending
	}
	stored := *p
	f.payments[p.ID] = &stored
	return nil
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id string) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id)
	}
	result := *p
	return &result, nil
}

func (f *fakePaymentRepo) SetMPPaymentID(_ context.Context, id, mpPaymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return apperror.NotFound("payment", id)
	}
	p.MPPaymentID = mpPaymentID
	return nil
}

func (f *fakePaymentRepo) SetStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return apperror.NotFound("payment", id)
	}
	p.Status = status
	return nil
}

func (f *fakePaymentRepo) FindNewestPending(_ context.Context, userID string, credits int) (*model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *model.Payment
	for _, p := range f.payments {
		if p.UserID != userID || p.CreditsPurchased != credits || p.Status != model.PaymentStatusPending {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	if newest == nil {
		return nil, apperror.NotFound("payment", "pending")
	}
	result := *newest
	return &result, nil
}

// newProviderStub serves the two Mercado Pago endpoints the client uses.
// lookupStatus controls what GET /v1/payments/{id} reports.
func newProviderStub(t *testing.T, lookupStatus string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/payments":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{
				"id": 777,
				"status": "pending",
				"point_of_interaction": {"transaction_data": {
					"qr_code": "pix-qr-payload",
					"qr_code_base64": "cGl4",
					"ticket_url": "https://mp.example/ticket"
				}}
			}`)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payments/"):
			// Echo back a reference matching pay-1 — the row the tests seed.
			fmt.Fprintf(w, `{"id": 777, "status": %q, "external_reference": "u1:5:pay-1"}`, lookupStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPaymentHandlerFixture(t *testing.T, lookupStatus string) (*handler.PaymentHandler, *fakePaymentRepo, *fakeUserRepo) {
	t.Helper()

	provider := newProviderStub(t, lookupStatus)
	payments := newFakePaymentRepo()
	users := newFakeUserRepo()
	users.add("u1", 0)

	svc := service.NewPaymentService(payments, users,
		mercadopago.NewWithBaseURL("test-token", provider.URL), quietLogger())
	return handler.NewPaymentHandler(svc, quietLogger()), payments, users
}

func TestPaymentHandler_Create(t *testing.T) {
	t.Run("valid checkout → 201 with QR data", func(t *testing.T) {
		h, payments, _ := newPaymentHandlerFixture(t, "pending")

		body := `{"credits": 5, "cpf": "123.456.789-01", "save_cpf": false}`
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, authedRequest(http.MethodPost, "/api/payments", body))

		assert.Equal(t, http.StatusCreated, rr.Code)

		var checkout service.PIXCheckout
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &checkout))
		assert.Equal(t, "pix-qr-payload", checkout.QRCode)
		assert.EqualValues(t, 777, checkout.MPPaymentID)

		row, err := payments.GetByID(context.Background(), checkout.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPending, row.Status)
	})

	t.Run("invalid credits → 400", func(t *testing.T) {
		h, _, _ := newPaymentHandlerFixture(t, "pending")

		rr := httptest.NewRecorder()
		h.HandleCreate(rr, authedRequest(http.MethodPost, "/api/payments", `{"credits": 0, "cpf": "12345678901"}`))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("anonymous → 401", func(t *testing.T) {
		h, _, _ := newPaymentHandlerFixture(t, "pending")

		req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewBufferString(`{"credits": 5}`))
		rr := httptest.NewRecorder()
		h.HandleCreate(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestPaymentHandler_Webhook(t *testing.T) {
	seedPending := func(t *testing.T, payments *fakePaymentRepo) *model.Payment {
		t.Helper()
		p := &model.Payment{UserID: "u1", CreditsPurchased: 5, AmountCents: 250}
		require.NoError(t, payments.Create(context.Background(), p))
		return p
	}

	t.Run("approved payment credits the user", func(t *testing.T) {
		h, payments, users := newPaymentHandlerFixture(t, "approved")
		p := seedPending(t, payments)

		body := `{"type": "payment", "data": {"id": 777}}`
		rr := httptest.NewRecorder()
		h.HandleWebhook(rr, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"ok": true}`, rr.Body.String())

		row, err := payments.GetByID(context.Background(), p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusApproved, row.Status)

		user, err := users.GetByID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 5, user.Credits)
	})

	t.Run("non-payment event acknowledged", func(t *testing.T) {
		h, _, _ := newPaymentHandlerFixture(t, "approved")

		body := `{"type": "plan", "data": {"id": "x"}}`
		rr := httptest.NewRecorder()
		h.HandleWebhook(rr, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("malformed body acknowledged — a retry can't fix it", func(t *testing.T) {
		h, _, _ := newPaymentHandlerFixture(t, "approved")

		rr := httptest.NewRecorder()
		h.HandleWebhook(rr, httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewBufferString(`{"type":`)))

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestPaymentHandler_Status(t *testing.T) {
	h, payments, _ := newPaymentHandlerFixture(t, "pending")
	p := &model.Payment{UserID: "u1", CreditsPurchased: 5, AmountCents: 250}
	require.NoError(t, payments.Create(context.Background(), p))
	require.NoError(t, payments.SetMPPaymentID(context.Background(), p.ID, "777"))

	req := authedRequest(http.MethodGet, "/api/payments/"+p.ID+"/status", "")
	req.SetPathValue("id", p.ID)
	rr := httptest.NewRecorder()
	h.HandleStatus(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status": "pending"}`, rr.Body.String())
}
