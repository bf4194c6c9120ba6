package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/authz"
	"github.com/taskhive/taskhive/pkg/billing"
	"github.com/taskhive/taskhive/pkg/config"
	"github.com/taskhive/taskhive/pkg/observability"
	"github.com/taskhive/taskhive/pkg/plans"
)

func newBillingTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	recorder := audit.NewMemoryRecorder()
	service := billing.NewService(db, plans.NewPostgresService(db), recorder, nil, nil, nil,
		config.BillingConfig{Currency: "USD", InvoiceDueDays: 14})

	server := NewServer(Services{
		Billing:  service,
		Recorder: recorder,
		Checker:  authz.NewRoleChecker(),
	}, observability.NewLogger(observability.DebugLevel, nil), nil)

	return server, mock
}

func pendingPaymentRow() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "subscription_id", "tenant_id", "reference", "amount_cents", "currency", "method", "proof_ref",
		"status", "verification_status", "verified_by", "verified_at", "verification_notes", "paid_at",
		"created_at", "updated_at",
	}).AddRow(100, int64(10), int64(1), "ref-123", int64(2900), "USD", "BANK_TRANSFER", "wire-889",
		"PENDING", "PENDING", nil, nil, "", nil, now, now)
}

func TestVerifyPaymentRejectEndpoint(t *testing.T) {
	server, mock := newBillingTestServer(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(pendingPaymentRow())
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	body, _ := json.Marshal(map[string]interface{}{"approve": false, "notes": "amount mismatch"})
	req := httptest.NewRequest("POST", "/api/v1/payments/100/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	require.Equal(t, http.StatusOK, rec.Code)

	var payment billing.Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payment))
	assert.Equal(t, billing.VerificationRejected, payment.Verification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPaymentForbiddenForTenantAdmin(t *testing.T) {
	server, _ := newBillingTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/payments/100/verify", bytes.NewReader([]byte(`{"approve":true}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asTenantAdmin(req, "1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestVerifyPaymentConflictEndpoint(t *testing.T) {
	server, mock := newBillingTestServer(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "subscription_id", "tenant_id", "reference", "amount_cents", "currency", "method", "proof_ref",
			"status", "verification_status", "verified_by", "verified_at", "verification_notes", "paid_at",
			"created_at", "updated_at",
		}).AddRow(100, int64(10), int64(1), "ref-123", int64(2900), "USD", "BANK_TRANSFER", "",
			"FAILED", "REJECTED", nil, nil, "", nil, now, now))
	mock.ExpectRollback()

	req := httptest.NewRequest("POST", "/api/v1/payments/100/verify", bytes.NewReader([]byte(`{"approve":true}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListPendingPaymentsEndpoint(t *testing.T) {
	server, mock := newBillingTestServer(t)

	mock.ExpectQuery("SELECT (.+) FROM payments\\s+WHERE verification_status = 'PENDING'").
		WillReturnRows(pendingPaymentRow())

	req := httptest.NewRequest("GET", "/api/v1/payments/pending", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asSuperAdmin(req))

	require.Equal(t, http.StatusOK, rec.Code)

	var payments []*billing.Payment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payments))
	assert.Len(t, payments, 1)
}

func TestCreateSubscriptionRequiresPlan(t *testing.T) {
	server, _ := newBillingTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/tenants/1/subscriptions", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, asTenantAdmin(req, "1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
