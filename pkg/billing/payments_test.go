package billing

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
)

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "subscription_id", "tenant_id", "reference", "amount_cents", "currency", "method", "proof_ref",
		"status", "verification_status", "verified_by", "verified_at", "verification_notes", "paid_at",
		"created_at", "updated_at",
	})
}

func addPaymentRow(rows *sqlmock.Rows, id int64, verification VerificationStatus) *sqlmock.Rows {
	now := time.Now()
	status := PaymentPending
	switch verification {
	case VerificationApproved:
		status = PaymentCompleted
	case VerificationRejected:
		status = PaymentFailed
	}
	return rows.AddRow(id, int64(10), int64(1), "ref-123", int64(2900), "USD", "BANK_TRANSFER", "wire-889",
		string(status), string(verification), nil, nil, "", nil, now, now)
}

func TestSubmitPayment(t *testing.T) {
	service, mock, recorder := newBillingService(t, monthlyPlan(2, 2900, 0))
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionExpired, now))
	mock.ExpectQuery("INSERT INTO payments").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(100, now, now))

	payment, err := service.SubmitPayment(context.Background(), 9, 10, 2900, MethodBankTransfer, "wire-889")
	require.NoError(t, err)

	assert.Equal(t, PaymentPending, payment.Status)
	assert.Equal(t, VerificationPending, payment.Verification)
	assert.NotEmpty(t, payment.Reference)
	assert.Equal(t, "USD", payment.Currency)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypePaymentSubmit, events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitPaymentValidation(t *testing.T) {
	service, _, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	_, err := service.SubmitPayment(context.Background(), 9, 10, 0, MethodCard, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be positive")

	_, err = service.SubmitPayment(context.Background(), 9, 10, 100, PaymentMethod("CASH"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid payment method")
}

func TestSubmitPaymentCancelledSubscription(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionCancelled, time.Now()))

	_, err := service.SubmitPayment(context.Background(), 9, 10, 2900, MethodCard, "")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestVerifyPaymentApproveExtendsSubscription(t *testing.T) {
	service, mock, recorder := newBillingService(t, monthlyPlan(2, 2900, 0))

	// Subscription expired a week ago; approval must start the new
	// period at approval time, not at the lapsed period end.
	lapsedEnd := time.Now().AddDate(0, 0, -7)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationPending))
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionExpired, lapsedEnd))
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(SubscriptionActive, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment, err := service.VerifyPayment(context.Background(), 9, 100, true, "verified wire transfer")
	require.NoError(t, err)

	assert.Equal(t, VerificationApproved, payment.Verification)
	assert.Equal(t, PaymentCompleted, payment.Status)
	require.NotNil(t, payment.VerifiedBy)
	assert.Equal(t, int64(9), *payment.VerifiedBy)
	assert.NotNil(t, payment.PaidAt)

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypePaymentApprove, events[0].EventType)
	assert.Equal(t, "APPROVED", events[0].ToStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPaymentReject(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationPending))
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No subscription update on rejection
	mock.ExpectCommit()

	payment, err := service.VerifyPayment(context.Background(), 9, 100, false, "amount mismatch")
	require.NoError(t, err)
	assert.Equal(t, VerificationRejected, payment.Verification)
	assert.Equal(t, PaymentFailed, payment.Status)
	assert.Nil(t, payment.PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyApprovedPaymentAgainFails(t *testing.T) {
	service, mock, recorder := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationApproved))
	mock.ExpectRollback()

	// Repeating the same decision must fail too: the payment writes no
	// update and the subscription is never extended a second time.
	_, err := service.VerifyPayment(context.Background(), 9, 100, true, "")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.Contains(t, err.Error(), "already APPROVED")
	assert.NoError(t, mock.ExpectationsWereMet())

	events := recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventStatusFailure, events[0].Status)
}

func TestVerifyPaymentReversalFails(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationRejected))
	mock.ExpectRollback()

	_, err := service.VerifyPayment(context.Background(), 9, 100, true, "")
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.Contains(t, err.Error(), "already REJECTED")
}

func TestVerifyPaymentApproveActiveSubscriptionKeepsPeriod(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationPending))
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Mid-period ACTIVE subscription: the running period stays as it is
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionActive, time.Now().AddDate(0, 0, 20)))
	mock.ExpectCommit()

	payment, err := service.VerifyPayment(context.Background(), 9, 100, true, "early payment")
	require.NoError(t, err)
	assert.Equal(t, VerificationApproved, payment.Verification)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPaymentNotFound(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(404)).
		WillReturnRows(paymentRows())
	mock.ExpectRollback()

	_, err := service.VerifyPayment(context.Background(), 9, 404, true, "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestVerifyPaymentApproveCancelledSubscriptionFails(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(100)).
		WillReturnRows(addPaymentRow(paymentRows(), 100, VerificationPending))
	mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionCancelled, time.Now()))
	mock.ExpectRollback()

	_, err := service.VerifyPayment(context.Background(), 9, 100, true, "")
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}
