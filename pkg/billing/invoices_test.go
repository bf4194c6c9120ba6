package billing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/pkg/audit"
)

func invoiceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "subscription_id", "tenant_id", "invoice_number", "kind", "status",
		"subtotal_cents", "tax_rate", "tax_cents", "discount_cents", "total_cents", "currency",
		"issue_date", "due_date", "paid_at", "created_at", "updated_at",
	})
}

func addInvoiceRow(rows *sqlmock.Rows, id int64, status InvoiceStatus) *sqlmock.Rows {
	return addInvoiceRowKind(rows, id, InvoiceKindSubscription, status)
}

func addInvoiceRowKind(rows *sqlmock.Rows, id int64, kind InvoiceKind, status InvoiceStatus) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, int64(10), int64(1), "INV-202608-ABCD1234", string(kind), string(status),
		int64(2900), 0.0, int64(0), int64(0), int64(2900), "USD",
		now, now.AddDate(0, 0, 14), nil, now, now)
}

func TestIssueInvoiceItemsSumToSubtotal(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionActive, now.AddDate(0, 1, 0)))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(20, now, now))
	mock.ExpectQuery("INSERT INTO invoice_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectCommit()

	invoice, err := service.IssueInvoice(context.Background(), 10)
	require.NoError(t, err)

	var itemSum int64
	for _, item := range invoice.Items {
		itemSum += item.AmountCents
	}
	assert.Equal(t, invoice.SubtotalCents, itemSum)
	assert.Equal(t, invoice.SubtotalCents+invoice.TaxCents-invoice.DiscountCents, invoice.TotalCents)
	assert.Equal(t, InvoiceKindSubscription, invoice.Kind)
	assert.Equal(t, InvoiceOpen, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIssueInvoiceAppliesTax(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 10000, 0))
	service.cfg.TaxRatePercent = 20
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionActive, now.AddDate(0, 1, 0)))
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(20, now, now))
	mock.ExpectQuery("INSERT INTO invoice_items").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(30))
	mock.ExpectCommit()

	invoice, err := service.IssueInvoice(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, int64(10000), invoice.SubtotalCents)
	assert.Equal(t, int64(2000), invoice.TaxCents)
	assert.Equal(t, int64(12000), invoice.TotalCents)
}

func TestMarkInvoicePaid(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(20)).
		WillReturnRows(addInvoiceRow(invoiceRows(), 20, InvoiceOpen))
	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	invoice, err := service.MarkInvoicePaid(context.Background(), 9, 20)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, invoice.Status)
	assert.NotNil(t, invoice.PaidAt)
}

func TestMarkRenewalInvoicePaidExtendsSubscription(t *testing.T) {
	service, mock, recorder := newBillingService(t, monthlyPlan(2, 2900, 0))
	periodEnd := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(20)).
		WillReturnRows(addInvoiceRowKind(invoiceRows(), 20, InvoiceKindRenewal, InvoiceOpen))
	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM subscriptions WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(addSubscriptionRow(subscriptionRows(), 10, 1, SubscriptionActive, periodEnd))
	// New period picks up where the old one ended
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs(SubscriptionActive, periodEnd, periodEnd.AddDate(0, 1, 0), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	invoice, err := service.MarkInvoicePaid(context.Background(), 9, 20)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, invoice.Status)
	assert.NoError(t, mock.ExpectationsWereMet())

	events := recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTypeInvoicePaid, events[0].EventType)
	assert.Equal(t, audit.EventTypeSubscriptionRenew, events[1].EventType)
	assert.Equal(t, "ACTIVE", events[1].ToStatus)
}

func TestMarkSubscriptionInvoicePaidLeavesSubscription(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(20)).
		WillReturnRows(addInvoiceRow(invoiceRows(), 20, InvoiceOpen))
	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No subscription touch for an ad-hoc invoice
	mock.ExpectCommit()

	_, err := service.MarkInvoicePaid(context.Background(), 9, 20)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInvoicePaidIsIdempotent(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	// A settled renewal invoice returns as-is: no second extension
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(20)).
		WillReturnRows(addInvoiceRowKind(invoiceRows(), 20, InvoiceKindRenewal, InvoicePaid))
	mock.ExpectRollback()

	invoice, err := service.MarkInvoicePaid(context.Background(), 9, 20)
	require.NoError(t, err)
	assert.Equal(t, InvoicePaid, invoice.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkVoidInvoicePaidFails(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(20)).
		WillReturnRows(addInvoiceRow(invoiceRows(), 20, InvoiceVoid))
	mock.ExpectRollback()

	_, err := service.MarkInvoicePaid(context.Background(), 9, 20)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestVoidInvoice(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.VoidInvoice(context.Background(), 9, 20))
}

func TestVoidPaidInvoiceFails(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := service.VoidInvoice(context.Background(), 9, 20)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
}

func TestMarkOverdueInvoices(t *testing.T) {
	service, mock, _ := newBillingService(t, monthlyPlan(2, 2900, 0))

	mock.ExpectQuery("UPDATE invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "invoice_number"}).
			AddRow(20, 1, "INV-202608-AAAA1111").
			AddRow(21, 2, "INV-202608-BBBB2222"))

	count, err := service.MarkOverdueInvoices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestGenerateInvoiceNumber(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	number := generateInvoiceNumber(now)

	assert.True(t, strings.HasPrefix(number, "INV-202608-"))
	assert.Len(t, number, len("INV-202608-")+8)
	assert.NotEqual(t, number, generateInvoiceNumber(now))
}
