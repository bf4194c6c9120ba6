package billing

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/notifications"
	"github.com/taskhive/taskhive/pkg/plans"
)

const invoiceColumns = `id, subscription_id, tenant_id, invoice_number, kind, status,
	       subtotal_cents, tax_rate, tax_cents, discount_cents, total_cents, currency,
	       issue_date, due_date, paid_at, created_at, updated_at`

// IssueInvoice creates an OPEN invoice for a subscription's current plan
// price
func (s *Service) IssueInvoice(ctx context.Context, subscriptionID int64) (*Invoice, error) {
	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	invoice, err := s.issueInvoiceTx(ctx, tx, sub, plan, InvoiceKindSubscription)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	return invoice, nil
}

// issueInvoiceTx writes an invoice and its line items inside the caller's
// transaction. The subtotal always equals the sum of the item amounts.
func (s *Service) issueInvoiceTx(ctx context.Context, tx *sql.Tx, sub *Subscription,
	plan *plans.Plan, kind InvoiceKind) (*Invoice, error) {

	now := time.Now().UTC()
	dueDays := s.cfg.InvoiceDueDays
	if dueDays <= 0 {
		dueDays = 14
	}

	items := []InvoiceItem{
		{
			Description:    fmt.Sprintf("%s plan %s (%s)", plan.Name, strings.ToLower(string(kind)), strings.ToLower(string(plan.Interval))),
			Quantity:       1,
			UnitPriceCents: plan.PriceCents,
			AmountCents:    plan.PriceCents,
		},
	}

	var subtotal int64
	for _, item := range items {
		subtotal += item.AmountCents
	}

	taxCents := int64(math.Round(float64(subtotal) * s.cfg.TaxRatePercent / 100))
	invoice := &Invoice{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		InvoiceNumber:  generateInvoiceNumber(now),
		Kind:           kind,
		Status:         InvoiceOpen,
		SubtotalCents:  subtotal,
		TaxRate:        s.cfg.TaxRatePercent,
		TaxCents:       taxCents,
		TotalCents:     subtotal + taxCents,
		Currency:       plan.Currency,
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, dueDays),
	}

	query := `
		INSERT INTO invoices (subscription_id, tenant_id, invoice_number, kind, status,
		                      subtotal_cents, tax_rate, tax_cents, discount_cents, total_cents, currency,
		                      issue_date, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowContext(ctx, query,
		invoice.SubscriptionID, invoice.TenantID, invoice.InvoiceNumber, invoice.Kind, invoice.Status,
		invoice.SubtotalCents, invoice.TaxRate, invoice.TaxCents, invoice.DiscountCents,
		invoice.TotalCents, invoice.Currency, invoice.IssueDate, invoice.DueDate,
	).Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	for i := range items {
		items[i].InvoiceID = invoice.ID
		err := tx.QueryRowContext(ctx, `
			INSERT INTO invoice_items (invoice_id, description, quantity, unit_price_cents, amount_cents)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, items[i].InvoiceID, items[i].Description, items[i].Quantity,
			items[i].UnitPriceCents, items[i].AmountCents,
		).Scan(&items[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create invoice item: %w", err)
		}
	}
	invoice.Items = items

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeInvoiceIssue,
		Status:       audit.EventStatusSuccess,
		TenantID:     &invoice.TenantID,
		ResourceType: audit.ResourceTypeInvoice,
		ResourceID:   invoice.InvoiceNumber,
		ToStatus:     string(InvoiceOpen),
	})
	s.notify(ctx, notifications.Notification{
		Type:     notifications.TypeInvoiceIssued,
		TenantID: invoice.TenantID,
		Title:    fmt.Sprintf("Invoice %s issued", invoice.InvoiceNumber),
		Body:     fmt.Sprintf("Amount due: %d %s", invoice.TotalCents, invoice.Currency),
	})

	return invoice, nil
}

// GetInvoice retrieves an invoice with its line items
func (s *Service) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1", invoiceColumns)
	invoice, err := scanInvoice(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "invoice", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price_cents, amount_cents
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description,
			&item.Quantity, &item.UnitPriceCents, &item.AmountCents); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		invoice.Items = append(invoice.Items, item)
	}

	return invoice, rows.Err()
}

// ListInvoices lists a tenant's invoices, newest first
func (s *Service) ListInvoices(ctx context.Context, tenantID int64) ([]*Invoice, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM invoices WHERE tenant_id = $1 ORDER BY issue_date DESC
	`, invoiceColumns)

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	return invoices, rows.Err()
}

// MarkInvoicePaid settles an open or overdue invoice. Settling a renewal
// invoice is what actually extends the subscription: the period grows by
// one billing interval from its previous end. An already-paid invoice is
// returned as-is, so settlement can never extend the same period twice.
func (s *Service) MarkInvoicePaid(ctx context.Context, actorID, invoiceID int64) (*Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1 FOR UPDATE", invoiceColumns)
	invoice, err := scanInvoice(tx.QueryRowContext(ctx, query, invoiceID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "invoice", ID: invoiceID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock invoice: %w", err)
	}

	if invoice.Status == InvoicePaid {
		return invoice, nil
	}
	if invoice.Status == InvoiceVoid {
		return nil, &ConflictError{Message: fmt.Sprintf("invoice %d is void", invoiceID)}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE invoices SET status = $1, paid_at = $2, updated_at = NOW() WHERE id = $3
	`, InvoicePaid, now, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	var renewedFrom SubscriptionStatus
	if invoice.Kind == InvoiceKindRenewal {
		renewedFrom, err = s.settleRenewalTx(ctx, tx, invoice.SubscriptionID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice payment: %w", err)
	}

	invoice.Status = InvoicePaid
	invoice.PaidAt = &now

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeInvoicePaid,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &invoice.TenantID,
		ResourceType: audit.ResourceTypeInvoice,
		ResourceID:   invoice.InvoiceNumber,
		FromStatus:   string(InvoiceOpen),
		ToStatus:     string(InvoicePaid),
	})

	if invoice.Kind == InvoiceKindRenewal {
		s.record(ctx, &audit.Event{
			EventType:    audit.EventTypeSubscriptionRenew,
			Status:       audit.EventStatusSuccess,
			ActorID:      &actorID,
			TenantID:     &invoice.TenantID,
			ResourceType: audit.ResourceTypeSubscription,
			ResourceID:   fmtID(invoice.SubscriptionID),
			FromStatus:   string(renewedFrom),
			ToStatus:     string(SubscriptionActive),
			Metadata: map[string]interface{}{
				"invoice_number": invoice.InvoiceNumber,
			},
		})
		s.observeRenewal("settled")
	}

	return invoice, nil
}

// settleRenewalTx extends the subscription behind a settled renewal
// invoice by one billing interval from its previous period end. It
// returns the status the subscription held before the extension.
func (s *Service) settleRenewalTx(ctx context.Context, tx *sql.Tx, subscriptionID int64) (SubscriptionStatus, error) {
	query := fmt.Sprintf("SELECT %s FROM subscriptions WHERE id = $1 FOR UPDATE", subscriptionColumns)
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Kind: "subscription", ID: subscriptionID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock subscription: %w", err)
	}

	if sub.Status == SubscriptionCancelled {
		return "", &ConflictError{
			Message: fmt.Sprintf("subscription %d is cancelled", subscriptionID),
		}
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return "", err
	}

	newEnd := plan.Interval.Period(sub.CurrentPeriodEnd)
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3, updated_at = NOW()
		WHERE id = $4
	`, SubscriptionActive, sub.CurrentPeriodEnd, newEnd, subscriptionID)
	if err != nil {
		return "", fmt.Errorf("failed to extend subscription: %w", err)
	}

	return sub.Status, nil
}

// VoidInvoice cancels an unpaid invoice
func (s *Service) VoidInvoice(ctx context.Context, actorID, invoiceID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('OPEN', 'OVERDUE')
	`, InvoiceVoid, invoiceID)
	if err != nil {
		return fmt.Errorf("failed to void invoice: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &ConflictError{Message: fmt.Sprintf("invoice %d is not open", invoiceID)}
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeInvoiceVoid,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		ResourceType: audit.ResourceTypeInvoice,
		ResourceID:   fmtID(invoiceID),
		ToStatus:     string(InvoiceVoid),
	})

	return nil
}

// MarkOverdueInvoices flags open invoices past their due date. Like the
// expiry sweep, re-running it is a no-op.
func (s *Service) MarkOverdueInvoices(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE invoices
		SET status = $1, updated_at = NOW()
		WHERE status = 'OPEN' AND due_date < NOW()
		RETURNING id, tenant_id, invoice_number
	`, InvoiceOverdue)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue invoices: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, tenantID int64
		var number string
		if err := rows.Scan(&id, &tenantID, &number); err != nil {
			return count, fmt.Errorf("failed to scan overdue invoice: %w", err)
		}
		count++

		s.notify(ctx, notifications.Notification{
			Type:     notifications.TypeInvoiceOverdue,
			TenantID: tenantID,
			Title:    fmt.Sprintf("Invoice %s is overdue", number),
			Body:     "Please settle the outstanding amount to keep your subscription active",
		})
	}

	return count, rows.Err()
}

// generateInvoiceNumber builds a unique, human-sortable invoice number
func generateInvoiceNumber(t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", t.Format("200601"), suffix)
}

// scanInvoice scans an invoice from a database row
func scanInvoice(scanner interface {
	Scan(dest ...interface{}) error
}) (*Invoice, error) {
	invoice := &Invoice{}
	var paidAt sql.NullTime

	err := scanner.Scan(
		&invoice.ID, &invoice.SubscriptionID, &invoice.TenantID, &invoice.InvoiceNumber,
		&invoice.Kind, &invoice.Status, &invoice.SubtotalCents, &invoice.TaxRate, &invoice.TaxCents,
		&invoice.DiscountCents, &invoice.TotalCents, &invoice.Currency,
		&invoice.IssueDate, &invoice.DueDate, &paidAt,
		&invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		t := paidAt.Time
		invoice.PaidAt = &t
	}

	return invoice, nil
}
