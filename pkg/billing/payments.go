package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/notifications"
)

const paymentColumns = `id, subscription_id, tenant_id, reference, amount_cents, currency, method, proof_ref,
	       status, verification_status, verified_by, verified_at, verification_notes, paid_at, created_at, updated_at`

// SubmitPayment records a manually-made payment against a subscription.
// The payment starts PENDING and waits for operator verification.
func (s *Service) SubmitPayment(ctx context.Context, actorID, subscriptionID, amountCents int64,
	method PaymentMethod, proofRef string) (*Payment, error) {

	if amountCents <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid payment method: %s", method)
	}

	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == SubscriptionCancelled {
		return nil, &ConflictError{
			Message: fmt.Sprintf("subscription %d is cancelled", subscriptionID),
		}
	}

	payment := &Payment{
		SubscriptionID: subscriptionID,
		TenantID:       sub.TenantID,
		Reference:      uuid.NewString(),
		AmountCents:    amountCents,
		Currency:       s.cfg.Currency,
		Method:         method,
		ProofRef:       proofRef,
		Status:         PaymentPending,
		Verification:   VerificationPending,
	}
	if payment.Currency == "" {
		payment.Currency = "USD"
	}

	query := `
		INSERT INTO payments (subscription_id, tenant_id, reference, amount_cents, currency, method, proof_ref,
		                      status, verification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		payment.SubscriptionID, payment.TenantID, payment.Reference,
		payment.AmountCents, payment.Currency, payment.Method, payment.ProofRef,
		payment.Status, payment.Verification,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to submit payment: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypePaymentSubmit,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &payment.TenantID,
		ResourceType: audit.ResourceTypePayment,
		ResourceID:   fmtID(payment.ID),
		ToStatus:     string(VerificationPending),
		Metadata: map[string]interface{}{
			"amount_cents": payment.AmountCents,
			"method":       string(payment.Method),
		},
	})
	if s.metrics != nil {
		s.metrics.PaymentsSubmittedTotal.Inc()
	}

	return payment, nil
}

// GetPayment retrieves a payment by ID
func (s *Service) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	payment, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "payment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListPendingPayments lists payments awaiting verification, oldest first
func (s *Service) ListPendingPayments(ctx context.Context, limit int) ([]*Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE verification_status = 'PENDING'
		ORDER BY created_at
		LIMIT $1
	`, paymentColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	return payments, rows.Err()
}

// VerifyPayment applies an operator decision to a pending payment. The
// decision is terminal: verifying an already-decided payment fails with
// InvalidTransitionError no matter which way the second decision goes,
// so an approval can never be applied twice. Approval of a TRIAL or
// EXPIRED subscription reactivates it for one billing interval counted
// from the approval time, not from the old period end.
func (s *Service) VerifyPayment(ctx context.Context, actorID, paymentID int64, approve bool, notes string) (*Payment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1 FOR UPDATE", paymentColumns)
	payment, err := scanPayment(tx.QueryRowContext(ctx, query, paymentID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "payment", ID: paymentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}

	decision := VerificationRejected
	if approve {
		decision = VerificationApproved
	}

	if payment.Verification.IsTerminal() {
		err := &InvalidTransitionError{PaymentID: paymentID, Status: payment.Verification}
		s.recordVerifyRefusal(ctx, actorID, payment, decision, err.Error())
		return nil, err
	}

	now := time.Now().UTC()

	if approve {
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET verification_status = $1, status = 'COMPLETED', verified_by = $2, verified_at = $3,
			    verification_notes = $4, paid_at = $3, updated_at = NOW()
			WHERE id = $5
		`, VerificationApproved, actorID, now, notes, paymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to approve payment: %w", err)
		}

		if err := s.extendSubscriptionTx(ctx, tx, payment.SubscriptionID, now); err != nil {
			if IsConflict(err) {
				s.recordVerifyRefusal(ctx, actorID, payment, decision, err.Error())
			}
			return nil, err
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE payments
			SET verification_status = $1, status = 'FAILED', verified_by = $2, verified_at = $3,
			    verification_notes = $4, updated_at = NOW()
			WHERE id = $5
		`, VerificationRejected, actorID, now, notes, paymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reject payment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit verification: %w", err)
	}

	payment.Verification = decision
	payment.VerifiedBy = &actorID
	payment.VerifiedAt = &now
	payment.VerificationNotes = notes
	if approve {
		payment.Status = PaymentCompleted
		payment.PaidAt = &now
	} else {
		payment.Status = PaymentFailed
	}

	eventType := audit.EventTypePaymentReject
	notificationType := notifications.TypePaymentRejected
	if approve {
		eventType = audit.EventTypePaymentApprove
		notificationType = notifications.TypePaymentApproved
	}

	s.record(ctx, &audit.Event{
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &payment.TenantID,
		ResourceType: audit.ResourceTypePayment,
		ResourceID:   fmtID(paymentID),
		FromStatus:   string(VerificationPending),
		ToStatus:     string(decision),
	})
	if s.metrics != nil {
		s.metrics.PaymentsVerifiedTotal.WithLabelValues(string(decision)).Inc()
	}
	s.notify(ctx, notifications.Notification{
		Type:     notificationType,
		TenantID: payment.TenantID,
		Title:    fmt.Sprintf("Payment %s", decision),
		Body:     notes,
	})

	return payment, nil
}

// recordVerifyRefusal audits a verification attempt that was turned
// away, keeping the trail complete for refused decisions too
func (s *Service) recordVerifyRefusal(ctx context.Context, actorID int64, payment *Payment,
	decision VerificationStatus, reason string) {

	eventType := audit.EventTypePaymentReject
	if decision == VerificationApproved {
		eventType = audit.EventTypePaymentApprove
	}
	s.record(ctx, &audit.Event{
		EventType:    eventType,
		Status:       audit.EventStatusFailure,
		ActorID:      &actorID,
		TenantID:     &payment.TenantID,
		ResourceType: audit.ResourceTypePayment,
		ResourceID:   fmtID(payment.ID),
		FromStatus:   string(payment.Verification),
		Metadata: map[string]interface{}{
			"reason": reason,
		},
	})
}

// extendSubscriptionTx reactivates a TRIAL or EXPIRED subscription for
// one billing interval starting at the approval time. A lapsed period
// does not carry over: the new period begins now. An ACTIVE subscription
// mid-period is left untouched so approval can never shorten or rewrite
// a period that is still running.
func (s *Service) extendSubscriptionTx(ctx context.Context, tx *sql.Tx, subscriptionID int64, from time.Time) error {
	query := fmt.Sprintf("SELECT %s FROM subscriptions WHERE id = $1 FOR UPDATE", subscriptionColumns)
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
	if err == sql.ErrNoRows {
		return &NotFoundError{Kind: "subscription", ID: subscriptionID}
	}
	if err != nil {
		return fmt.Errorf("failed to lock subscription: %w", err)
	}

	if sub.Status == SubscriptionCancelled {
		return &ConflictError{
			Message: fmt.Sprintf("subscription %d is cancelled", subscriptionID),
		}
	}
	if sub.Status == SubscriptionActive {
		return nil
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	newEnd := plan.Interval.Period(from)
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, current_period_start = $2, current_period_end = $3, updated_at = NOW()
		WHERE id = $4
	`, SubscriptionActive, from, newEnd, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to extend subscription: %w", err)
	}

	return nil
}

// scanPayment scans a payment from a database row
func scanPayment(scanner interface {
	Scan(dest ...interface{}) error
}) (*Payment, error) {
	payment := &Payment{}
	var verifiedBy sql.NullInt64
	var verifiedAt, paidAt sql.NullTime

	err := scanner.Scan(
		&payment.ID, &payment.SubscriptionID, &payment.TenantID, &payment.Reference,
		&payment.AmountCents, &payment.Currency, &payment.Method, &payment.ProofRef,
		&payment.Status, &payment.Verification, &verifiedBy, &verifiedAt, &payment.VerificationNotes,
		&paidAt, &payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if verifiedBy.Valid {
		id := verifiedBy.Int64
		payment.VerifiedBy = &id
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		payment.VerifiedAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		payment.PaidAt = &t
	}

	return payment, nil
}
