package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskhive/taskhive/pkg/audit"
	"github.com/taskhive/taskhive/pkg/notifications"
)

const subscriptionColumns = `id, tenant_id, plan_id, status, current_period_start, current_period_end,
	       auto_renew, cancelled_at, trial_start, trial_end, created_at, updated_at`

// CreateSubscription subscribes a tenant to a plan. The tenant must not
// be REJECTED and must not already hold a live subscription. Plans with a
// trial period start in TRIAL; the rest start ACTIVE for one billing
// interval.
func (s *Service) CreateSubscription(ctx context.Context, actorID, tenantID, planID int64, autoRenew bool) (*Subscription, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the tenant row so concurrent creates for the same tenant
	// serialize on the live-subscription check below.
	var tenantStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tenants WHERE id = $1 FOR UPDATE`, tenantID).
		Scan(&tenantStatus)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "tenant", ID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock tenant: %w", err)
	}
	if tenantStatus == "REJECTED" {
		return nil, &ConflictError{Message: fmt.Sprintf("tenant %d is rejected", tenantID)}
	}

	var existingID int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('TRIAL', 'ACTIVE')
		LIMIT 1
	`, tenantID).Scan(&existingID)
	if err == nil {
		return nil, &ConflictError{
			Message: fmt.Sprintf("tenant %d already has a live subscription (%d)", tenantID, existingID),
		}
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check live subscriptions: %w", err)
	}

	now := time.Now().UTC()
	sub := &Subscription{
		TenantID:           tenantID,
		PlanID:             planID,
		AutoRenew:          autoRenew,
		CurrentPeriodStart: now,
	}

	if plan.TrialDays > 0 {
		sub.Status = SubscriptionTrial
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.CurrentPeriodEnd = trialEnd
		sub.TrialStart = &now
		sub.TrialEnd = &trialEnd
	} else {
		sub.Status = SubscriptionActive
		sub.CurrentPeriodEnd = plan.Interval.Period(now)
	}

	query := `
		INSERT INTO subscriptions (tenant_id, plan_id, status, current_period_start, current_period_end,
		                           auto_renew, trial_start, trial_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		sub.TenantID, sub.PlanID, sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.AutoRenew, sub.TrialStart, sub.TrialEnd,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeSubscriptionCreate,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &tenantID,
		ResourceType: audit.ResourceTypeSubscription,
		ResourceID:   fmtID(sub.ID),
		ToStatus:     string(sub.Status),
	})
	if s.metrics != nil {
		s.metrics.SubscriptionsCreatedTotal.WithLabelValues(string(sub.Status)).Inc()
	}
	s.notify(ctx, notifications.Notification{
		Type:     notifications.TypeSubscriptionCreated,
		TenantID: tenantID,
		Title:    "Subscription created",
		Body:     fmt.Sprintf("Subscribed to plan %s", plan.Name),
	})

	return sub, nil
}

// GetSubscription retrieves a subscription by ID
func (s *Service) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	query := fmt.Sprintf("SELECT %s FROM subscriptions WHERE id = $1", subscriptionColumns)
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "subscription", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetLiveSubscription returns the tenant's TRIAL or ACTIVE subscription,
// or a NotFoundError when there is none
func (s *Service) GetLiveSubscription(ctx context.Context, tenantID int64) (*Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('TRIAL', 'ACTIVE')
		ORDER BY created_at DESC
		LIMIT 1
	`, subscriptionColumns)
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "live subscription for tenant", ID: tenantID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get live subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptions lists a tenant's subscriptions, newest first
func (s *Service) ListSubscriptions(ctx context.Context, tenantID int64) ([]*Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions WHERE tenant_id = $1 ORDER BY created_at DESC
	`, subscriptionColumns)
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// CancelSubscription moves a live subscription to CANCELLED. The tenant
// immediately falls back to the no-plan limits; renewal and payment
// approval are no longer possible.
func (s *Service) CancelSubscription(ctx context.Context, actorID, subscriptionID int64) (*Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM subscriptions WHERE id = $1 FOR UPDATE", subscriptionColumns)
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "subscription", ID: subscriptionID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	if sub.Status.IsTerminal() {
		return nil, &ConflictError{
			Message: fmt.Sprintf("subscription %d is already %s", subscriptionID, sub.Status),
		}
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, cancelled_at = $2, auto_renew = false, updated_at = NOW()
		WHERE id = $3
	`, SubscriptionCancelled, now, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	from := sub.Status
	sub.Status = SubscriptionCancelled
	sub.CancelledAt = &now
	sub.AutoRenew = false

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeSubscriptionCancel,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &sub.TenantID,
		ResourceType: audit.ResourceTypeSubscription,
		ResourceID:   fmtID(subscriptionID),
		FromStatus:   string(from),
		ToStatus:     string(SubscriptionCancelled),
	})

	return sub, nil
}

// RenewSubscription issues the invoice for a subscription's next billing
// period. Renewal requires a live subscription with auto-renew on whose
// current period has ended; anything else fails with RenewalError. The
// period itself is only extended when the renewal invoice settles, via
// MarkInvoicePaid.
func (s *Service) RenewSubscription(ctx context.Context, actorID, subscriptionID int64) (*Subscription, *Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("SELECT %s FROM subscriptions WHERE id = $1 FOR UPDATE", subscriptionColumns)
	sub, err := scanSubscription(tx.QueryRowContext(ctx, query, subscriptionID))
	if err == sql.ErrNoRows {
		return nil, nil, &NotFoundError{Kind: "subscription", ID: subscriptionID}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock subscription: %w", err)
	}

	now := time.Now().UTC()
	if !sub.Status.IsLive() {
		s.observeRenewal("denied")
		return nil, nil, &RenewalError{SubscriptionID: subscriptionID, Reason: fmt.Sprintf("status is %s", sub.Status)}
	}
	if !sub.AutoRenew {
		s.observeRenewal("denied")
		return nil, nil, &RenewalError{SubscriptionID: subscriptionID, Reason: "auto-renew is disabled"}
	}
	if now.Before(sub.CurrentPeriodEnd) {
		s.observeRenewal("denied")
		return nil, nil, &RenewalError{
			SubscriptionID: subscriptionID,
			Reason:         fmt.Sprintf("current period runs until %s", sub.CurrentPeriodEnd.Format(time.RFC3339)),
		}
	}

	// One unsettled renewal invoice at a time, so repeated sweeps do not
	// stack up bills for the same period.
	var pendingNumber string
	err = tx.QueryRowContext(ctx, `
		SELECT invoice_number FROM invoices
		WHERE subscription_id = $1 AND kind = 'RENEWAL' AND status IN ('OPEN', 'OVERDUE')
		LIMIT 1
	`, subscriptionID).Scan(&pendingNumber)
	if err == nil {
		s.observeRenewal("denied")
		return nil, nil, &RenewalError{
			SubscriptionID: subscriptionID,
			Reason:         fmt.Sprintf("renewal invoice %s is awaiting settlement", pendingNumber),
		}
	}
	if err != sql.ErrNoRows {
		s.observeRenewal("error")
		return nil, nil, fmt.Errorf("failed to check pending renewal invoices: %w", err)
	}

	plan, err := s.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		s.observeRenewal("error")
		return nil, nil, err
	}

	invoice, err := s.issueInvoiceTx(ctx, tx, sub, plan, InvoiceKindRenewal)
	if err != nil {
		s.observeRenewal("error")
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		s.observeRenewal("error")
		return nil, nil, fmt.Errorf("failed to commit renewal: %w", err)
	}

	s.record(ctx, &audit.Event{
		EventType:    audit.EventTypeSubscriptionRenew,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actorID,
		TenantID:     &sub.TenantID,
		ResourceType: audit.ResourceTypeSubscription,
		ResourceID:   fmtID(subscriptionID),
		FromStatus:   string(sub.Status),
		Metadata: map[string]interface{}{
			"invoice_number": invoice.InvoiceNumber,
		},
	})
	s.observeRenewal("requested")

	return sub, invoice, nil
}

// RenewDueSubscriptions issues renewal invoices for auto-renewing
// subscriptions whose period has ended. Subscriptions that already carry
// an unsettled renewal invoice are skipped, so the sweep can run as
// often as it likes.
func (s *Service) RenewDueSubscriptions(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.SweepBatchSize
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM subscriptions
		WHERE status IN ('TRIAL', 'ACTIVE') AND auto_renew = true AND current_period_end < NOW()
		ORDER BY current_period_end
		LIMIT $1
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	defer rows.Close()

	var due []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to scan due subscription: %w", err)
		}
		due = append(due, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating due subscriptions: %w", err)
	}

	renewed := 0
	for _, id := range due {
		if _, _, err := s.RenewSubscription(ctx, 0, id); err != nil {
			// Awaiting-settlement and concurrent-change denials are
			// expected here; anything else surfaces.
			if IsRenewalError(err) {
				continue
			}
			return renewed, err
		}
		renewed++
	}

	return renewed, nil
}

// ExpireDueSubscriptions transitions live subscriptions whose period has
// ended and whose auto-renew is off to EXPIRED. Auto-renewing
// subscriptions are left for the renewal pass instead. The sweep is
// idempotent: expired rows no longer match the predicate, so re-running
// it is a no-op.
func (s *Service) ExpireDueSubscriptions(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.SweepBatchSize
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	query := `
		UPDATE subscriptions
		SET status = $1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM subscriptions
			WHERE status IN ('TRIAL', 'ACTIVE') AND auto_renew = false AND current_period_end < NOW()
			ORDER BY current_period_end
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, tenant_id, status
	`

	rows, err := s.db.QueryContext(ctx, query, SubscriptionExpired, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	defer rows.Close()

	type expired struct {
		id       int64
		tenantID int64
	}
	var swept []expired
	for rows.Next() {
		var e expired
		var status string
		if err := rows.Scan(&e.id, &e.tenantID, &status); err != nil {
			return 0, fmt.Errorf("failed to scan expired subscription: %w", err)
		}
		swept = append(swept, e)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating expired subscriptions: %w", err)
	}

	for _, e := range swept {
		s.record(ctx, &audit.Event{
			EventType:    audit.EventTypeSubscriptionExpire,
			Status:       audit.EventStatusSuccess,
			TenantID:     int64Ptr(e.tenantID),
			ResourceType: audit.ResourceTypeSubscription,
			ResourceID:   fmtID(e.id),
			ToStatus:     string(SubscriptionExpired),
		})
		if s.metrics != nil {
			s.metrics.SubscriptionsExpiredTotal.Inc()
		}
		s.notify(ctx, notifications.Notification{
			Type:     notifications.TypeSubscriptionExpired,
			TenantID: e.tenantID,
			Title:    "Subscription expired",
			Body:     "Your subscription period has ended; plan limits no longer apply",
		})
	}

	return len(swept), nil
}

// ListExpiringSoon returns live subscriptions whose period ends within
// the given window, for advance notice
func (s *Service) ListExpiringSoon(ctx context.Context, within time.Duration) ([]*Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status IN ('TRIAL', 'ACTIVE')
		  AND current_period_end BETWEEN NOW() AND NOW() + $1::interval
		ORDER BY current_period_end
	`, subscriptionColumns)

	rows, err := s.db.QueryContext(ctx, query, fmt.Sprintf("%d seconds", int(within.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]*Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// NotifyExpiring queues an advance warning for a subscription nearing
// its period end
func (s *Service) NotifyExpiring(ctx context.Context, sub *Subscription) {
	s.notify(ctx, notifications.Notification{
		Type:     notifications.TypeSubscriptionExpiring,
		TenantID: sub.TenantID,
		Title:    "Subscription expiring soon",
		Body:     fmt.Sprintf("Subscription %d expires on %s", sub.ID, sub.CurrentPeriodEnd.Format("2006-01-02")),
		Metadata: map[string]interface{}{
			"subscription_id":    sub.ID,
			"current_period_end": sub.CurrentPeriodEnd,
		},
		CreatedAt: time.Now(),
	})
}

func (s *Service) observeRenewal(outcome string) {
	if s.metrics != nil {
		s.metrics.RenewalsTotal.WithLabelValues(outcome).Inc()
	}
}

// scanSubscription scans a subscription from a database row
func scanSubscription(scanner interface {
	Scan(dest ...interface{}) error
}) (*Subscription, error) {
	sub := &Subscription{}
	var cancelledAt, trialStart, trialEnd sql.NullTime

	err := scanner.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.AutoRenew, &cancelledAt, &trialStart, &trialEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cancelledAt.Valid {
		t := cancelledAt.Time
		sub.CancelledAt = &t
	}
	if trialStart.Valid {
		t := trialStart.Time
		sub.TrialStart = &t
	}
	if trialEnd.Valid {
		t := trialEnd.Time
		sub.TrialEnd = &t
	}

	return sub, nil
}
