// Package billing manages subscriptions, manual payment verification and
// invoices. A tenant holds at most one live (TRIAL or ACTIVE)
// subscription at a time. Renewal issues an invoice; settling that
// invoice is what extends the period. Payments are submitted with a
// proof reference and verified by a platform operator; approving one
// reactivates a lapsed subscription for one billing interval counted
// from the moment of approval, and verification decisions are final.
package billing
