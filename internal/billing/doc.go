// Package billing tracks VoltHome Pro subscriptions purchased through
// RuStore. Purchases are verified against the RuStore public API (or a
// built-in stub when billing is disabled) and upserted into the
// subscriptions table keyed by order id, so a re-sent confirmation never
// duplicates a subscription.
//
// Billing is read-only with respect to sync: a user's plan gates nothing
// inside the sync engine itself.
package billing
