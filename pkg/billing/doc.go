// Package billing reads the product catalog and the caller's subscription.
//
// # Overview
//
// The catalog is three layers deep: a product offers plans through
// product_plans, each product plan has one price per billing interval, and
// each plan grants entitlements. Service exposes:
//
//   - Intervals: active billing intervals in display order
//   - ProductPlans: a product's active plans with their prices
//   - AvailablePlans: the public plans a visitor can pick at sign-up,
//     with prices (default first) and entitlements
//   - CurrentSubscription: the organization's active subscription
//
// AvailablePlans accepts either the product UUID or its client_id, and
// fetches prices and entitlements for every plan concurrently.
//
// Payment accounts and invoices are read-only here; no payment provider is
// called.
package billing
