// Package matching derives matches from the swipe ledger. The Detector runs
// after every swipe (synchronously in the API and again from swipe.recorded
// in the matcher process) and is idempotent: at most one match exists per
// session and restaurant.
package matching
