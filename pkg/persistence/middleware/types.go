// Package middleware wraps a contribution ledger with storage-side behavior.
package middleware

import "github.com/aretw0/mpcgate/pkg/ports"

// Middleware allows wrapping a ContributionLedger to add behavior.
type Middleware func(ports.ContributionLedger) ports.ContributionLedger

// Chain applies mws to next, the first one ending up outermost.
func Chain(next ports.ContributionLedger, mws ...Middleware) ports.ContributionLedger {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}
