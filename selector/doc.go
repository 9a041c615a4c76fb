// Package selector picks a transport conduit per outbound call.
//
// A TargetSelector asks a load-balance strategy for an address, opens a
// conduit to it with the initiator registered for the address scheme, and
// reuses that conduit for the whole call (including retries) until Complete.
// The FailOverSelector adds an allow-list of failures on which a call moves
// on to an address it has not tried yet.
//
// Example:
//
//	strategy := loadbalance.NewRoundRobin(serviceGroup)
//	sel := selector.NewFailOver(strategy, []selector.Matcher{selector.MatchError(syscall.ECONNREFUSED)},
//	    selector.WithInitiator(selector.NewHTTPInitiator(nil)))
//	err := sel.Invoke(ctx, selector.NewCall(), func(ctx context.Context, c selector.Conduit) error {
//	    req, _ := c.(*selector.HTTPConduit).NewRequest(ctx, http.MethodGet, "/orders", nil)
//	    ...
//	})
package selector
