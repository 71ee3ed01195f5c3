// Package api exposes the billing engine over HTTP with a chi router.
//
// Subscription, plan and webhook review routes answer with a JSON envelope
// {"data": ..., "error": {...}}; the processor webhook endpoint answers with
// the flat acknowledgement processors expect. Domain errors are mapped to
// status codes in one place, see statusFor.
//
//	r := api.NewRouter(subs, plans, hooks,
//		api.WithLogger(log),
//		api.WithMetrics(m),
//		api.WithReadinessChecks(httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)}),
//	)
//
// Monetary amounts are minor units. Every amount field has a sibling
// *_formatted string in major units derived from the currency scale.
package api
