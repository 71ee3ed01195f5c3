// Package logger builds *slog.Logger instances for the billing services and
// keeps attribute names consistent across packages.
//
// New wraps the chosen slog handler in LogHandlerDecorator, which runs the
// registered ContextExtractor callbacks on every record. This is how
// correlation ids travel from the HTTP layer into queue workers and the
// billing engine without passing a logger around per request.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "billingd"),
//	    logger.WithLevelName(os.Getenv("LOG_LEVEL")),
//	    logger.WithContextExtractors(correlation.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "subscription renewed",
//	    logger.SubscriptionID(sub.ID),
//	    logger.Transition(string(before), string(sub.Status)),
//	)
//
// Attribute helpers such as Error and SubscriptionID return an empty
// slog.Attr for nil input, so they can be passed unconditionally.
package logger
