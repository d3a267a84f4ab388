// Package logger builds *slog.Logger values with functional options and
// injects request-scoped attributes from context.Context.
//
// New selects a text or JSON handler, applies static attributes and, when
// extractors are registered, appends the attributes each ContextExtractor
// finds in the record context. The first extractor yielding a key wins. The attribute helpers (Error,
// SessionID, Decision, Component and friends) keep key names consistent
// across packages; helpers taking optional values return an empty Attr for
// nil so they can be passed unconditionally:
//
//	log := logger.New(
//	    logger.WithEnvironment(os.Getenv("APP_ENV"), "sessiongc"),
//	    logger.WithContextExtractors(session.LogExtractor()),
//	)
//	log.InfoContext(ctx, "expired sessions removed", logger.Error(err))
package logger
