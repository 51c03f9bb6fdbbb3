// Package handlers contains reusable HTTP building blocks: health checks,
// actor authentication and generic middleware.
//
// # Health Checks
//
// The HealthChecker interface allows registering named checks that are
// executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// # Actor Authentication
//
// ActorAuth reads X-Actor-ID and X-API-Key, verifies the key against the
// stored bcrypt hash and places the access.Actor in the request context:
//
//	auth := handlers.NewActorAuth(actors, log)
//	router.Use(auth.Middleware)
//
// Downstream handlers read it back with access.FromContext.
//
// # Middleware
//
//	h := handlers.ChainHandler(router,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(20<<20),
//	)
package handlers
