// Package environment identifies the deployment environment the process runs in
// and propagates it through context.Context and structured logs.
//
// The environment is the single switch that separates the permissive development
// behaviour of tenant resolution (allow-list fallback, simulated tenant databases)
// from the fail-closed production behaviour. Parse is deliberately strict about
// what counts as production: anything that normalises to "production" or "prod"
// is production, everything else is not.
//
// # Usage
//
//	env := environment.Parse(os.Getenv("NODE_ENV"))
//	if env.IsProduction() {
//		// fail closed
//	}
//
//	handler = environment.Middleware(env)(handler)
//
//	func h(w http.ResponseWriter, r *http.Request) {
//		if environment.IsProduction(r.Context()) { ... }
//	}
package environment
