// Package session implements server-side sessions keyed by an encrypted
// cookie.
//
// The cookie carries only the record ID and, when renewal is enabled, a
// rotating token, sealed with AES-GCM by the cookie package. Everything else
// lives in a Store: the session data, flash queues, the optional user ID and
// CSRF token, the idle and absolute deadlines and per-row setting overrides.
//
// # Configuration
//
// Resolve turns a flat settings map (cookie_name, idle_timeout,
// extension_chance, ...) and the Capabilities of the storage schema into a
// Config. Capabilities decide which features exist and which settings rows may
// override; misconfiguration fails at startup.
//
//	cfg, err := session.Resolve(map[string]any{
//	    "idle_timeout":     "1800",
//	    "absolute_timeout": 86400,
//	}, session.CapIdle|session.CapAbsolute|session.CapUserID)
//
// # Request flow
//
// Manager.Middleware loads the session, hands it to the handler through the
// request context and saves it before the response starts. Expired records
// and records presented with a stale renewal token are deleted and replaced
// with a fresh session; the latter also fires the registered
// ViolationHandlers. New sessions are stored only once something is written.
//
//	mgr, err := session.New(store, codec, cfg)
//	http.Handle("/", mgr.Middleware(handler))
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    sess := session.MustFromContext(r.Context())
//	    sess.Set("theme", "dark")
//	}
//
// Idle expiry is extended on writes and otherwise according to
// extension_delay, extension_chance and extension_deadline, so most reads do
// not touch the store.
//
// # Cleanup
//
// A Reaper removes expired records in bulk. Deletion re-checks the deadline
// atomically, so a record extended concurrently survives.
//
// # Stores
//
// MemoryStore ships with the package; the pgstore and redisstore
// sub-packages provide persistent implementations.
package session
