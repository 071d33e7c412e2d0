package regcache

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths; see hooks/async for a buffered wrapper.
type Hooks interface {
	// A registered key turned out to be gone in the backend and was pruned
	// from the registry. origin ∈ {"get", "refresh", "delete", "cleanup"}.
	LazyPrune(scopedKey, origin string)

	// Persisting a namespace's registry into the backend failed. The
	// in-memory registry still holds the change; only the mirrored copy
	// lags.
	RegistrySaveError(namespace string, err error)

	// A backend operation failed at the facade boundary.
	// op ∈ {"put", "fetch", "remove", "wipe"}.
	BackendError(op, scopedKey string, err error)

	// A snapshot dump finished. keys is the number of keys recorded.
	DumpSucceeded(path string, keys int)
	DumpFailed(path string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LazyPrune(string, string)          {}
func (NopHooks) RegistrySaveError(string, error)   {}
func (NopHooks) BackendError(string, string, error) {}
func (NopHooks) DumpSucceeded(string, int)         {}
func (NopHooks) DumpFailed(string, error)          {}
