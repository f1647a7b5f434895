package gojahost

import "sync"

// contextSlot models the "per-context embedder-data slot index" the
// original engine reserves for the current registry pointer (spec.md
// §6, "slot index 2"). goja has no embedder-data API, so the slot is
// simulated with an identity-keyed map from *Runtime to whatever
// the embedder stashed there (normally a *registry.Registry). The
// registry is a borrowed pointer: this package never frees it, and
// never hands it anywhere beyond the callbacks that look it up.
var (
	slotMu sync.RWMutex
	slots  = make(map[*Runtime]any)
)

// SetContextSlot stashes v (typically a *registry.Registry) against rt,
// to be retrieved later from an engine callback that only has access to
// the runtime (dynamic-import callbacks, synthetic-module evaluators).
func SetContextSlot(rt *Runtime, v any) {
	slotMu.Lock()
	defer slotMu.Unlock()
	slots[rt] = v
}

// ContextSlot retrieves the value stashed by SetContextSlot, or nil if
// none was ever set for rt.
func ContextSlot(rt *Runtime) any {
	slotMu.RLock()
	defer slotMu.RUnlock()
	return slots[rt]
}

// ClearContextSlot drops rt's slot, called when a runtime is torn down so
// the map doesn't grow without bound across long-lived embedders that
// create and discard many isolates.
func ClearContextSlot(rt *Runtime) {
	slotMu.Lock()
	defer slotMu.Unlock()
	delete(slots, rt)
}
