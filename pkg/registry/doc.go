/*
Package registry implements a pod's presence lifecycle: writing its
descriptor into the coordination store on startup, refreshing it on a
fixed heartbeat period, and removing it on shutdown.

The worker-side half (pruning stale entries, reading the active set) lives
in pkg/coordinator's FreshPods/RemoveGhost; this package only owns the
pod's own lifecycle.
*/
package registry
