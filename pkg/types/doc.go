// Package types defines the shared data structures passed between the
// pod, worker, and origin binaries and the coordination store.
package types
