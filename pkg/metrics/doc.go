/*
Package metrics exposes the Prometheus series this module publishes:
pod-side cache request outcomes and origin fetch results, and worker-side
download outcomes and per-pod attempt results. Handler() serves the
standard exposition format at /metrics on the pod's HTTP server (and on
its separate --metrics-addr listener when one is set); the worker runs
no HTTP server of its own.
*/
package metrics
