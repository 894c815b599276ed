/*
Package podserver implements a pod's HTTP cache surface: GET/HEAD
/files/<rel>, /healthz, and /metrics. A miss is filled from origin (gated
by the coordination store's preheat authorization) and promoted to the
cache directory before being served with standard static-file semantics.

Grounded on original_source/pod_cache/pod.py's CacheRequestHandler, with
the preheat gate, origin fetch, and health/metrics endpoints rebuilt
around net/http instead of http.server.SimpleHTTPRequestHandler.
*/
package podserver
