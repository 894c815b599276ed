/*
Package worker implements the client-side download scheduler: given a
logical path, it discovers fresh pods from the coordination store, orders
them by consistent hash, ensures the preheat set is elected, and trials
each candidate pod (health probe, reservation, GET) before falling back
to the origin server. On completion it verifies the downloaded file's
MD5 digest against the coordination store's recorded value.

Grounded on original_source/pod_cache/worker.py, restructured around
explicit error returns and a types.AttemptOutcome enum in place of the
reference's string-sentinel control flow.
*/
package worker
