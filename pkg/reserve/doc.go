/*
Package reserve implements a Redis-backed token-bucket rate limiter for
origin fetches, grounded on the reference source's downloader package
(original_source/downloader/redis_rate_limiter.py), which sketches a
generic token-bucket decorator around Redis but never wires it to
pod.py's origin fetch path. This module completes that wiring: the pod
HTTP cache handler (pkg/podserver) calls Allow before streaming a miss
from origin, bounding how often any one pod hammers the origin server
during a stampede.

This sits alongside, not in place of, the bounded-capacity reservation
in pkg/coordinator (busy semaphore admission/release), which is
unrelated and untouched.
*/
package reserve
