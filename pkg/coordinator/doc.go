/*
Package coordinator wraps the Redis client used as the shared coordination
store described in the system design: pod presence, descriptors, busy
semaphores, preheat sets, and digest records.

# Architecture

The pod registry, the pod server and the worker scheduler take a
*coordinator.Store and talk to Redis only through the methods here, so
the key layout and script bodies stay in one place. The one exception is
pkg/reserve's origin rate limiter, which runs its own script on the raw
*redis.Client obtained from Store.Client(). pkg/replica and pkg/digest
are pure computation and do not touch the store.

	┌─────────────────────────────────────────────────────────┐
	│                     coordinator.Store                    │
	│  pods:active (ZSET)   pod:<id> (HASH)  pod:<id>:busy (SET)│
	│  preheat:<h> (SET)    preheat:<h>:lock (STRING)           │
	│  md5:<path> (STRING)                                      │
	└───────────────────────┬───────────────────────────────────┘
	                        │
	                        ▼
	                  github.com/redis/go-redis/v9

# Degraded mode

Callers that can tolerate the store being unreachable (the pod's
authorization check) should treat a returned error as "no information
available" and fail open rather than propagating it as fatal. Callers
that cannot tolerate it (everything on the worker path) propagate the
error.
*/
package coordinator
