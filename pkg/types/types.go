package types

// PodDescriptor is the attribute set a pod publishes to the coordination
// store on register and refreshes on every heartbeat tick.
type PodDescriptor struct {
	ID          string // host:port, stable for the process lifetime
	Host        string
	Port        int
	CacheDir    string
	Origin      string
	MaxConns    int
	LastSeenSec int64 // unix seconds, last heartbeat write
}

// FreshPod is a pod identity paired with the heartbeat score observed for
// it in a single snapshot read of the active-pods sorted set.
type FreshPod struct {
	ID    string
	Score float64 // unix seconds
}

// DownloadResult describes the outcome of one worker download invocation.
type DownloadResult struct {
	Path       string
	Dest       string
	ServedBy   string // pod id, or "origin" on fallback
	Digest     string
	DurationMs int64
}

// AttemptOutcome is the explicit result of one pod download attempt,
// replacing the reference source's exception-driven control flow with a
// small enumerated result.
type AttemptOutcome int

const (
	// AttemptOK means the pod served the file successfully.
	AttemptOK AttemptOutcome = iota
	// AttemptRetryOther means this pod could not serve but another may;
	// the worker should continue to the next candidate.
	AttemptRetryOther
)
