package registry

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cuemby/podcache/pkg/coordinator"
	"github.com/cuemby/podcache/pkg/log"
	"github.com/cuemby/podcache/pkg/types"
	"github.com/rs/zerolog"
)

// Heartbeater owns a pod's registration lifecycle: register on Start,
// refresh on a ticker every coordinator.HeartbeatPeriod, unregister on
// Stop. Heartbeat failures are logged and swallowed: the worker-side
// liveness probe against /healthz is authoritative, not this loop.
type Heartbeater struct {
	store *coordinator.Store
	desc  *types.PodDescriptor
	log   zerolog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New constructs a Heartbeater for the given pod descriptor.
func New(store *coordinator.Store, desc *types.PodDescriptor) *Heartbeater {
	return &Heartbeater{
		store:  store,
		desc:   desc,
		log:    log.WithComponent("registry"),
		stopCh: make(chan struct{}),
	}
}

// Start registers the pod and launches the background heartbeat
// goroutine. Returns an error only if the initial registration fails;
// the caller decides whether that's fatal.
func (h *Heartbeater) Start(ctx context.Context) error {
	now := time.Now()
	if err := h.store.RegisterPod(ctx, h.desc, now); err != nil {
		return err
	}
	go h.loop()
	return nil
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(coordinator.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), coordinator.HeartbeatPeriod)
			if err := h.store.Heartbeat(ctx, h.desc, time.Now()); err != nil {
				h.log.Warn().Err(err).Str("pod_id", h.desc.ID).Msg("heartbeat failed")
			}
			cancel()
		case <-h.stopCh:
			return
		}
	}
}

// Stop halts the heartbeat loop and unregisters the pod. Safe to call
// once; subsequent calls are no-ops.
func (h *Heartbeater) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.mu.Unlock()

	return h.store.UnregisterPod(ctx, h.desc.ID)
}

// DetectOutboundIP returns the local address Go would use to reach a
// well-known external host, without sending any packet (UDP dial just
// resolves a route). Falls back to loopback if the lookup fails, mirroring
// pod.py's get_ip(). The pod command always uses it to form its
// host:port identity.
func DetectOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "127.0.0.1"
	}
	return addr.IP.String()
}
