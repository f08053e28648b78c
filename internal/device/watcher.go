package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"gantry/internal/logging"
	"gantry/internal/progress"
)

// Watcher listens for udev netlink events and publishes volume attach and
// detach notifications. Daemonless setups can poll the Lister instead; the
// watcher removes the need for udev rules invoking the CLI.
type Watcher struct {
	logger *slog.Logger
	hub    *progress.Hub

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewWatcher creates a hotplug watcher that publishes to the hub.
func NewWatcher(logger *slog.Logger, hub *progress.Hub) *Watcher {
	if hub == nil {
		hub = progress.NewHub(0)
	}
	return &Watcher{
		logger: logging.NewComponentLogger(logger, "volume-watcher"),
		hub:    hub,
	}
}

// Start begins listening for udev netlink events. A connect failure is
// non-fatal; volume discovery falls back to explicit listing.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("failed to connect to netlink socket; volume hotplug events unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "run with permission to open netlink sockets, or list volumes manually"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, quit)

	w.logger.Info("volume watcher started",
		logging.String(logging.FieldEventType, "volume_watcher_started"))
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("volume watcher stopped",
		logging.String(logging.FieldEventType, "volume_watcher_stopped"))
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, w.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			w.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"))
		}
	}
}

// buildMatcher selects block partition add/remove events:
// SUBSYSTEM=block, DEVTYPE=partition, ACTION=add|remove
func (w *Watcher) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVTYPE":   "partition",
		},
	})
	return rules
}

func (w *Watcher) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" {
		w.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj))
		return
	}

	kind := progress.KindVolumeAdded
	if uevent.Action == netlink.REMOVE {
		kind = progress.KindVolumeGone
	}

	w.logger.Info("volume hotplug event",
		logging.String(logging.FieldEventType, string(kind)),
		logging.String("device", devname),
		logging.String("action", string(uevent.Action)))

	w.hub.Publish(progress.Event{
		Kind:   kind,
		Volume: devname,
	})
}

func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	if len(parts) == 0 {
		return ""
	}
	return "/dev/" + parts[len(parts)-1]
}
