// Package systemd reports service state to systemd (Type=notify units).
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown began.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Reloading brackets a config reload; call done when it finished.
func Reloading() (done func()) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReloading)
	return func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
}

// Status sets the free-form status line shown by systemctl status.
func Status(s string) { _, _ = daemon.SdNotify(false, "STATUS="+s) }

// Watchdog pings the systemd watchdog at half its interval until ctx is done
// or healthy reports an error. It returns immediately when the watchdog is
// not enabled for this unit.
func Watchdog(ctx context.Context, healthy func() error) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil {
				if err := healthy(); err != nil {
					// Skip the ping; systemd restarts us after the interval.
					continue
				}
			}
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
