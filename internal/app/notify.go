package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"scraperbot/internal/updater"
	logx "scraperbot/pkg/logx"
)

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		a.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd while the update loop is alive. It returns at once
// when the unit has no WatchdogSec.
func (a *App) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			switch a.upd.State() {
			case updater.StateRunning, updater.StateSleeping:
				a.sdNotify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

func (a *App) onCycle(rep updater.Report) {
	a.sdNotify(fmt.Sprintf("STATUS=last cycle %s: %d links fetched, %d failed, %d posts delivered",
		time.Now().Format(time.DateTime), rep.Fetched, rep.Failed, rep.Delivered))
}
