package app

import (
	"context"
	"strings"

	"kwbot/internal/config"
	"kwbot/internal/eventbus"
	logx "kwbot/pkg/logx"
	"kwbot/pkg/systemd"
)

// reloadLoop applies published configs until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the live-reloadable sections of next into the running
// components. Sections that need a restart are only reported.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	done := systemd.Reloading()
	defer done()

	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	if prev != nil && prev.CacheEnabled() != next.CacheEnabled() {
		a.log.Warn("alerts.cache changed; restart required for changes to take effect")
	}

	if a.logs != nil {
		a.logs.Apply(mapLogConfig(next))
	}
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.notif.Apply(mapNotifierConfig(next))
	if err := a.maint.Apply(mapMaintenanceConfig(next)); err != nil {
		a.log.Warn("maintenance config rejected; jobs stopped", logx.Err(err))
	}
	a.debug.Reconfigure(ctx, MapDebugConfig(next))

	eventbus.Emit(a.bus, eventbus.TypeConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
