package config

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "scraperbot/pkg/logx"
)

// Watch reloads the file on change and applies the operator-owned sections
// (logging, admins, interval, schedule, public-admin toggle, delivery rate)
// to the live config. Chats, watermarks and the update offset are owned by
// the running process and are never taken from the file.
func (m *Manager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() { m.reload() })
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
					debounce()
					continue
				}
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
			}
		}

		_ = w.Close()
		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (m *Manager) reload() {
	next, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(next)
	m.mu.Lock()
	if h != 0 && h == m.lastHash {
		m.mu.Unlock()
		m.log.Debug("config unchanged; skipping reload", logx.String("path", m.path))
		return
	}
	if m.cfg == nil {
		m.cfg = Defaults()
	}
	changed := ApplyOperatorSections(m.cfg, next)
	m.lastHash = h
	snap := m.cfg.Clone()
	m.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	m.log.Info("config reloaded", logx.Strings("changed", changed), logx.String("hash", fmt.Sprintf("%x", h)))
	m.publish(snap)
}

// ApplyOperatorSections copies hot-reloadable sections from next into live
// and returns the names of the sections that changed.
func ApplyOperatorSections(live, next *Config) []string {
	var changed []string
	if !reflect.DeepEqual(live.Logging, next.Logging) {
		live.Logging = next.Logging
		changed = append(changed, "logging")
	}
	if !reflect.DeepEqual(live.Admins, next.Admins) {
		live.Admins = append([]int64(nil), next.Admins...)
		changed = append(changed, "admins")
	}
	if live.LinkUpdateInterval != next.LinkUpdateInterval {
		live.LinkUpdateInterval = next.LinkUpdateInterval
		changed = append(changed, "link_update_interval")
	}
	if live.CycleSchedule != next.CycleSchedule {
		live.CycleSchedule = next.CycleSchedule
		changed = append(changed, "cycle_schedule")
	}
	if live.PublicAdminCommandsEnabled != next.PublicAdminCommandsEnabled {
		live.PublicAdminCommandsEnabled = next.PublicAdminCommandsEnabled
		changed = append(changed, "public_admin_commands_enabled")
	}
	if live.Delivery != next.Delivery {
		live.Delivery = next.Delivery
		changed = append(changed, "delivery")
	}
	return changed
}
