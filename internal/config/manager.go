package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "scraperbot/pkg/logx"
)

// Manager owns the live config. All reads and writes of Chats go through
// View/Update so the update pipeline and command handlers never race.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// lastHash tracks the last committed or saved content so Watch can skip
	// the fsnotify events caused by our own Save.
	lastHash uint64

	saveMu sync.Mutex

	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(cfg *Config) error
}

func NewManager(path string) *Manager {
	return &Manager{path: path, log: logx.Nop()}
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs an extra check run on every parsed config, after
// the built-in validation.
func (m *Manager) SetValidator(fn func(cfg *Config) error) { m.validator = fn }

// Parse reads the file, merges it onto Defaults and validates the result.
// Every failure is a *ConfigError.
func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, &ConfigError{Path: "<root>", Err: err}
	}
	return m.parseBytes(b)
}

func (m *Manager) parseBytes(b []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, &ConfigError{Path: "<root>", Err: err}
	}

	cfg := Defaults()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, decodeError(err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data")
		}
		return nil, &ConfigError{Path: "<root>", Err: err}
	}
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if m.validator != nil {
		if err := m.validator(cfg); err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				return nil, err
			}
			return nil, &ConfigError{Path: "<root>", Err: err}
		}
	}
	return cfg, nil
}

func decodeError(err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		path := "<root>"
		if te.Field != "" {
			path += "." + te.Field
		}
		return &ConfigError{
			Path: path,
			Err:  fmt.Errorf("expected %s, got %s", te.Type, te.Value),
		}
	}
	var se *json.SyntaxError
	if errors.As(err, &se) {
		return &ConfigError{Path: "<root>", Err: fmt.Errorf("syntax error at offset %d: %w", se.Offset, err)}
	}
	return &ConfigError{Path: "<root>", Err: err}
}

// normalize fills zero values that JSON null or empty sections leave behind.
func normalize(cfg *Config) {
	if cfg.Admins == nil {
		cfg.Admins = []int64{}
	}
	if cfg.Chats == nil {
		cfg.Chats = []Chat{}
	}
	for i := range cfg.Chats {
		if cfg.Chats[i].Links == nil {
			cfg.Chats[i].Links = []LinkEntry{}
		}
	}
	if cfg.Loader.Cookies == nil {
		cfg.Loader.Cookies = map[string]map[string]string{}
	}
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	m.log.Info("config loaded",
		logx.String("path", m.path),
		logx.Int("chats", len(cfg.Chats)),
		logx.Int("admins", len(cfg.Admins)),
	)
	return cfg.Clone(), nil
}

// Commit replaces the live config.
func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Get returns a deep copy of the live config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		return nil
	}
	return m.cfg.Clone()
}

// View runs fn with read access to the live config. fn must not retain it.
func (m *Manager) View(fn func(cfg *Config)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg == nil {
		fn(Defaults())
		return
	}
	fn(m.cfg)
}

// Update runs fn with write access to the live config.
func (m *Manager) Update(fn func(cfg *Config) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		m.cfg = Defaults()
	}
	return fn(m.cfg)
}

// Save writes the live config atomically (temp file + rename) in the format
// of the file it was loaded from.
func (m *Manager) Save() error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.RLock()
	snap := m.cfg.Clone()
	m.mu.RUnlock()
	if snap == nil {
		return errors.New("config not loaded")
	}

	data, err := encodeConfig(m.path, snap)
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	m.mu.Lock()
	m.lastHash = hashConfig(snap)
	m.mu.Unlock()
	m.log.Debug("config saved", logx.String("path", m.path))
	return nil
}

func encodeConfig(path string, cfg *Config) ([]byte, error) {
	jb, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return jsonToYAML(jb)
	default:
		return append(jb, '\n'), nil
	}
}

// Subscribe returns a channel receiving the live config after each applied reload.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		// Deliver the newest; drop one stale item when the subscriber lags.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
			}
		}
	}
}
