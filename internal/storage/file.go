package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "scraperbot/pkg/logx"
)

// fileStore keeps everything in plain files next to each other.
//
// Files:
//   - <prefix>.audit.jsonl              (append-only JSON Lines)
//   - <prefix>.delivered.snapshot.json  (compacted journal)
//   - <prefix>.delivered.journal.jsonl  (append-only journal)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	audit *os.File

	snapshotPath string
	journal      *os.File
	delivered    map[string]int64 // key -> until, unix milli

	writes       int
	compactEvery int
	now          func() time.Time
}

type journalRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	af, err := os.OpenFile(prefix+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		audit:        af,
		snapshotPath: prefix + ".delivered.snapshot.json",
		delivered:    map[string]int64{},
		compactEvery: 1000,
		now:          time.Now,
	}
	journalPath := prefix + ".delivered.journal.jsonl"
	if err := loadSnapshot(s.snapshotPath, s.delivered); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, s.delivered); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery journal replay failed", logx.Err(err))
	}
	s.pruneLocked()

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	s.journal = jf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journal != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
		s.audit = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return errors.New("audit file closed")
	}
	if e.At.IsZero() {
		e.At = s.now()
	}
	return json.NewEncoder(s.audit).Encode(e)
}

func (s *fileStore) MarkDelivered(_ context.Context, key string, until time.Time) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("delivery journal closed")
	}
	s.delivered[key] = ms
	if err := json.NewEncoder(s.journal).Encode(journalRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("delivery journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Delivered(_ context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.delivered[key]
	return ok && until >= s.now().UnixMilli(), nil
}

func (s *fileStore) pruneLocked() {
	now := s.now().UnixMilli()
	for k, v := range s.delivered {
		if v < now {
			delete(s.delivered, k)
		}
	}
}

func (s *fileStore) compactLocked() error {
	s.pruneLocked()

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.delivered); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}
