// Package store reads locally persisted usage records. Records live under a
// data directory as one JSONL file per session (<sessionID>.jsonl), with an
// optional sessions.json index carrying session titles.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/core/model"
	"github.com/keisuke-w/tokenwatch/internal/util"
)

const (
	sessionIndexFile = "sessions.json"

	// Single records are small JSON objects, but tool transcripts can
	// produce long lines; match the reader buffer to that.
	maxLineSize = 4 * 1024 * 1024
)

// ErrSessionNotFound is returned when a session-scoped listing targets a
// session that has no data at all, as opposed to an empty window.
var ErrSessionNotFound = errors.New("session not found")

// Store reads usage records and session metadata from the data directory.
type Store struct {
	dataDir string

	mu             sync.Mutex
	sessions       map[string]model.SessionMeta
	sessionsLoaded bool

	watcher *watcher
}

// New creates a Store over the given data directory. The directory does not
// need to exist yet; listings over a missing directory are empty.
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// DataDir returns the directory this store reads from.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Close releases the directory watcher if one was started.
func (s *Store) Close() {
	if s.watcher != nil {
		s.watcher.stop()
	}
}

// ListRecords returns all usage records in the window, sorted by creation
// timestamp ascending. A zero bound means unbounded on that side.
func (s *Store) ListRecords(sinceMs, untilMs int64) ([]model.UsageRecord, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read data directory %s: %w", s.dataDir, err)
	}

	var records []model.UsageRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".jsonl") {
			continue
		}
		fileRecords := s.parseFile(filepath.Join(s.dataDir, entry.Name()))
		records = append(records, filterWindow(fileRecords, sinceMs, untilMs)...)
	}

	sortByTimestamp(records)
	return records, nil
}

// ListRecordsForSession returns the records of a single session in the
// window, sorted by creation timestamp ascending. The lookup goes straight
// to the session's file; it never scans the whole directory. Returns
// ErrSessionNotFound when the session has no data.
func (s *Store) ListRecordsForSession(sessionID string, sinceMs, untilMs int64) ([]model.UsageRecord, error) {
	path := filepath.Join(s.dataDir, sessionID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to stat session file %s: %w", path, err)
	}

	records := filterWindow(s.parseFile(path), sinceMs, untilMs)
	sortByTimestamp(records)
	return records, nil
}

// SessionIndex returns the session id -> metadata mapping from the optional
// sessions.json file. The index is cached in memory and reloaded when the
// directory watcher reports a change. A missing or corrupt index degrades to
// an empty mapping.
func (s *Store) SessionIndex() map[string]model.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil && s.watcher.consumeDirty() {
		s.sessionsLoaded = false
	}

	if !s.sessionsLoaded {
		s.sessions = s.loadSessionIndex()
		s.sessionsLoaded = true
	}
	return s.sessions
}

func (s *Store) loadSessionIndex() map[string]model.SessionMeta {
	path := filepath.Join(s.dataDir, sessionIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			util.LogDebugf("Failed to read session index %s: %v", path, err)
		}
		return map[string]model.SessionMeta{}
	}

	var index map[string]model.SessionMeta
	if err := sonic.Unmarshal(data, &index); err != nil {
		util.LogWarnf("Corrupt session index %s, ignoring: %v", path, err)
		return map[string]model.SessionMeta{}
	}
	return index
}

// parseFile reads one session file. Malformed lines are skipped; a missing
// or unreadable file yields no records. Individual record corruption must
// never take a whole aggregation down.
func (s *Store) parseFile(path string) []model.UsageRecord {
	file, err := os.Open(path)
	if err != nil {
		util.LogDebugf("Skipping unreadable record file %s: %v", path, err)
		return nil
	}
	defer file.Close()

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var records []model.UsageRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record model.UsageRecord
		if err := sonic.UnmarshalString(line, &record); err != nil {
			util.LogDebugf("Skipping malformed record %s:%d: %v", path, lineNo, err)
			continue
		}
		if record.SessionID == "" {
			record.SessionID = sessionID
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		util.LogDebugf("Stopped reading %s early: %v", path, err)
	}
	return records
}

func filterWindow(records []model.UsageRecord, sinceMs, untilMs int64) []model.UsageRecord {
	if sinceMs == 0 && untilMs == 0 {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if sinceMs != 0 && r.Timestamp < sinceMs {
			continue
		}
		if untilMs != 0 && r.Timestamp > untilMs {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortByTimestamp(records []model.UsageRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
}
