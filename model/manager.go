package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrDownloadFailed   = errors.New("model download failed")
	ErrChecksumMismatch = errors.New("model checksum mismatch")
	ErrUnauthorized     = errors.New("model download unauthorized")
	ErrInUse            = errors.New("model is in use")
)

type State int

const (
	StateAbsent State = iota
	StateDownloading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "absent"
	}
}

// Progress is called during a download. total is 0 when the server did
// not report a length. resumed is true when the download continued from
// a previous partial file.
type Progress func(downloaded, total int64, resumed bool)

// Manager owns the model cache directory. A finished model file only
// ever appears under its final name via rename, so a file that exists
// is a file that passed verification.
type Manager struct {
	dir      string
	client   *http.Client
	token    string // bearer token for gated downloads, usually HF_TOKEN
	Progress Progress

	mu     sync.Mutex
	states map[string]State
	inUse  map[string]int
	dlMu   map[string]*sync.Mutex
}

func NewManager(dir string) *Manager {
	return &Manager{
		dir:    dir,
		client: http.DefaultClient,
		token:  os.Getenv("HF_TOKEN"),
		states: make(map[string]State),
		inUse:  make(map[string]int),
		dlMu:   make(map[string]*sync.Mutex),
	}
}

// Path returns where the model file lives (or will live) in the cache.
func (m *Manager) Path(id string) (string, error) {
	mod, err := Lookup(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.dir, mod.Filename), nil
}

// State reports the cache state of a model.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	if st, ok := m.states[id]; ok && st == StateDownloading {
		m.mu.Unlock()
		return st
	}
	st := m.states[id]
	m.mu.Unlock()

	path, err := m.Path(id)
	if err != nil {
		return StateAbsent
	}
	if _, err := os.Stat(path); err == nil {
		return StateReady
	}
	if st == StateFailed {
		return StateFailed
	}
	return StateAbsent
}

// ListLocal returns catalog entries whose files are fully downloaded,
// in catalog order.
func (m *Manager) ListLocal() []Model {
	var out []Model
	for _, mod := range catalog {
		if _, err := os.Stat(filepath.Join(m.dir, mod.Filename)); err == nil {
			out = append(out, mod)
		}
	}
	return out
}

// MarkUsed stamps the model file so ListLocal ordering and cache
// cleanup can tell recently used models from stale ones.
func (m *Manager) MarkUsed(id string) {
	path, err := m.Path(id)
	if err != nil {
		return
	}
	now := time.Now()
	os.Chtimes(path, now, now)
}

// LastUsed reports when a model was last used. Zero for models not in
// the cache.
func (m *Manager) LastUsed(id string) time.Time {
	path, err := m.Path(id)
	if err != nil {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Acquire marks a model as in use, blocking deletion until Release.
func (m *Manager) Acquire(id string) {
	m.mu.Lock()
	m.inUse[id]++
	m.mu.Unlock()
}

func (m *Manager) Release(id string) {
	m.mu.Lock()
	if m.inUse[id] > 0 {
		m.inUse[id]--
	}
	m.mu.Unlock()
}

// Delete removes a model file from the cache. It refuses while any
// session holds the model, and waits out an in-flight download of the
// same id rather than racing it.
func (m *Manager) Delete(id string) error {
	path, err := m.Path(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.inUse[id] > 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInUse, id)
	}
	m.mu.Unlock()

	lock := m.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	delete(m.states, id)
	m.mu.Unlock()

	os.Remove(path + ".partial")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete model %s: %w", id, err)
	}
	return nil
}

// EnsureReady returns the local path of a verified model file,
// downloading it first if needed. A model already in the cache returns
// immediately without touching the network. Interrupted downloads leave
// a .partial file and resume from it on the next call.
func (m *Manager) EnsureReady(ctx context.Context, id string) (string, error) {
	mod, err := Lookup(id)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(m.dir, mod.Filename)

	// fast path: verified file already in place
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	lock := m.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	// another caller may have finished while we waited
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	m.setState(id, StateDownloading)
	if err := m.download(ctx, mod, dest); err != nil {
		m.setState(id, StateFailed)
		return "", err
	}
	m.setState(id, StateReady)
	return dest, nil
}

func (m *Manager) idLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.dlMu[id]
	if !ok {
		l = &sync.Mutex{}
		m.dlMu[id] = l
	}
	return l
}

func (m *Manager) setState(id string, st State) {
	m.mu.Lock()
	m.states[id] = st
	m.mu.Unlock()
}

func (m *Manager) download(ctx context.Context, mod Model, dest string) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	partial := dest + ".partial"

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	// hash whatever a previous attempt already fetched
	hasher := sha256.New()
	offset, err := io.Copy(hasher, f)
	if err != nil {
		return fmt.Errorf("read partial file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mod.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// server ignored the range; start over
		if offset > 0 {
			if err := f.Truncate(0); err != nil {
				return fmt.Errorf("truncate partial file: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind partial file: %w", err)
			}
			offset = 0
			hasher = sha256.New()
		}
	case http.StatusPartialContent:
		// resuming where we left off
	case http.StatusRequestedRangeNotSatisfiable:
		// partial file already holds the full payload
		return m.finish(mod, partial, dest, hex.EncodeToString(hasher.Sum(nil)))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (set HF_TOKEN for gated models)", ErrUnauthorized, resp.Status)
	default:
		return fmt.Errorf("%w: %s", ErrDownloadFailed, resp.Status)
	}

	total := int64(0)
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}
	src := io.Reader(resp.Body)
	if m.Progress != nil {
		src = &progressReader{
			r:       resp.Body,
			read:    offset,
			total:   total,
			resumed: offset > 0,
			report:  m.Progress,
		}
	}
	if _, err := io.Copy(io.MultiWriter(f, hasher), src); err != nil {
		// partial stays on disk for the next attempt
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync partial file: %w", err)
	}

	return m.finish(mod, partial, dest, hex.EncodeToString(hasher.Sum(nil)))
}

func (m *Manager) finish(mod Model, partial, dest, actualHash string) error {
	if mod.SHA256 != "" && actualHash != mod.SHA256 {
		os.Remove(partial)
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, actualHash[:12], mod.SHA256[:12])
	}
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	return nil
}

type progressReader struct {
	r       io.Reader
	read    int64
	total   int64
	resumed bool
	report  Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	p.report(p.read, p.total, p.resumed)
	return n, err
}
