// Package model manages the on-disk embedding model: integrity checks,
// cancellable download, lazy loading and unloading.
package model

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsearch/internal/embedding"
)

var (
	// ErrDownload wraps every download failure other than cancellation.
	ErrDownload = errors.New("model download failed")
	// ErrDownloadInProgress is returned when a second download is requested.
	ErrDownloadInProgress = errors.New("download already in progress")
	// ErrAlreadyDownloaded is returned when the file already passes the integrity check.
	ErrAlreadyDownloaded = errors.New("model already downloaded")
	// ErrDownloadCancelled is returned by a download stopped with Cancel or its context.
	ErrDownloadCancelled = errors.New("download cancelled")
	// ErrNotDownloaded is returned when loading is attempted without a valid model file.
	ErrNotDownloaded = errors.New("model not downloaded")
	// ErrNotLoaded is returned by WithEngine when no engine is in memory.
	ErrNotLoaded = errors.New("model not loaded")
	// ErrLoad wraps a failure from the Loader.
	ErrLoad = errors.New("failed to load model")
	// ErrCorrupt reports a model file smaller than the configured minimum.
	ErrCorrupt = errors.New("model file incomplete")
)

// State is the lifecycle state of the model artifact.
type State int

// Lifecycle states, in the order a model normally moves through them.
const (
	NotDownloaded State = iota
	Downloading
	Downloaded
	Loaded
)

// String returns the snake_case name used in status payloads.
func (s State) String() string {
	switch s {
	case Downloading:
		return "downloading"
	case Downloaded:
		return "downloaded"
	case Loaded:
		return "loaded"
	default:
		return "not_downloaded"
	}
}

// Loader opens the model file at path as an inference engine.
type Loader func(path string) (embedding.Engine, error)

// Observer receives lifecycle changes. status.Tracker implements it.
type Observer interface {
	SetModelDownloaded(bool)
	SetModelLoaded(bool)
	SetDownloadProgress(*float64)
}

type nopObserver struct{}

func (nopObserver) SetModelDownloaded(bool)      {}
func (nopObserver) SetModelLoaded(bool)          {}
func (nopObserver) SetDownloadProgress(*float64) {}

// Config describes where the model lives and how it is fetched.
type Config struct {
	Path      string
	URL       string
	MinSize   int64
	ChunkSize int
	Timeout   time.Duration // connect, response-header and idle-read timeout
}

// ManualDownloadInfo tells a user how to place the model by hand.
type ManualDownloadInfo struct {
	URL        string `json:"url"`
	TargetPath string `json:"target_path"`
	Filename   string `json:"filename"`
}

// Manager owns the model file and the loaded engine. The engine is guarded by a
// single mutex, so inference calls through WithEngine are serialized.
type Manager struct {
	cfg      Config
	loader   Loader
	client   *http.Client
	observer Observer
	logger   *zap.Logger

	mu     sync.Mutex
	engine embedding.Engine

	downloading atomic.Bool
	cancelled   atomic.Bool

	fetchMu     sync.Mutex
	cancelFetch context.CancelCauseFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver sets the receiver of lifecycle changes.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithHTTPClient replaces the download client. The idle-read timeout still applies.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// NewManager creates a Manager. loader is called at most once per load.
func NewManager(cfg Config, loader Loader, opts ...Option) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Manager{
		cfg:      cfg,
		loader:   loader,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	if m.client == nil {
		m.client = newHTTPClient(cfg.Timeout)
	}
	return m
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Path returns the model file path.
func (m *Manager) Path() string {
	return m.cfg.Path
}

// CheckIntegrity reports whether the model file exists and is at least the
// minimum size. An undersized file yields false and an ErrCorrupt error.
// The observer's downloaded flag is updated to match.
func (m *Manager) CheckIntegrity() (bool, error) {
	ok, err := m.checkFile(m.cfg.Path)
	m.observer.SetModelDownloaded(ok)
	return ok, err
}

func (m *Manager) checkFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Size() < m.cfg.MinSize {
		return false, fmt.Errorf("%w: %d bytes, expected at least %d", ErrCorrupt, info.Size(), m.cfg.MinSize)
	}
	return true, nil
}

// State reports the current lifecycle state, re-checking the file on disk.
func (m *Manager) State() State {
	if m.downloading.Load() {
		return Downloading
	}
	if ok, _ := m.CheckIntegrity(); !ok {
		return NotDownloaded
	}
	if m.Loaded() {
		return Loaded
	}
	return Downloaded
}

// ManualDownloadInfo returns the URL and target path for a manual download.
func (m *Manager) ManualDownloadInfo() ManualDownloadInfo {
	return ManualDownloadInfo{
		URL:        m.cfg.URL,
		TargetPath: m.cfg.Path,
		Filename:   filepath.Base(m.cfg.Path),
	}
}

// Loaded reports whether an engine is in memory.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine != nil
}

// EnsureLoaded loads the model if it is not already in memory. Concurrent
// callers wait for a single load attempt.
func (m *Manager) EnsureLoaded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		return nil
	}
	ok, err := m.CheckIntegrity()
	if !ok {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrNotDownloaded, err)
		}
		return ErrNotDownloaded
	}

	start := time.Now()
	m.logger.Info("loading model", zap.String("path", m.cfg.Path))
	engine, err := m.loader(m.cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}
	m.engine = engine
	m.observer.SetModelLoaded(true)
	m.logger.Info("model loaded", zap.Duration("took", time.Since(start)))
	return nil
}

// Unload releases the in-memory engine.
func (m *Manager) Unload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return nil
	}
	err := m.engine.Close()
	m.engine = nil
	m.observer.SetModelLoaded(false)
	m.logger.Info("model unloaded")
	return err
}

// WithEngine runs fn with exclusive access to the loaded engine.
func (m *Manager) WithEngine(fn func(embedding.Engine) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine == nil {
		return ErrNotLoaded
	}
	return fn(m.engine)
}
