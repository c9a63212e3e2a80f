package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var errReadTimeout = errors.New("read timeout")

// Download fetches the model synchronously. It fails immediately with
// ErrDownloadInProgress or ErrAlreadyDownloaded.
func (m *Manager) Download(ctx context.Context) error {
	if err := m.begin(); err != nil {
		return err
	}
	return m.run(ctx)
}

// StartDownload performs the same checks as Download, then fetches in the
// background and reports the outcome to onDone, which may be nil.
func (m *Manager) StartDownload(ctx context.Context, onDone func(error)) error {
	if err := m.begin(); err != nil {
		return err
	}
	go func() {
		err := m.run(ctx)
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

// Cancel stops an active download, interrupting a read in progress.
func (m *Manager) Cancel() {
	if !m.downloading.Load() {
		return
	}
	m.cancelled.Store(true)
	m.fetchMu.Lock()
	if m.cancelFetch != nil {
		m.cancelFetch(ErrDownloadCancelled)
	}
	m.fetchMu.Unlock()
	m.logger.Info("download cancel requested")
}

func (m *Manager) setCancelFetch(cancel context.CancelCauseFunc) {
	m.fetchMu.Lock()
	m.cancelFetch = cancel
	m.fetchMu.Unlock()
}

// Downloading reports whether a download is active.
func (m *Manager) Downloading() bool {
	return m.downloading.Load()
}

func (m *Manager) begin() error {
	if !m.downloading.CompareAndSwap(false, true) {
		return ErrDownloadInProgress
	}
	if ok, _ := m.CheckIntegrity(); ok {
		m.downloading.Store(false)
		return ErrAlreadyDownloaded
	}
	m.cancelled.Store(false)
	zero := 0.0
	m.observer.SetDownloadProgress(&zero)
	return nil
}

func (m *Manager) run(ctx context.Context) error {
	defer func() {
		m.observer.SetDownloadProgress(nil)
		m.downloading.Store(false)
	}()

	m.logger.Info("downloading model", zap.String("url", m.cfg.URL), zap.String("path", m.cfg.Path))
	if err := m.fetch(ctx); err != nil {
		if errors.Is(err, ErrDownloadCancelled) {
			m.logger.Info("model download cancelled")
		} else {
			m.logger.Error("model download failed", zap.Error(err))
		}
		return err
	}
	m.observer.SetModelDownloaded(true)
	m.logger.Info("model download completed", zap.String("path", m.cfg.Path))
	return nil
}

func (m *Manager) fetch(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	m.setCancelFetch(cancel)
	defer m.setCancelFetch(nil)
	if m.cancelled.Load() {
		return ErrDownloadCancelled
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.Path), 0755); err != nil {
		return fmt.Errorf("%w: create model directory: %w", ErrDownload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return interrupted(ctx, classify(err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP error %d - try manual download", ErrDownload, resp.StatusCode)
	}

	partial := m.cfg.Path + ".part"
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("%w: create file: %w", ErrDownload, err)
	}
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(partial)
		return err
	}

	// The idle timer cancels the request when no bytes arrive for Timeout.
	idle := time.AfterFunc(m.cfg.Timeout, func() { cancel(errReadTimeout) })
	defer idle.Stop()

	total := resp.ContentLength
	buf := make([]byte, m.cfg.ChunkSize)
	var downloaded int64
	lastReported := 0.0
	for {
		if m.cancelled.Load() {
			return fail(ErrDownloadCancelled)
		}
		if ctx.Err() != nil {
			return fail(interrupted(ctx, ErrDownloadCancelled))
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			idle.Reset(m.cfg.Timeout)
			if _, err := f.Write(buf[:n]); err != nil {
				return fail(fmt.Errorf("%w: write error: %w", ErrDownload, err))
			}
			downloaded += int64(n)
			if total > 0 {
				p := float64(downloaded) / float64(total)
				if math.Abs(p-lastReported) >= 0.01 || p >= 1.0 {
					lastReported = p
					m.observer.SetDownloadProgress(&p)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(interrupted(ctx, fmt.Errorf("%w: read error: %w - try manual download", ErrDownload, rerr)))
		}
	}
	idle.Stop()

	if total > 0 && downloaded < total {
		return fail(fmt.Errorf("%w: short read: got %d of %d bytes - try manual download", ErrDownload, downloaded, total))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("%w: flush error: %w", ErrDownload, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("%w: close error: %w", ErrDownload, err)
	}
	if ok, err := m.checkFile(partial); !ok {
		_ = os.Remove(partial)
		if err == nil {
			err = ErrCorrupt
		}
		return fmt.Errorf("%w: downloaded file is too small, may be corrupted: %w", ErrDownload, err)
	}
	if err := os.Rename(partial, m.cfg.Path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}
	return nil
}

// interrupted replaces err with the reason ctx was cancelled, if it was.
func interrupted(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case cause == nil:
		return err
	case errors.Is(cause, errReadTimeout):
		return fmt.Errorf("%w: read timeout - try manual download", ErrDownload)
	case errors.Is(cause, ErrDownloadCancelled):
		return ErrDownloadCancelled
	default:
		return fmt.Errorf("%w: %w", ErrDownloadCancelled, cause)
	}
}

// classify turns a transport error into a descriptive ErrDownload.
func classify(err error) error {
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrDownloadCancelled, err)
	case errors.As(err, &dnsErr):
		return fmt.Errorf("%w: DNS resolution failed - please check your network: %w", ErrDownload, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: connection timeout - please check your network or try manual download: %w", ErrDownload, err)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("%w: connection failed - server may be unreachable: %w", ErrDownload, err)
	default:
		return fmt.Errorf("%w: network error - try manual download: %w", ErrDownload, err)
	}
}
