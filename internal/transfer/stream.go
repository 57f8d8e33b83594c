package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/http"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/util/buffers"
	"github.com/mixtape/mixtape/internal/util/paths"
)

// stream copies the remote resource into the session's temp file, starting
// at s.BytesWritten, then commits it. A nil return means the artifact is in
// place. When ctx ends the cancellation cause is returned.
func (m *Manager) stream(ctx context.Context, ar *activeRun, backend storage.Backend, s Session) error {
	offset := s.BytesWritten

	f, err := openTemp(s.TempPath, offset)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
	}()

	resp, err := http.OpenStream(ctx, m.client, s.Descriptor.StreamURL, offset)
	if errors.Is(err, http.ErrRangeNotSatisfiable) {
		// Nothing past offset. Either the earlier run already had every byte
		// or the resource shrank underneath us.
		if offset > 0 && resp.TotalSize == offset && (s.TotalBytes == 0 || s.TotalBytes == offset) {
			m.logger.Debug().Str("session", s.ID).Int64("bytes", offset).Msg("Stream already complete")
			m.setTotals(offset, offset, s.ETag)
			m.progress(ar, offset, offset, true)
			closed = true
			if err := f.Close(); err != nil {
				return storage.Classify("close", storage.Locator(s.TempPath), err, storage.ErrWriteFailed)
			}
			return m.commit(ctx, backend, s)
		}
		return fmt.Errorf("%w: server reports %d bytes, have %d", ErrStaleResumeState, resp.TotalSize, offset)
	}
	if err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return streamError("open", err)
	}
	defer resp.Body.Close()

	if offset > 0 {
		if err := checkStale(s, resp); err != nil {
			return err
		}
		if !resp.Resumed {
			m.logger.Info().Str("session", s.ID).Int64("offset", offset).
				Msg("Server ignored range request, restarting from zero")
			if err := rewind(f); err != nil {
				return storage.Classify("write", storage.Locator(s.TempPath), err, storage.ErrWriteFailed)
			}
			offset = 0
		}
	}

	// The server's length is authoritative; without one the total is unknown
	// until the stream ends.
	total := resp.TotalSize
	etag := s.ETag
	if resp.ETag != "" {
		etag = resp.ETag
	}
	m.setTotals(offset, max(total, 0), etag)
	m.checkpoint(offset)
	m.publishStarted()
	m.progress(ar, offset, total, true)

	written, synced := offset, offset
	hold := func(cause error) error {
		if err := f.Sync(); err == nil {
			synced = written
		}
		m.setWritten(synced)
		return cause
	}

	bufp := buffers.GetCopyBuffer()
	defer buffers.PutCopyBuffer(bufp)
	buf := *bufp

	for {
		if ctx.Err() != nil {
			return hold(context.Cause(ctx))
		}

		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if total >= 0 && written+int64(n) > total {
				return fmt.Errorf("%w: more than %d bytes", ErrStreamTooLong, total)
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return storage.Classify("write", storage.Locator(s.TempPath), werr, storage.ErrWriteFailed)
			}
			written += int64(n)

			if written-synced >= m.persistInterval {
				if err := f.Sync(); err != nil {
					return storage.Classify("sync", storage.Locator(s.TempPath), err, storage.ErrWriteFailed)
				}
				synced = written
				m.checkpoint(synced)
			}
			m.progress(ar, written, total, false)
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return hold(context.Cause(ctx))
			}
			return hold(streamError("read", rerr))
		}
	}

	if total >= 0 && written < total {
		return hold(&NetworkError{Op: "read", Err: fmt.Errorf("%w: got %d of %d bytes", ErrStreamTruncated, written, total)})
	}
	if err := f.Sync(); err != nil {
		return storage.Classify("sync", storage.Locator(s.TempPath), err, storage.ErrWriteFailed)
	}
	closed = true
	if err := f.Close(); err != nil {
		return storage.Classify("close", storage.Locator(s.TempPath), err, storage.ErrWriteFailed)
	}

	if total < 0 {
		total = written
	}
	m.setTotals(written, total, etag)
	m.progress(ar, written, total, true)
	return m.commit(ctx, backend, s)
}

// commit moves the finished temp file to its final location. An artifact that
// appeared under the same name while streaming is only replaced when the run
// was started with Overwrite; otherwise a *paths.ConflictError is returned and
// the temp file is kept. Once a commit has started the partial data is gone
// whatever happens, so an interrupted commit is reported as a cancellation.
func (m *Manager) commit(ctx context.Context, backend storage.Backend, s Session) error {
	if !s.Overwrite {
		check, err := paths.CheckCollision(ctx, backend, s.FileName)
		if err != nil {
			return err
		}
		if check.Result == paths.Conflict {
			m.logger.Warn().Str("session", s.ID).Str("locator", string(check.Locator)).
				Msg("File appeared at the destination while downloading")
			return &paths.ConflictError{FileName: check.FileName, Locator: check.Locator}
		}
	}
	err := backend.Commit(ctx, s.TempPath, s.Locator)
	if err != nil && ctx.Err() != nil {
		m.logger.Warn().Err(err).Str("session", s.ID).Msg("Commit interrupted")
		return errCancelled
	}
	return err
}

// checkStale compares what the server reports now with what the partial
// data was written against.
func checkStale(s Session, resp *http.StreamResponse) error {
	if s.TotalBytes > 0 && resp.TotalSize >= 0 && resp.TotalSize != s.TotalBytes {
		return fmt.Errorf("%w: size was %d, now %d", ErrStaleResumeState, s.TotalBytes, resp.TotalSize)
	}
	if s.ETag != "" && resp.ETag != "" && s.ETag != resp.ETag {
		return fmt.Errorf("%w: etag was %q, now %q", ErrStaleResumeState, s.ETag, resp.ETag)
	}
	return nil
}

// openTemp opens the temp file positioned at offset. Anything past offset
// was written after the last sync and is dropped.
func openTemp(p string, offset int64) (*os.File, error) {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, storage.Classify("temp", storage.Locator(p), err, storage.ErrWriteFailed)
	}
	if err := f.Truncate(offset); err != nil {
		f.Close()
		return nil, storage.Classify("temp", storage.Locator(p), err, storage.ErrWriteFailed)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		f.Close()
		return nil, storage.Classify("temp", storage.Locator(p), err, storage.ErrWriteFailed)
	}
	return f, nil
}

func rewind(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// setTotals records the stream's size and validator on the live session.
func (m *Manager) setTotals(written, total int64, etag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	m.session.BytesWritten = written
	m.session.TotalBytes = total
	m.session.ETag = etag
}

func (m *Manager) setWritten(written int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.BytesWritten = written
	}
}

// checkpoint saves resume state for bytes that have been synced.
func (m *Manager) checkpoint(synced int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return
	}
	m.session.BytesWritten = synced
	m.session.UpdatedAt = time.Now()
	if err := m.store.Save(m.session.record(synced)); err != nil {
		m.logger.Warn().Err(err).Str("session", m.session.ID).Msg("Failed to save resume state")
	}
}

func (m *Manager) publishStarted() {
	m.mu.Lock()
	s := *m.session
	m.mu.Unlock()
	m.publish(events.EventTransferStarted, &s, "", nil)
}

// progress publishes the current byte count. The feed always gets the newest
// value; the event bus at most once per ProgressMinInterval unless force is
// set.
func (m *Manager) progress(ar *activeRun, written, total int64, force bool) {
	if total < 0 {
		total = 0
	}
	p := events.NewProgress(written, total)
	now := time.Now()

	m.mu.Lock()
	var name string
	if m.session != nil {
		m.session.BytesWritten = written
		name = m.session.FileName
	}
	throttled := !force && now.Sub(ar.lastPublish) < constants.ProgressMinInterval
	if !throttled {
		ar.lastPublish = now
		speed := ar.meter.update(written, now)
		if m.session != nil {
			m.session.Speed = speed
		}
	}
	m.mu.Unlock()

	ar.run.Feed.Publish(p)
	if !throttled && m.bus != nil {
		m.bus.PublishTransfer(events.EventTransferProgress, ar.run.SessionID, name,
			models.StatusInProgress, p, "", nil)
	}
}
