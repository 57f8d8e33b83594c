package transfer

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mixtape/mixtape/internal/constants"
	"github.com/mixtape/mixtape/internal/diskspace"
	"github.com/mixtape/mixtape/internal/events"
	"github.com/mixtape/mixtape/internal/logging"
	"github.com/mixtape/mixtape/internal/models"
	"github.com/mixtape/mixtape/internal/state"
	"github.com/mixtape/mixtape/internal/storage"
	"github.com/mixtape/mixtape/internal/util/paths"
)

// Destinations selects the active destination and opens backends for it.
type Destinations interface {
	Active() (models.StorageDestination, error)
	Backend(ctx context.Context, dest models.StorageDestination) (storage.Backend, error)
	Use(dest models.StorageDestination) error
}

// Notifier is told about finished downloads.
type Notifier interface {
	DownloadComplete(fileName, locator string)
	DownloadFailed(fileName, errorMsg string)
}

// Options configures a Manager.
type Options struct {
	Client       *nethttp.Client
	Destinations Destinations
	Store        state.ResumeStore
	EventBus     *events.EventBus // optional
	Notifier     Notifier         // optional
	Logger       *logging.Logger

	// PersistInterval is the number of bytes between fsync + resume state
	// saves. Zero uses constants.PersistInterval.
	PersistInterval int64
	// CheckDiskSpace enables the free-space pre-check when the size is known.
	CheckDiskSpace bool
}

// StartRequest describes a new transfer.
type StartRequest struct {
	Descriptor models.RemoteDescriptor
	// FileName is the stored name. Empty derives it from the title.
	FileName string
	// Decision answers a name collision. Undecided fails with a
	// *paths.ConflictError when the name is taken.
	Decision paths.Decision
}

// Run is a handle to one execution of a session, from Start or Resume until
// it completes, pauses, fails or is cancelled.
type Run struct {
	SessionID string
	Feed      *events.Feed
}

// Wait blocks until the run's outcome is available. The outcome can only be
// received once; callers that read Feed.Done directly should not also Wait.
func (r *Run) Wait(ctx context.Context) (events.Outcome, error) {
	select {
	case o := <-r.Feed.Done():
		return o, nil
	case <-ctx.Done():
		return events.Outcome{}, ctx.Err()
	}
}

type activeRun struct {
	run    *Run
	cancel context.CancelCauseFunc
	done   chan struct{}

	lastPublish time.Time
	meter       speedMeter
}

// Manager owns the single transfer session. At most one session runs at a
// time; a paused or failed session is retained until it is resumed or
// cancelled.
type Manager struct {
	client          *nethttp.Client
	dests           Destinations
	store           state.ResumeStore
	bus             *events.EventBus
	notifier        Notifier
	logger          *logging.Logger
	persistInterval int64
	checkDiskSpace  bool

	mu       sync.Mutex
	session  *Session
	backend  storage.Backend
	active   *activeRun
	starting bool
}

// NewManager creates a manager. Call Restore before the first Start to pick
// up a session left by a previous process.
func NewManager(opts Options) *Manager {
	client := opts.Client
	if client == nil {
		client = nethttp.DefaultClient
	}
	interval := opts.PersistInterval
	if interval <= 0 {
		interval = constants.PersistInterval
	}
	return &Manager{
		client:          client,
		dests:           opts.Destinations,
		store:           opts.Store,
		bus:             opts.EventBus,
		notifier:        opts.Notifier,
		logger:          logging.OrNop(opts.Logger).Component("transfer"),
		persistInterval: interval,
		checkDiskSpace:  opts.CheckDiskSpace,
	}
}

// Snapshot returns a copy of the current session, or nil if there is none.
func (m *Manager) Snapshot() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() *Session {
	if m.session == nil {
		return nil
	}
	s := *m.session
	if m.active != nil {
		s.Speed = m.active.meter.speed
	}
	return &s
}

// Restore loads the persisted session, if any. A session that was in
// progress when its process died comes back Paused. A session still driven
// by another live process is reported with OwnerPID set and cannot be
// resumed or cancelled from here.
func (m *Manager) Restore() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil || m.starting {
		return m.snapshotLocked(), nil
	}
	if err := m.restoreLocked(); err != nil {
		return nil, err
	}
	return m.snapshotLocked(), nil
}

func (m *Manager) restoreLocked() error {
	rec, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load resume state: %w", err)
	}
	m.session, m.backend = nil, nil
	if rec == nil {
		return nil
	}

	s := sessionFromRecord(rec)
	if s.HeldElsewhere() {
		m.session = s
		return nil
	}

	if err := rec.Validate(); err != nil {
		switch {
		case errors.Is(err, state.ErrResumeTempMissing), errors.Is(err, state.ErrResumeTempTooShort):
			m.logger.Warn().Err(err).Str("session", s.ID).Msg("Partial data unusable, transfer will restart from zero")
			removeTemp(s.TempPath)
			s.BytesWritten = 0
		default:
			m.logger.Warn().Err(err).Str("session", s.ID).Msg("Discarding resume state")
			removeTemp(s.TempPath)
			return m.store.Clear()
		}
	}

	switch s.Status {
	case models.StatusCompleted:
		return m.store.Clear()
	case models.StatusInProgress, models.StatusPending:
		s.Status = models.StatusPaused
	}
	m.session = s
	if err := m.store.Save(s.record(s.BytesWritten)); err != nil {
		return fmt.Errorf("failed to save resume state: %w", err)
	}
	m.logger.Info().Str("session", s.ID).Str("file", s.FileName).Int64("bytes", s.BytesWritten).
		Str("status", string(s.Status)).Msg("Restored transfer session")
	return nil
}

// checkIdleLocked fails unless a new session may be created.
func (m *Manager) checkIdleLocked() error {
	if m.active != nil || m.starting {
		return ErrAlreadyInProgress
	}
	rec, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load resume state: %w", err)
	}
	if rec != nil && rec.HeldByLiveProcess() {
		return fmt.Errorf("%w (process %d)", ErrAlreadyInProgress, rec.OwnerPID)
	}
	if m.session != nil || rec != nil {
		return ErrPendingSession
	}
	return nil
}

// Start creates a session for req on the active destination and begins
// streaming. It fails fast with ErrAlreadyInProgress while another transfer
// runs and with ErrPendingSession while a paused or failed one is retained.
//
// The run stops when ctx ends; that is treated as a pause.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*Run, error) {
	if strings.TrimSpace(req.Descriptor.StreamURL) == "" {
		return nil, errors.New("descriptor has no stream URL")
	}

	m.mu.Lock()
	if err := m.checkIdleLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.starting = true
	m.mu.Unlock()

	launched := false
	defer func() {
		if !launched {
			m.mu.Lock()
			m.starting = false
			m.mu.Unlock()
		}
	}()

	dest, err := m.dests.Active()
	if err != nil {
		return nil, err
	}
	backend, err := m.dests.Backend(ctx, dest)
	if err != nil {
		return nil, err
	}

	fileName := paths.SuggestFileName(req.Descriptor.Title)
	if strings.TrimSpace(req.FileName) != "" {
		fileName = paths.NormalizeFileName(req.FileName)
	}

	id := uuid.NewString()
	loc, tempPath, err := m.prepare(ctx, backend, id, fileName, req.Descriptor.SizeBytes, req.Decision)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:          id,
		Descriptor:  req.Descriptor,
		FileName:    fileName,
		Destination: dest,
		Locator:     loc,
		TempPath:    tempPath,
		Overwrite:   req.Decision == paths.Overwrite,
		Status:      models.StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Save(s.record(0)); err != nil {
		return nil, fmt.Errorf("failed to save resume state: %w", err)
	}

	m.logger.Info().Str("session", id).Str("file", fileName).Str("destination", dest.String()).
		Msg("Transfer started")

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.backend = backend
	launched = true
	m.starting = false
	return m.launchLocked(ctx, backend), nil
}

// prepare resolves the collision for fileName, checks free space in the temp
// area and returns the final locator and temp path. Nothing is deleted unless
// every check passes.
func (m *Manager) prepare(ctx context.Context, backend storage.Backend, sessionID, fileName string, size int64, decision paths.Decision) (storage.Locator, string, error) {
	check, err := paths.CheckCollision(ctx, backend, fileName)
	if err != nil {
		return "", "", err
	}
	if check.Result == paths.Conflict && decision != paths.Overwrite {
		return "", "", paths.Apply(ctx, backend, check, decision)
	}

	tempPath, err := backend.TempPath(sessionID)
	if err != nil {
		return "", "", err
	}
	if m.checkDiskSpace && size > 0 {
		if err := diskspace.CheckAvailableSpace(tempPath, size, 1+constants.DiskSpaceBufferPercent); err != nil {
			return "", "", err
		}
	}

	if err := paths.Apply(ctx, backend, check, decision); err != nil {
		return "", "", err
	}
	if check.Result == paths.Conflict {
		m.logger.Info().Str("file", fileName).Msg("Existing file removed for overwrite")
	}
	return check.Locator, tempPath, nil
}

// Resume continues a paused or failed session from its last synced byte.
// decision answers a collision with an artifact that appeared since the
// session started.
func (m *Manager) Resume(ctx context.Context, decision paths.Decision) (*Run, error) {
	m.mu.Lock()
	if m.active != nil || m.starting {
		m.mu.Unlock()
		return nil, ErrAlreadyInProgress
	}
	if m.session == nil {
		if err := m.restoreLocked(); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	s := m.session
	switch {
	case s == nil:
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	case s.HeldElsewhere():
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (process %d)", ErrAlreadyInProgress, s.OwnerPID)
	case !s.Status.IsRetained():
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, s.Status)
	}
	m.starting = true
	snap := *s
	m.mu.Unlock()

	launched := false
	defer func() {
		if !launched {
			m.mu.Lock()
			m.starting = false
			m.mu.Unlock()
		}
	}()

	backend, err := m.dests.Backend(ctx, snap.Destination)
	if err != nil {
		if storage.IsPermissionError(err) {
			m.failUnreachable(s, err)
		}
		return nil, err
	}
	check, err := paths.CheckCollision(ctx, backend, snap.FileName)
	if err != nil {
		return nil, err
	}
	if err := paths.Apply(ctx, backend, check, decision); err != nil {
		return nil, err
	}

	written := snap.BytesWritten
	if written > 0 {
		if info, err := os.Stat(snap.TempPath); err != nil || info.Size() < written {
			m.logger.Warn().Str("session", snap.ID).Msg("Partial data missing, restarting from zero")
			written = 0
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s.Locator = check.Locator
	s.Overwrite = decision == paths.Overwrite
	s.BytesWritten = written
	s.Status = models.StatusInProgress
	s.LastError = nil
	s.Transient = false
	s.UpdatedAt = time.Now()
	if err := m.store.Save(s.record(written)); err != nil {
		s.Status = snap.Status
		s.LastError = snap.LastError
		s.Transient = snap.Transient
		return nil, fmt.Errorf("failed to save resume state: %w", err)
	}
	m.backend = backend
	launched = true
	m.starting = false

	m.logger.Info().Str("session", s.ID).Str("file", s.FileName).Int64("offset", written).Msg("Transfer resumed")
	return m.launchLocked(ctx, backend), nil
}

// failUnreachable ends a retained session whose destination refuses to open,
// typically because its grant was revoked. The partial data can never be
// committed there, so it is purged the same way a terminal failure is.
func (m *Manager) failUnreachable(s *Session, err error) {
	m.mu.Lock()
	s.Status = models.StatusFailed
	s.LastError = err
	s.Transient = false
	s.UpdatedAt = time.Now()
	m.backend = nil
	if derr := m.discardLocked(s); derr != nil {
		m.logger.Warn().Err(derr).Str("session", s.ID).Msg("Cleanup after revoked destination failed")
	}
	m.session = nil
	final := *s
	m.mu.Unlock()

	m.publish(events.EventTransferFailed, &final, "", err)
	m.report(&final, err)
}

// launchLocked starts the stream goroutine for m.session.
func (m *Manager) launchLocked(ctx context.Context, backend storage.Backend) *Run {
	runCtx, cancel := context.WithCancelCause(ctx)
	ar := &activeRun{
		run:    &Run{SessionID: m.session.ID, Feed: events.NewFeed()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active = ar
	snap := *m.session

	go func() {
		defer close(ar.done)
		defer cancel(nil)
		err := m.stream(runCtx, ar, backend, snap)
		m.finish(ar, backend, err)
	}()
	return ar.run
}

// Pause stops the running transfer and keeps its partial data. It returns
// once the resume state is saved. Pausing an already paused session is a
// no-op.
func (m *Manager) Pause() error {
	m.mu.Lock()
	ar := m.active
	s := m.session
	m.mu.Unlock()

	if ar == nil {
		if s != nil && s.Status == models.StatusPaused {
			return nil
		}
		if s == nil {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.Status)
	}
	ar.cancel(errPaused)
	<-ar.done
	return nil
}

// Cancel stops the session in any state, deletes its temp artifact and
// clears resume state. All cleanup is finished when Cancel returns. Cancel
// with no session succeeds.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	if ar := m.active; ar != nil {
		m.mu.Unlock()
		ar.cancel(errCancelled)
		<-ar.done
		// The run may have finished for another reason first and left a
		// retained session behind.
		return m.Cancel()
	}
	if m.starting {
		m.mu.Unlock()
		return ErrAlreadyInProgress
	}

	s := m.session
	if s == nil {
		rec, err := m.store.Load()
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to load resume state: %w", err)
		}
		if rec == nil {
			m.mu.Unlock()
			return nil
		}
		s = sessionFromRecord(rec)
	}
	if s.HeldElsewhere() {
		m.mu.Unlock()
		return fmt.Errorf("%w (process %d)", ErrAlreadyInProgress, s.OwnerPID)
	}

	err := m.discardLocked(s)
	m.session, m.backend = nil, nil
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info().Str("session", s.ID).Str("file", s.FileName).Msg("Transfer cancelled")
	m.publish(events.EventTransferCancelled, s, "", context.Canceled)
	return nil
}

// discardLocked deletes a session's temp artifact and its resume state.
func (m *Manager) discardLocked(s *Session) error {
	var tempErr error
	if m.backend != nil {
		tempErr = m.backend.DiscardTemp(s.TempPath)
	} else {
		tempErr = removeTemp(s.TempPath)
	}
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear resume state: %w", err)
	}
	return tempErr
}

// SetDestination switches the active destination. It is rejected while a
// transfer is running, here or in another process. A retained session stays
// bound to the destination it started on.
func (m *Manager) SetDestination(dest models.StorageDestination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil || m.starting {
		return ErrTransferInProgress
	}
	rec, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load resume state: %w", err)
	}
	if rec != nil && rec.HeldByLiveProcess() {
		return fmt.Errorf("%w (process %d)", ErrTransferInProgress, rec.OwnerPID)
	}

	prev, err := m.dests.Active()
	if err != nil {
		return err
	}
	if err := m.dests.Use(dest); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(&events.DestinationChangedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventDestinationChanged, Time: time.Now()},
			Previous:  prev,
			Current:   dest,
		})
	}
	return nil
}

// finish applies a run's result to the session and delivers the outcome.
func (m *Manager) finish(ar *activeRun, backend storage.Backend, err error) {
	m.mu.Lock()
	s := m.session
	out := events.Outcome{SessionID: s.ID}
	eventType := events.EventTransferFailed
	s.UpdatedAt = time.Now()

	switch {
	case err == nil:
		s.Status = models.StatusCompleted
		s.LastError = nil
		out.Locator = string(s.Locator)
		eventType = events.EventTransferCompleted
		if cerr := m.store.Clear(); cerr != nil {
			m.logger.Warn().Err(cerr).Msg("Failed to clear resume state")
		}
		m.session, m.backend = nil, nil

	case errors.Is(err, errCancelled):
		s.Status = models.StatusFailed
		err = context.Canceled
		eventType = events.EventTransferCancelled
		if derr := m.discardLocked(s); derr != nil {
			m.logger.Warn().Err(derr).Str("session", s.ID).Msg("Cleanup after cancel failed")
		}
		m.session, m.backend = nil, nil

	case errors.Is(err, errPaused), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.Status = models.StatusPaused
		err = nil
		eventType = events.EventTransferPaused
		m.saveLocked(s)

	case paths.IsConflict(err):
		// The finished file is kept so a resume can commit it once the
		// collision is decided.
		s.Status = models.StatusFailed
		s.LastError = err
		s.Transient = true
		m.saveLocked(s)

	case IsNetworkError(err):
		s.Status = models.StatusFailed
		s.LastError = err
		s.Transient = true
		m.saveLocked(s)

	case IsStale(err):
		// Partial data is useless; keep the session so a retry starts over.
		s.Status = models.StatusFailed
		s.LastError = err
		s.Transient = false
		if derr := backend.DiscardTemp(s.TempPath); derr != nil {
			m.logger.Warn().Err(derr).Str("session", s.ID).Msg("Failed to discard stale temp file")
		}
		s.BytesWritten = 0
		m.saveLocked(s)

	default:
		s.Status = models.StatusFailed
		s.LastError = err
		if derr := m.discardLocked(s); derr != nil {
			m.logger.Warn().Err(derr).Str("session", s.ID).Msg("Cleanup after failure failed")
		}
		m.session, m.backend = nil, nil
	}

	out.Status = s.Status
	out.Err = err
	out.Progress = s.Progress()
	out.Durable = s.BytesWritten
	final := *s
	m.active = nil
	m.mu.Unlock()

	ar.run.Feed.Finish(out)
	m.publish(eventType, &final, out.Locator, err)
	m.report(&final, err)
}

// saveLocked persists a retained session.
func (m *Manager) saveLocked(s *Session) {
	if err := m.store.Save(s.record(s.BytesWritten)); err != nil {
		m.logger.Error().Err(err).Str("session", s.ID).Msg("Failed to save resume state")
	}
}

// report logs the outcome and sends a desktop notification.
func (m *Manager) report(s *Session, err error) {
	switch s.Status {
	case models.StatusCompleted:
		m.logger.Info().Str("session", s.ID).Str("locator", string(s.Locator)).
			Int64("bytes", s.BytesWritten).Msg("Transfer completed")
		if m.notifier != nil {
			m.notifier.DownloadComplete(s.FileName, string(s.Locator))
		}
	case models.StatusPaused:
		m.logger.Info().Str("session", s.ID).Int64("bytes", s.BytesWritten).Msg("Transfer paused")
	case models.StatusFailed:
		if IsCancelled(err) {
			m.logger.Info().Str("session", s.ID).Msg("Transfer cancelled")
			return
		}
		m.logger.Error().Err(err).Str("session", s.ID).Str("kind", Kind(err)).
			Bool("resumable", s.Transient || IsStale(err)).Msg("Transfer failed")
		if m.notifier != nil {
			m.notifier.DownloadFailed(s.FileName, err.Error())
		}
	}
}

func (m *Manager) publish(t events.EventType, s *Session, locator string, err error) {
	if m.bus == nil {
		return
	}
	m.bus.PublishTransfer(t, s.ID, s.FileName, s.Status, s.Progress(), locator, err)
}

func removeTemp(p string) error {
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return storage.Classify("discard", storage.Locator(p), err, storage.ErrWriteFailed)
	}
	return nil
}
