package whatsapp

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/wacrm/pkg/config"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
)

type Options struct {
	MaxSessionsPerWorkspace int
	MaxReconnectAttempts    int
	ReconnectBaseDelay      time.Duration
	ReconnectMaxDelay       time.Duration
	// TeardownTimeout bounds how long a teardown waits for the event loop to exit.
	TeardownTimeout time.Duration
}

func OptionsFromConfig(c config.WhatsApp) Options {
	return Options{
		MaxSessionsPerWorkspace: c.MaxSessionsPerWorkspace,
		MaxReconnectAttempts:    c.MaxReconnectAttempts,
		ReconnectBaseDelay:      time.Duration(c.ReconnectBaseDelayMs) * time.Millisecond,
		ReconnectMaxDelay:       time.Duration(c.ReconnectMaxDelayMs) * time.Millisecond,
		TeardownTimeout:         10 * time.Second,
	}
}

// SessionDescriptor is the externally visible state of a session.
type SessionDescriptor struct {
	SessionID       string     `json:"session_id"`
	SessionName     string     `json:"session_name"`
	WorkspaceID     string     `json:"workspace_id"`
	Status          string     `json:"status"`
	QRCode          string     `json:"qr_code"`
	PhoneNumber     string     `json:"phone_number"`
	LastConnectedAt *time.Time `json:"last_connected_at,omitempty"`
}

// Manager owns the lifecycle of every session in the process.
type Manager struct {
	opts     Options
	repo     Repository
	creds    CredentialStore
	dialer   Dialer
	registry *Registry
	pipeline *Pipeline
	log      *zap.Logger

	// locks serializes create, stop and delete per session id.
	locks keyedMutex

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func NewManager(opts Options, repo Repository, creds CredentialStore, dialer Dialer, registry *Registry, pipeline *Pipeline, log *zap.Logger) *Manager {
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = 10 * time.Second
	}
	return &Manager{
		opts:     opts,
		repo:     repo,
		creds:    creds,
		dialer:   dialer,
		registry: registry,
		pipeline: pipeline,
		log:      log,
	}
}

// CreateSession starts (or restarts) a session and returns as soon as the
// connection is dialed. Pairing and connecting continue in the background.
func (m *Manager) CreateSession(ctx context.Context, sessionID, sessionName, workspaceID string) (SessionDescriptor, error) {
	return m.createSession(ctx, sessionID, sessionName, workspaceID, 0, nil)
}

// createSession is CreateSession carrying the consecutive failure count. A
// non-nil from is the handle being replaced by a scheduled reconnect; the
// call is abandoned if that handle was torn down in the meantime.
func (m *Manager) createSession(ctx context.Context, sessionID, sessionName, workspaceID string, attempts int, from *Entry) (SessionDescriptor, error) {
	if !m.enter() {
		return SessionDescriptor{}, ErrManagerStopped
	}
	defer m.inflight.Done()

	unlock := m.locks.lock(sessionID)
	defer unlock()

	count, err := m.repo.CountOtherSessions(ctx, workspaceID, sessionID, sessionName)
	if err != nil {
		return SessionDescriptor{}, errors.Wrap(err, "count sessions")
	}
	if count >= int64(m.opts.MaxSessionsPerWorkspace) {
		return SessionDescriptor{}, ErrQuotaExceeded
	}

	var gen uint64
	if from != nil {
		var ok bool
		if gen, ok = m.registry.beginIfCurrent(from); !ok {
			return SessionDescriptor{}, ErrSessionNotFound
		}
		m.teardown(from, true)
	} else {
		var prev *Entry
		gen, prev = m.registry.begin(sessionID)
		m.teardown(prev, true)
	}
	m.updateGauge()

	replaced, err := m.repo.UpsertSession(ctx, entities.WhatsAppSession{
		SessionID:   sessionID,
		SessionName: sessionName,
		WorkspaceID: workspaceID,
		Status:      entities.SessionStatusConnecting,
	})
	if err != nil {
		return SessionDescriptor{}, errors.Wrap(err, "persist session")
	}
	if replaced != "" {
		m.release(ctx, replaced)
	}

	creds, err := m.creds.LoadOrInit(ctx, sessionID)
	if err != nil {
		return SessionDescriptor{}, m.setupFailed(ctx, sessionID, errors.Wrap(err, "load credentials"))
	}
	conn, err := m.dialer.Dial(ctx, sessionID, creds)
	if err != nil {
		return SessionDescriptor{}, m.setupFailed(ctx, sessionID, errors.Wrap(err, "dial"))
	}

	entry := &Entry{
		SessionID:   sessionID,
		SessionName: sessionName,
		WorkspaceID: workspaceID,
		Status:      entities.SessionStatusConnecting,
		Attempts:    attempts,
		MaxAttempts: m.opts.MaxReconnectAttempts,
		conn:        conn,
		creds:       creds,
		done:        make(chan struct{}),
	}
	entry.ctx, entry.cancel = context.WithCancel(context.Background())

	if !m.registry.commit(gen, entry) {
		entry.cancel()
		conn.Close()
		return SessionDescriptor{}, errors.Wrap(ErrSessionNotFound, "session was torn down during setup")
	}
	go m.run(entry)

	m.log.Info("session created",
		zap.String("session_id", sessionID),
		zap.String("workspace_id", workspaceID),
		zap.Int("attempts", attempts))

	return SessionDescriptor{
		SessionID:   sessionID,
		SessionName: sessionName,
		WorkspaceID: workspaceID,
		Status:      entities.SessionStatusConnecting,
	}, nil
}

// enter registers an in-flight create unless Shutdown has begun.
func (m *Manager) enter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.inflight.Add(1)
	return true
}

func (m *Manager) setupFailed(ctx context.Context, sessionID string, cause error) error {
	m.log.Error("connection setup failed", zap.String("session_id", sessionID), zap.Error(cause))
	if err := m.repo.UpdateSession(ctx, sessionID, map[string]interface{}{
		"status":  entities.SessionStatusError,
		"qr_code": "",
	}); err != nil {
		m.log.Error("failed to persist session error", zap.String("session_id", sessionID), zap.Error(err))
	}
	return errors.Wrap(ErrConnectionSetupFailed, cause.Error())
}

// release drops the live handle and credentials of a record that was taken over by another session id.
func (m *Manager) release(ctx context.Context, sessionID string) {
	_, prev := m.registry.begin(sessionID)
	m.teardown(prev, true)
	if err := m.creds.Remove(ctx, sessionID); err != nil {
		m.log.Warn("failed to remove credentials of replaced session", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.log.Info("session replaced", zap.String("session_id", sessionID))
}

// teardown stops e's reconnect timer, cancels its context and closes its
// connection. e must already be out of the registry. With wait set it also
// waits for the event loop to exit; never wait from the loop itself.
func (m *Manager) teardown(e *Entry, wait bool) {
	if e == nil {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.cancel()
	e.conn.Close()

	if !wait {
		return
	}
	select {
	case <-e.done:
	case <-time.After(m.opts.TeardownTimeout):
		m.log.Warn("event loop did not exit in time", zap.String("session_id", e.SessionID))
	}
}

func (m *Manager) run(e *Entry) {
	defer close(e.done)

	if err := e.conn.Connect(e.ctx); err != nil {
		m.handleClosed(e, ClosedEvent{Reason: errors.Wrap(ErrTransientDisconnect, err.Error()).Error()})
		return
	}
	for ev := range e.conn.Events() {
		if !m.registry.isCurrent(e) {
			continue
		}
		m.dispatch(e, ev)
	}
}

func (m *Manager) dispatch(e *Entry, ev Event) {
	switch ev := ev.(type) {
	case QREvent:
		m.handleQR(e, ev)
	case OpenEvent:
		m.handleOpen(e, ev)
	case ClosedEvent:
		m.handleClosed(e, ev)
	case CredsUpdateEvent:
		if err := m.creds.Persist(e.ctx, e.SessionID, e.creds); err != nil {
			m.log.Error("failed to persist credentials", zap.String("session_id", e.SessionID), zap.Error(err))
		}
	case MessagesEvent:
		m.pipeline.IngestBatch(e.ctx, m.sessionContext(e), ev)
	case ReceiptEvent:
		if _, err := m.pipeline.ApplyReceipt(e.ctx, m.sessionContext(e), ev); err != nil {
			m.log.Warn("failed to apply receipt", zap.String("session_id", e.SessionID), zap.Error(err))
		}
	}
}

func (m *Manager) sessionContext(e *Entry) SessionContext {
	snap := m.registry.snapshot(e)
	return SessionContext{
		SessionID:   snap.SessionID,
		WorkspaceID: snap.WorkspaceID,
		OwnPhone:    snap.Phone,
		ConnectedAt: snap.ConnectedAt,
	}
}

// persist writes fields to e's record unless e has been replaced.
func (m *Manager) persist(e *Entry, fields map[string]interface{}) {
	if !m.registry.isCurrent(e) {
		return
	}
	if err := m.repo.UpdateSession(e.ctx, e.SessionID, fields); err != nil {
		m.log.Error("failed to persist session state", zap.String("session_id", e.SessionID), zap.Error(err))
	}
}

func (m *Manager) handleQR(e *Entry, ev QREvent) {
	img, err := RenderQR(ev.Code)
	if err != nil {
		m.log.Warn("failed to render QR code", zap.String("session_id", e.SessionID), zap.Error(err))
		return
	}
	if !m.registry.update(e, func(x *Entry) { x.QRCode = img }) {
		return
	}
	m.persist(e, map[string]interface{}{
		"status":  entities.SessionStatusConnecting,
		"qr_code": img,
	})
}

func (m *Manager) handleOpen(e *Entry, ev OpenEvent) {
	now := time.Now()
	phone := NormalizePhone(ev.Phone)
	if !m.registry.update(e, func(x *Entry) {
		x.Status = entities.SessionStatusConnected
		x.Attempts = 0
		x.ConnectedAt = now
		x.Phone = phone
		x.QRCode = ""
	}) {
		return
	}
	m.updateGauge()
	m.persist(e, map[string]interface{}{
		"status":            entities.SessionStatusConnected,
		"phone_number":      phone,
		"qr_code":           "",
		"last_connected_at": now,
	})
	m.log.Info("session connected", zap.String("session_id", e.SessionID), zap.String("phone", phone))
}

func (m *Manager) handleClosed(e *Entry, ev ClosedEvent) {
	var (
		handled   bool
		retry     bool
		delay     time.Duration
		attempts  int
		exhausted bool
	)
	m.registry.update(e, func(x *Entry) {
		if x.closed {
			return
		}
		x.closed = true
		handled = true
		x.Status = entities.SessionStatusDisconnected
		x.QRCode = ""
		if ev.LoggedOut || ev.Replaced {
			return
		}
		if x.Attempts >= x.MaxAttempts {
			exhausted = true
			return
		}
		delay = BackoffDelay(x.Attempts, m.opts.ReconnectBaseDelay, m.opts.ReconnectMaxDelay)
		x.Attempts++
		attempts = x.Attempts
		retry = true
	})
	if !handled {
		return
	}
	m.updateGauge()

	fields := map[string]interface{}{
		"status":  entities.SessionStatusDisconnected,
		"qr_code": "",
	}
	if ev.LoggedOut {
		fields["phone_number"] = ""
	}
	m.persist(e, fields)

	log := m.log.With(zap.String("session_id", e.SessionID), zap.String("reason", ev.Reason))
	if retry {
		armed := m.registry.update(e, func(x *Entry) {
			x.timer = time.AfterFunc(delay, func() { m.fireReconnect(e, attempts) })
		})
		if armed {
			reconnectsScheduled.Inc()
			log.Info("reconnect scheduled", zap.Duration("delay", delay), zap.Int("attempt", attempts))
		}
		return
	}

	switch {
	case ev.LoggedOut:
		log.Info("session logged out")
	case ev.Replaced:
		log.Warn("session replaced by another client")
	case exhausted:
		log.Warn("reconnect attempts exhausted", zap.Int("max_attempts", e.MaxAttempts))
	}
	if m.registry.removeIfCurrent(e) {
		m.teardown(e, false)
	}
}

func (m *Manager) fireReconnect(e *Entry, attempts int) {
	if e.ctx.Err() != nil {
		return
	}
	_, err := m.createSession(context.Background(), e.SessionID, e.SessionName, e.WorkspaceID, attempts, e)
	if err == nil || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrManagerStopped) {
		return
	}
	m.log.Warn("reconnect failed", zap.String("session_id", e.SessionID), zap.Int("attempt", attempts), zap.Error(err))
	if m.registry.removeIfCurrent(e) {
		m.teardown(e, false)
	}
}

// DisconnectSession logs the session out when possible and always leaves it
// disconnected. A logout failure is only logged.
func (m *Manager) DisconnectSession(ctx context.Context, sessionID string) error {
	unlock := m.locks.lock(sessionID)
	defer unlock()

	m.stop(ctx, sessionID)

	err := m.repo.UpdateSession(ctx, sessionID, map[string]interface{}{
		"status":       entities.SessionStatusDisconnected,
		"qr_code":      "",
		"phone_number": "",
	})
	if err != nil {
		return errors.Wrap(err, "mark session disconnected")
	}
	m.log.Info("session disconnected", zap.String("session_id", sessionID))
	return nil
}

// stop removes the live handle, cancels any pending reconnect and logs the
// protocol session out. It returns once the handle is torn down. The caller
// holds the session lock, so no create for sessionID is in flight.
func (m *Manager) stop(ctx context.Context, sessionID string) {
	_, prev := m.registry.begin(sessionID)
	if prev == nil {
		return
	}
	if prev.timer != nil {
		prev.timer.Stop()
	}
	if err := prev.conn.Logout(ctx); err != nil {
		m.log.Warn("graceful logout failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.teardown(prev, true)
	m.updateGauge()
}

// DeleteSessionPermanently tears the session down and removes its record and credentials.
func (m *Manager) DeleteSessionPermanently(ctx context.Context, sessionID string) error {
	if _, err := m.repo.GetSession(ctx, sessionID); err != nil {
		return err
	}

	unlock := m.locks.lock(sessionID)
	defer unlock()

	m.stop(ctx, sessionID)

	if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
		return errors.Wrap(err, "delete session")
	}
	if err := m.creds.Remove(ctx, sessionID); err != nil {
		return errors.Wrap(err, "remove credentials")
	}
	m.log.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// ReconnectSession restarts a resting session from its stored identifiers.
func (m *Manager) ReconnectSession(ctx context.Context, sessionID string) (SessionDescriptor, error) {
	record, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return SessionDescriptor{}, err
	}
	return m.CreateSession(ctx, record.SessionID, record.SessionName, record.WorkspaceID)
}

// GetSession returns the stored record overlaid with the live registry state.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (SessionDescriptor, error) {
	record, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return SessionDescriptor{}, err
	}
	return m.describe(record), nil
}

func (m *Manager) describe(record entities.WhatsAppSession) SessionDescriptor {
	d := SessionDescriptor{
		SessionID:       record.SessionID,
		SessionName:     record.SessionName,
		WorkspaceID:     record.WorkspaceID,
		Status:          record.Status,
		QRCode:          record.QRCode,
		PhoneNumber:     record.PhoneNumber,
		LastConnectedAt: record.LastConnectedAt,
	}
	if e, ok := m.registry.Get(record.SessionID); ok {
		d.Status = e.Status
		d.QRCode = e.QRCode
		d.PhoneNumber = e.Phone
	}
	return d
}

// Shutdown closes every live handle without logging out, so the sessions
// are restored on the next start. Creates still in flight are waited for and
// no new ones are accepted afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.opts.TeardownTimeout):
		m.log.Warn("session setups still running at shutdown")
	}

	for _, e := range m.registry.close() {
		m.teardown(e, true)
	}
	m.updateGauge()
	m.log.Info("session manager stopped")
}

func (m *Manager) updateGauge() {
	sessionsConnected.Set(float64(m.registry.countStatus(entities.SessionStatusConnected)))
}
