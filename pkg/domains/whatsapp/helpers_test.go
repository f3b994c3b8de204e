package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/wacrm/pkg/crypto"
	"github.com/wacrm/pkg/database"
	"github.com/wacrm/pkg/entities"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestGateway(t *testing.T) crypto.Gateway {
	t.Helper()
	g, err := crypto.NewGateway("test-secret")
	require.NoError(t, err)
	return g
}

type fakeCredentials struct {
	id string
}

func (c *fakeCredentials) SessionID() string { return c.id }

type fakeCredStore struct {
	mu        sync.Mutex
	loadErr   error
	loads     map[string]int
	persisted map[string]int
	removed   []string
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{loads: map[string]int{}, persisted: map[string]int{}}
}

func (s *fakeCredStore) LoadOrInit(_ context.Context, id string) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.loads[id]++
	return &fakeCredentials{id: id}, nil
}

func (s *fakeCredStore) Persist(_ context.Context, id string, _ Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted[id]++
	return nil
}

func (s *fakeCredStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
	return nil
}

func (s *fakeCredStore) wasRemoved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.removed {
		if r == id {
			return true
		}
	}
	return false
}

func (s *fakeCredStore) loadCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[id]
}

func (s *fakeCredStore) persistCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted[id]
}

type fakeConn struct {
	sessionID  string
	connectErr error
	logoutErr  error

	mu      sync.Mutex
	events  chan Event
	closed  bool
	logouts int
	sent    []string
}

func newFakeConn(sessionID string) *fakeConn {
	return &fakeConn{sessionID: sessionID, events: make(chan Event, 32)}
}

func (c *fakeConn) Events() <-chan Event { return c.events }

func (c *fakeConn) Connect(context.Context) error { return c.connectErr }

func (c *fakeConn) SendText(_ context.Context, phone, text string) (SendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, phone+":"+text)
	return SendReceipt{ID: fmt.Sprintf("OUT-%d", len(c.sent)), Timestamp: time.Now()}, nil
}

func (c *fakeConn) Logout(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

func (c *fakeConn) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) logoutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

type fakeDialer struct {
	mu         sync.Mutex
	dialErr    error
	connectErr error
	conns      []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, sessionID string, _ Credentials) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := newFakeConn(sessionID)
	c.connectErr = d.connectErr
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setConnectErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

type harness struct {
	db       *gorm.DB
	repo     Repository
	gateway  crypto.Gateway
	creds    *fakeCredStore
	dialer   *fakeDialer
	registry *Registry
	pipeline *Pipeline
	manager  *Manager
}

func testOptions() Options {
	return Options{
		MaxSessionsPerWorkspace: 3,
		MaxReconnectAttempts:    5,
		ReconnectBaseDelay:      time.Millisecond,
		ReconnectMaxDelay:       4 * time.Millisecond,
		TeardownTimeout:         time.Second,
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	h := &harness{
		db:       newTestDB(t),
		gateway:  newTestGateway(t),
		creds:    newFakeCredStore(),
		dialer:   &fakeDialer{},
		registry: NewRegistry(),
	}
	h.repo = NewRepo(h.db)
	h.pipeline = NewPipeline(h.repo, h.gateway, zap.NewNop())
	h.manager = NewManager(opts, h.repo, h.creds, h.dialer, h.registry, h.pipeline, zap.NewNop())
	t.Cleanup(h.manager.Shutdown)
	return h
}

func (h *harness) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, what)
}

func (h *harness) waitStatus(t *testing.T, sessionID, status string) {
	t.Helper()
	h.waitFor(t, "registry status "+status, func() bool {
		e, ok := h.registry.Get(sessionID)
		return ok && e.Status == status
	})
}

// connect creates a session and drives it to the connected state.
func (h *harness) connect(t *testing.T, sessionID, workspaceID, phone string) *fakeConn {
	t.Helper()
	_, err := h.manager.CreateSession(context.Background(), sessionID, sessionID+"-name", workspaceID)
	require.NoError(t, err)
	conn := h.dialer.last()
	conn.emit(OpenEvent{Phone: phone})
	h.waitStatus(t, sessionID, "connected")
	return conn
}

var errBoom = errors.New("boom")

// gatedRepo holds the next UpsertSession after arm until release is closed.
type gatedRepo struct {
	Repository

	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRepo) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedRepo) UpsertSession(ctx context.Context, session entities.WhatsAppSession) (string, error) {
	g.mu.Lock()
	armed, entered, release := g.armed, g.entered, g.release
	g.armed = false
	g.mu.Unlock()

	if armed {
		close(entered)
		<-release
	}
	return g.Repository.UpsertSession(ctx, session)
}

func (g *gatedRepo) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("session setup never reached the store")
	}
}

// gate rebuilds the manager on top of a gatedRepo.
func (h *harness) gate(t *testing.T, opts Options) *gatedRepo {
	t.Helper()
	g := &gatedRepo{Repository: h.repo}
	h.manager = NewManager(opts, g, h.creds, h.dialer, h.registry, h.pipeline, zap.NewNop())
	t.Cleanup(h.manager.Shutdown)
	return g
}
