package wa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	"github.com/wacrm/pkg/domains/whatsapp"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Device is the credential material of one session: a whatsmeow device
// backed by its own sqlite file.
type Device struct {
	sessionID string
	device    *store.Device
}

func (d *Device) SessionID() string {
	return d.sessionID
}

// CredentialStore keeps one whatsmeow sqlstore file per session under dir.
type CredentialStore struct {
	dir string
	log *zap.Logger

	mu         sync.Mutex
	containers map[string]*sqlstore.Container
}

func NewCredentialStore(dir string, log *zap.Logger) (*CredentialStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create credentials dir %s", dir)
	}
	return &CredentialStore{
		dir:        dir,
		log:        log,
		containers: make(map[string]*sqlstore.Container),
	}, nil
}

func (s *CredentialStore) path(sessionID string) string {
	name := sessionID
	if !safeName.MatchString(name) {
		sum := sha256.Sum256([]byte(sessionID))
		name = hex.EncodeToString(sum[:16])
	}
	return filepath.Join(s.dir, name+".db")
}

func (s *CredentialStore) container(ctx context.Context, sessionID string) (*sqlstore.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[sessionID]; ok {
		return c, nil
	}
	dsn := "file:" + s.path(sessionID) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"
	c, err := sqlstore.New(ctx, "sqlite", dsn, NewLogger(s.log.Named("store")))
	if err != nil {
		return nil, errors.Wrap(err, "open credential store")
	}
	s.containers[sessionID] = c
	return c, nil
}

// LoadOrInit returns the stored device for sessionID, or a fresh unpaired one.
func (s *CredentialStore) LoadOrInit(ctx context.Context, sessionID string) (whatsapp.Credentials, error) {
	c, err := s.container(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	device, err := c.GetFirstDevice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load device")
	}
	return &Device{sessionID: sessionID, device: device}, nil
}

// Persist saves a paired device. Unpaired devices have nothing worth keeping yet.
func (s *CredentialStore) Persist(ctx context.Context, sessionID string, creds whatsapp.Credentials) error {
	d, ok := creds.(*Device)
	if !ok {
		return errors.Errorf("unexpected credentials type %T", creds)
	}
	if d.device.ID == nil {
		return nil
	}
	return errors.Wrap(d.device.Save(ctx), "save device")
}

// Remove closes the session's store and deletes its files.
func (s *CredentialStore) Remove(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	c, ok := s.containers[sessionID]
	delete(s.containers, sessionID)
	s.mu.Unlock()

	if ok {
		if err := c.Close(); err != nil {
			s.log.Warn("failed to close credential store", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	base := s.path(sessionID)
	for _, p := range []string{base, base + "-wal", base + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", p)
		}
	}
	return nil
}

// Close releases every open store.
func (s *CredentialStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.containers {
		if err := c.Close(); err != nil {
			s.log.Warn("failed to close credential store", zap.String("session_id", id), zap.Error(err))
		}
		delete(s.containers, id)
	}
}

var _ whatsapp.CredentialStore = (*CredentialStore)(nil)
