package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ioea/academy/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:auth_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Role{}, &models.UserRole{}, &models.Session{},
		&models.PasswordResetToken{}, &models.EmailChangeToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, store Store, clock *testClock) *Service {
	t.Helper()
	return NewService(Options{
		Store:      store,
		Cache:      NewMemoryCache(16),
		Logger:     slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		BcryptCost: 10,
		Now:        clock.Now,
	})
}

// createUser inserts a user holding roles. An empty password leaves the
// account without a password hash.
func createUser(t *testing.T, db *gorm.DB, email, password string, roles ...Role) *models.User {
	t.Helper()
	u := models.User{Email: email, Name: "Test " + email, Active: true}
	if password != "" {
		h, err := HashPassword(password, 10)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.PasswordHash = &h
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, r := range roles {
		grant(t, db, u.ID, r)
	}
	return &u
}

func grant(t *testing.T, db *gorm.DB, userID uint, r Role) {
	t.Helper()
	role := models.Role{Name: string(r)}
	if err := db.Where("name = ?", string(r)).FirstOrCreate(&role).Error; err != nil {
		t.Fatalf("role: %v", err)
	}
	if err := db.Create(&models.UserRole{UserID: userID, RoleID: role.ID, GrantedAt: time.Now()}).Error; err != nil {
		t.Fatalf("user role: %v", err)
	}
}

var errStoreDown = errors.New("connection refused")

// flakyStore wraps a GormStore and fails selected calls.
type flakyStore struct {
	*GormStore
	mu         sync.Mutex
	failCreate bool
	down       bool
}

func (f *flakyStore) set(failCreate, down bool) {
	f.mu.Lock()
	f.failCreate, f.down = failCreate, down
	f.mu.Unlock()
}

func (f *flakyStore) state() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failCreate, f.down
}

func (f *flakyStore) CreateSession(ctx context.Context, s *models.Session) error {
	if fc, down := f.state(); fc || down {
		return errStoreDown
	}
	return f.GormStore.CreateSession(ctx, s)
}

func (f *flakyStore) FindSession(ctx context.Context, hash string) (*models.Session, error) {
	if _, down := f.state(); down {
		return nil, errStoreDown
	}
	return f.GormStore.FindSession(ctx, hash)
}

func (f *flakyStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	if _, down := f.state(); down {
		return nil, errStoreDown
	}
	return f.GormStore.FindUserByID(ctx, id)
}

func (f *flakyStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if _, down := f.state(); down {
		return nil, errStoreDown
	}
	return f.GormStore.FindUserByEmail(ctx, email)
}

func (f *flakyStore) UserRoles(ctx context.Context, id uint) ([]Role, error) {
	if _, down := f.state(); down {
		return nil, errStoreDown
	}
	return f.GormStore.UserRoles(ctx, id)
}

func (f *flakyStore) DeleteSession(ctx context.Context, hash string) error {
	if _, down := f.state(); down {
		return errStoreDown
	}
	return f.GormStore.DeleteSession(ctx, hash)
}
