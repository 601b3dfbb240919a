package ctrl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth"
	"github.com/JMURv/session-core/internal/auth/captcha"
	"github.com/JMURv/session-core/internal/auth/jwt"
	"github.com/JMURv/session-core/internal/cache/redis"
	"github.com/JMURv/session-core/internal/config"
	"github.com/JMURv/session-core/internal/dto"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/JMURv/session-core/internal/repo"
	"github.com/alicebob/miniredis/v2"
	rds "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPhone    = "+15550000001"
	testPassword = "password-1"
	testIP       = "192.168.1.1"
)

var testDevice = &dto.DeviceRequest{IP: testIP, UA: "test-user-agent"}

var testAdmission = config.AdmissionConfig{
	RequestLimit:  1000,
	RequestWindow: 90 * time.Second,
	LoginLimit:    50,
	LoginWindow:   time.Minute,
	VerifyLimit:   5,
	VerifyWindow:  time.Minute,
	ConnectLimit:  10,
	ConnectWindow: time.Minute,
	ConnCap:       2,
	ConnSlotTTL:   time.Hour,
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// memRepo is a transactional in-memory AppRepo: UpdateAccount holds one lock
// for the whole read-modify-write.
type memRepo struct {
	mu   sync.Mutex
	accs map[uuid.UUID]*md.Account
}

func newMemRepo() *memRepo {
	return &memRepo{accs: make(map[uuid.UUID]*md.Account)}
}

func cloneAccount(a *md.Account) *md.Account {
	c := *a
	c.Devices = append([]md.DeviceRecord(nil), a.Devices...)
	return &c
}

func (r *memRepo) GetAccountByID(_ context.Context, id uuid.UUID) (*md.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneAccount(a), nil
}

func (r *memRepo) GetAccountByPhone(_ context.Context, phone string) (*md.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accs {
		if a.Phone == phone {
			return cloneAccount(a), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (r *memRepo) CreateAccount(_ context.Context, acc *md.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accs {
		if a.Phone == acc.Phone {
			return repo.ErrAlreadyExists
		}
	}
	r.accs[acc.ID] = cloneAccount(acc)
	return nil
}

func (r *memRepo) UpdateAccount(_ context.Context, id uuid.UUID, fn func(*md.Account) error) (*md.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	upd := cloneAccount(a)
	if err := fn(upd); err != nil {
		return nil, err
	}
	r.accs[id] = upd
	return cloneAccount(upd), nil
}

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, toEmail, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.codes[toEmail] = code
	return nil
}

func (m *fakeMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type testEnv struct {
	ctrl   *Controller
	mr     *miniredis.Miniredis
	clk    *clock
	mailer *fakeMailer
}

func newTestEnv(t *testing.T, store AppRepo, conf config.AdmissionConfig) *testEnv {
	t.Helper()

	clk := &clock{t: time.Now()}
	j, err := jwt.NewWithClock(config.JWTConfig{Secret: testSecret, Issuer: "test"}, clk.Now)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	cache := redis.NewWithClient(rds.NewClient(&rds.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	if store == nil {
		store = newMemRepo()
	}

	mailer := &fakeMailer{codes: make(map[string]string)}
	c := New(
		auth.NewWithCost(j, bcrypt.MinCost),
		store,
		cache,
		admission.New(cache, conf),
		mailer,
		captcha.New(config.CaptchaConfig{}),
	)
	c.now = clk.Now

	return &testEnv{ctrl: c, mr: mr, clk: clk, mailer: mailer}
}

func (e *testEnv) signup(t *testing.T, phone, deviceID string) *dto.LoginResponse {
	t.Helper()

	res, err := e.ctrl.Signup(
		context.Background(), testDevice, &dto.SignupRequest{
			Phone:    phone,
			Email:    "a@example.com",
			Password: testPassword,
			DeviceID: deviceID,
		},
	)
	require.NoError(t, err)
	return res
}
