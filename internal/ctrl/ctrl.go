package ctrl

import (
	"context"
	"io"
	"time"

	"github.com/JMURv/session-core/internal/admission"
	"github.com/JMURv/session-core/internal/auth"
	"github.com/JMURv/session-core/internal/auth/captcha"
	"github.com/JMURv/session-core/internal/config"
	md "github.com/JMURv/session-core/internal/models"
	"github.com/google/uuid"
)

type AppRepo interface {
	GetAccountByID(ctx context.Context, id uuid.UUID) (*md.Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (*md.Account, error)
	CreateAccount(ctx context.Context, acc *md.Account) error
	UpdateAccount(ctx context.Context, id uuid.UUID, fn func(*md.Account) error) (*md.Account, error)
}

type AppCtrl interface {
	authCtrl
	authenticator
	deviceCtrl
	accountCtrl
}

type CacheService interface {
	io.Closer
	GetToStruct(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, t time.Duration, key string, val any) error
	SetNX(ctx context.Context, t time.Duration, key string, val any) (bool, error)
	Delete(ctx context.Context, key string)
	Generation(ctx context.Context, genKey string) (int64, error)
	SetAtGeneration(ctx context.Context, t time.Duration, key, genKey string, gen int64, val any) (bool, error)
	Invalidate(ctx context.Context, key, genKey string) error
}

type Gate interface {
	Consume(ctx context.Context, action admission.Action, subject string) error
	AcquireConnection(ctx context.Context, ip string) error
	ReleaseConnection(ctx context.Context, ip string)
}

type Mailer interface {
	SendVerificationCode(ctx context.Context, toEmail, code string) error
}

type Controller struct {
	au      auth.Core
	repo    AppRepo
	cache   CacheService
	gate    Gate
	mailer  Mailer
	captcha captcha.Port

	cacheTimeout time.Duration
	now          func() time.Time
}

func New(
	au auth.Core,
	repo AppRepo,
	cache CacheService,
	gate Gate,
	mailer Mailer,
	cpt captcha.Port,
) *Controller {
	return &Controller{
		au:           au,
		repo:         repo,
		cache:        cache,
		gate:         gate,
		mailer:       mailer,
		captcha:      cpt,
		cacheTimeout: config.CacheReadTimeout,
		now:          time.Now,
	}
}
