package config

import "time"

type ctxKey string

const (
	UidKey      ctxKey = "uid"
	IdentityKey ctxKey = "identity"
	IpKey       ctxKey = "ip"
	UaKey       ctxKey = "ua"
)

const (
	MinCacheTime     = time.Minute * 5
	GenerationTime   = time.Hour * 24
	CacheReadTimeout = time.Second * 5
	VerifyCodeTime   = time.Minute * 10
)

const (
	AccessTokenDuration  = time.Hour
	RefreshTokenDuration = time.Hour * 24 * 7
	TokenLeeway          = time.Second * 30
	GraceWindow          = time.Second * 60
	RenewThreshold       = time.Minute * 5
	MinSecretLength      = 32
)

const (
	BearerPrefix   = "Bearer "
	NewTokenHeader = "X-New-Token"
	WSTokenParam   = "access_token"
)

const ErrorSpanTag = "error"
