package captcha

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JMURv/session-core/internal/config"
	"github.com/goccy/go-json"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
)

type Port interface {
	VerifyRecaptcha(ctx context.Context, token string, action Actions) (bool, error)
}

type Actions string

const (
	Login  Actions = "login"
	Signup Actions = "signup"
)

const (
	captchaScore = 0.5
	verifyURL    = "https://www.google.com/recaptcha/api/siteverify"
)

type response struct {
	Success bool    `json:"success"`
	Score   float64 `json:"score"`
	Action  string  `json:"action"`
}

type Core struct {
	enabled bool
	secret  string
	url     string
	cli     *http.Client
}

func New(conf config.CaptchaConfig) *Core {
	return &Core{
		enabled: conf.Enabled,
		secret:  conf.Secret,
		url:     verifyURL,
		cli:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *Core) VerifyRecaptcha(ctx context.Context, token string, action Actions) (bool, error) {
	const op = "auth.VerifyRecaptcha.captcha"
	span, ctx := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	if !c.enabled {
		return true, nil
	}

	if token == "" {
		return false, nil
	}

	form := url.Values{"secret": {c.secret}, "response": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.cli.Do(req)
	if err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error("failed to verify recaptcha", zap.String("op", op), zap.Error(err))
		return false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Error("failed to close body", zap.String("op", op), zap.Error(err))
		}
	}()

	var result response
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error("failed to decode recaptcha response", zap.String("op", op), zap.Error(err))
		return false, err
	}

	if !result.Success || result.Score < captchaScore {
		zap.L().Debug("not enough score", zap.Float64("score", result.Score))
		return false, nil
	}
	return result.Action == string(action), nil
}
