package smtp

import (
	"context"
	"fmt"

	"github.com/JMURv/session-core/internal/config"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

const verificationSubject = "Your verification code"

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailServer struct {
	user   string
	dialer sender
}

func New(conf config.EmailConfig) *EmailServer {
	return &EmailServer{
		user:   conf.User,
		dialer: gomail.NewDialer(conf.Server, conf.Port, conf.User, conf.Pass),
	}
}

func (s *EmailServer) GetMessageBase(subject, toEmail string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.user)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	return m
}

func (s *EmailServer) SendVerificationCode(ctx context.Context, toEmail, code string) error {
	const op = "smtp.SendVerificationCode"
	span, _ := opentracing.StartSpanFromContext(ctx, op)
	defer span.Finish()

	m := s.GetMessageBase(verificationSubject, toEmail)
	m.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires in %v.", code, config.VerifyCodeTime))

	if err := s.dialer.DialAndSend(m); err != nil {
		span.SetTag(config.ErrorSpanTag, true)
		zap.L().Error(
			"Failed to send an email",
			zap.String("op", op),
			zap.Error(err),
		)
		return err
	}
	return nil
}
