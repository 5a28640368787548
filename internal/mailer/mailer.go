package mailer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/util"
)

// Dispatcher delivers verification codes to users
type Dispatcher interface {
	SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

// DispatchPolicy decides what a delivery failure means to the caller.
// Production treats an undelivered code as a failed operation; development
// logs the code and lets the flow continue without a mail server.
type DispatchPolicy interface {
	OnSendFailure(email, code string, err error) error
}

type strictPolicy struct{}

func (strictPolicy) OnSendFailure(email, _ string, err error) error {
	util.Error("Failed to send OTP email",
		zap.String("email", email),
		zap.Error(err))
	return fmt.Errorf("failed to send OTP email: %w", err)
}

type loggingPolicy struct{}

func (loggingPolicy) OnSendFailure(email, code string, err error) error {
	util.Warn("OTP email not sent, code logged for development",
		zap.String("email", email),
		zap.String("code", code),
		zap.Error(err))
	return nil
}

// PolicyForEnvironment returns strict delivery in production and the
// logging fallback everywhere else.
func PolicyForEnvironment(environment string) DispatchPolicy {
	if environment == "production" {
		return strictPolicy{}
	}
	return loggingPolicy{}
}

// SMTPDispatcher sends verification mail through the configured SMTP relay
type SMTPDispatcher struct {
	dialer *gomail.Dialer
	sender string
	policy DispatchPolicy
}

func NewSMTPDispatcher(cfg *config.Config, policy DispatchPolicy) *SMTPDispatcher {
	smtpConfig := cfg.SMTP

	dialer := gomail.NewDialer(smtpConfig.Host, smtpConfig.Port,
		smtpConfig.Username, smtpConfig.Password)

	util.Info("SMTP dispatcher initialized",
		zap.String("host", smtpConfig.Host),
		zap.Int("port", smtpConfig.Port),
		zap.String("sender", smtpConfig.Sender))

	return &SMTPDispatcher{
		dialer: dialer,
		sender: smtpConfig.Sender,
		policy: policy,
	}
}

// SendOTP delivers the code. DialAndSend has no context support, so the
// send runs in a goroutine and the context can abandon the wait.
func (d *SMTPDispatcher) SendOTP(ctx context.Context, email, code string, expiresAt time.Time) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", d.sender)
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", "Your Trendz verification code")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your verification code is %s.\n\nIt expires at %s. If you did not request this code, ignore this email.\n",
		code, expiresAt.UTC().Format(time.RFC1123)))

	done := make(chan error, 1)
	go func() {
		done <- d.dialer.DialAndSend(msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return d.policy.OnSendFailure(email, code, err)
	}

	util.Debug("OTP email sent", zap.String("email", email))
	return nil
}
