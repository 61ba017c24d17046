package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	// TagOTP tags verification code emails.
	TagOTP = "otp"
	// TagPasswordReset tags password reset emails.
	TagPasswordReset = "password-reset"
)

// MailerConfig controls the rendered content.
type MailerConfig struct {
	AppName  string
	OTPTTL   time.Duration
	ResetTTL time.Duration
}

// Mailer renders code emails and sends them through a Sender.
type Mailer struct {
	sender Sender
	tmpl   *template.Template
	cfg    MailerConfig
}

type codeView struct {
	AppName   string
	Code      string
	ExpiresIn string
}

// NewMailer parses the embedded templates. An empty AppName defaults to
// "authcore".
func NewMailer(sender Sender, cfg MailerConfig) (*Mailer, error) {
	if sender == nil {
		return nil, fmt.Errorf("%w: sender is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		cfg.AppName = "authcore"
	}
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	return &Mailer{sender: sender, tmpl: tmpl, cfg: cfg}, nil
}

// SendOTPEmail implements authcore.Notifier.
func (m *Mailer) SendOTPEmail(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "otp.html", TagOTP, "Verify your "+m.cfg.AppName+" account", code, m.cfg.OTPTTL)
}

// SendPasswordResetEmail implements authcore.Notifier.
func (m *Mailer) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "reset.html", TagPasswordReset, "Reset your "+m.cfg.AppName+" password", code, m.cfg.ResetTTL)
}

func (m *Mailer) send(ctx context.Context, to, name, tag, subject, code string, ttl time.Duration) error {
	var body bytes.Buffer
	view := codeView{AppName: m.cfg.AppName, Code: code, ExpiresIn: humanDuration(ttl)}
	if err := m.tmpl.ExecuteTemplate(&body, name, view); err != nil {
		return errors.Join(ErrSendFailed, err)
	}

	msg := Message{To: to, Subject: subject, HTMLBody: body.String(), Tag: tag}
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrSendFailed) {
			return err
		}
		return errors.Join(ErrSendFailed, err)
	}
	return nil
}

// humanDuration renders whole minutes or hours; zero reads as "a few
// minutes".
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a few minutes"
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
