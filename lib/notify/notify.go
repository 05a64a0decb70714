// Package notify sends operator emails when a pipeline run fails.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"gktracker/lib/configutil"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gktracker/lib/notify")

type EmailConfig struct {
	Server   string   `json:"server" env:"SMTP_SERVER"`
	Port     int      `json:"port" env:"SMTP_PORT"`
	Address  string   `json:"address" env:"SMTP_ADDRESS"`
	Password string   `json:"password" env:"SMTP_PASSWORD"`
	To       []string `json:"to" env:"NOTIFY_TO"`
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

func (c EmailConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Port <= 0 {
		return configutil.Invalid("smtp port must be positive, got %d", c.Port)
	}
	if c.Address == "" {
		return configutil.Invalid("smtp sender address is required")
	}
	return nil
}

// Failure describes a failed pipeline run.
type Failure struct {
	RunId string
	Stage string
	Err   error
}

func (f Failure) subject() string {
	return fmt.Sprintf("[gktracker] run %s failed at %s", f.RunId, f.Stage)
}

func (f Failure) body() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline run %s failed.\n\n", f.RunId)
	fmt.Fprintf(&sb, "Stage: %s\n", f.Stage)
	fmt.Fprintf(&sb, "Error: %v\n", f.Err)
	return sb.String()
}

type Notifier struct {
	config EmailConfig
}

func NewNotifier(config EmailConfig) Notifier {
	return Notifier{config: config}
}

// NotifyFailure mails the failure to every configured recipient, it is a
// no-op when email is not configured.
func (n Notifier) NotifyFailure(ctx context.Context, failure Failure) error {
	if !n.config.Enabled() {
		return nil
	}

	_, span := tracer.Start(ctx, "notify:NotifyFailure")
	defer span.End()

	msg := email.NewEmail()
	msg.From = n.config.Address
	msg.To = n.config.To
	msg.Subject = failure.subject()
	msg.Text = []byte(failure.body())

	var auth smtp.Auth
	if n.config.Password != "" {
		auth = smtp.PlainAuth("", n.config.Address, n.config.Password, n.config.Server)
	}
	err := msg.Send(fmt.Sprintf("%s:%d", n.config.Server, n.config.Port), auth)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send failure email: %w", err)
	}
	return nil
}
