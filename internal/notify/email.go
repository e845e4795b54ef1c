package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/ticketops/sla-engine/internal/config"
	"github.com/ticketops/sla-engine/internal/domain"
)

// EmailChannel delivers notifications through an SMTP relay. Email has no
// delivery-confirmation path, so a successful handoff stays at sent.
type EmailChannel struct {
	cfg config.EmailConfig
}

// NewEmailChannel creates the channel.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

// Kind identifies the channel.
func (c *EmailChannel) Kind() domain.NotificationChannel {
	return domain.ChannelEmail
}

// Deliver hands the message to the SMTP relay. The dial honors ctx; the
// SMTP conversation itself is bounded by the connection deadline.
func (c *EmailChannel) Deliver(ctx context.Context, d Delivery) (Outcome, error) {
	if c.cfg.Host == "" {
		return Outcome{}, fmt.Errorf("smtp relay not configured")
	}
	addr := net.JoinHostPort(c.cfg.Host, c.cfg.Port)

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Outcome{}, fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.Host)
	if err != nil {
		conn.Close()
		return Outcome{}, fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if c.cfg.Username != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Host)
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return Outcome{}, fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(c.cfg.From); err != nil {
		return Outcome{}, fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(d.Recipient); err != nil {
		return Outcome{}, fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return Outcome{}, fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(c.buildMessage(d))); err != nil {
		writer.Close()
		return Outcome{}, fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Outcome{}, fmt.Errorf("smtp close: %w", err)
	}

	_ = client.Quit()
	return Outcome{Confirmed: false}, nil
}

func (c *EmailChannel) buildMessage(d Delivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", d.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", strings.ReplaceAll(d.Subject, "\n", " "))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(d.Body)
	b.WriteString("\r\n")
	return b.String()
}
