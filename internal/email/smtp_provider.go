package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	"crm_backend/internal/logger"
	"crm_backend/internal/utils"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("email provider is not configured")

// SMTPProvider реализует Provider поверх gomail
type SMTPProvider struct {
	config   *SMTPConfig
	renderer TemplateRenderer
	dialer   *gomail.Dialer
	send     func(m *gomail.Message) error
}

// NewSMTPProvider создает новый SMTP провайдер. Без хоста провайдер выключен.
func NewSMTPProvider(config *SMTPConfig, renderer TemplateRenderer) *SMTPProvider {
	p := &SMTPProvider{
		config:   config,
		renderer: renderer,
	}
	if config.Host == "" {
		return p
	}

	p.dialer = gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	if config.UseTLS {
		p.dialer.TLSConfig = &tls.Config{ServerName: config.Host}
	}
	p.send = func(m *gomail.Message) error { return p.dialer.DialAndSend(m) }
	return p
}

func (p *SMTPProvider) Enabled() bool {
	return p.send != nil
}

// Send отправляет email сообщение
func (p *SMTPProvider) Send(ctx context.Context, email *Email) Result {
	if !p.Enabled() {
		return failed(ErrNotConfigured)
	}
	if len(email.To) == 0 {
		return failed(errors.New("no recipients specified"))
	}

	msg := p.buildMessage(email)

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	err := utils.Retry(ctx, p.config.MaxRetries, func() error {
		return p.sendWithin(ctx, msg)
	})
	logger.ProviderLog("smtp", "send", time.Since(start), err)
	if err != nil {
		return failed(err)
	}
	return Result{Success: true}
}

// sendWithin не ждет дольше ctx. DialAndSend контекст не принимает, поэтому
// зависшая SMTP-сессия дорабатывает в фоне до сетевого таймаута gomail.
func (p *SMTPProvider) sendWithin(ctx context.Context, m *gomail.Message) error {
	done := make(chan error, 1)
	go func() { done <- p.send(m) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return utils.Permanent(ctx.Err())
	}
}

// SendTemplate отправляет email используя шаблон
func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, subject string, templateName string, data TemplateData) Result {
	if !p.Enabled() {
		return failed(ErrNotConfigured)
	}
	if p.renderer == nil {
		return failed(errors.New("template renderer is not configured"))
	}

	if data == nil {
		data = TemplateData{}
	}
	if _, ok := data["Subject"]; !ok {
		data["Subject"] = subject
	}

	htmlBody, err := p.renderer.Render(templateName, data)
	if err != nil {
		return failed(fmt.Errorf("failed to render template: %w", err))
	}

	return p.Send(ctx, &Email{To: to, Subject: subject, HTMLBody: htmlBody})
}

// buildMessage строит gomail сообщение из структуры Email
func (p *SMTPProvider) buildMessage(email *Email) *gomail.Message {
	m := gomail.NewMessage()
	if p.config.FromName != "" {
		m.SetAddressHeader("From", p.config.FromEmail, p.config.FromName)
	} else {
		m.SetHeader("From", p.config.FromEmail)
	}
	m.SetHeader("To", email.To...)
	if len(email.Cc) > 0 {
		m.SetHeader("Cc", email.Cc...)
	}
	if len(email.Bcc) > 0 {
		m.SetHeader("Bcc", email.Bcc...)
	}
	if email.ReplyTo != "" {
		m.SetHeader("Reply-To", email.ReplyTo)
	}
	m.SetHeader("Subject", email.Subject)

	switch {
	case email.HTMLBody != "" && email.Body != "":
		m.SetBody("text/plain", email.Body)
		m.AddAlternative("text/html", email.HTMLBody)
	case email.HTMLBody != "":
		m.SetBody("text/html", email.HTMLBody)
	default:
		m.SetBody("text/plain", email.Body)
	}

	for _, a := range email.Attachments {
		content := a.Content
		m.Attach(a.Name,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := io.Copy(w, bytes.NewReader(content))
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}
	return m
}
