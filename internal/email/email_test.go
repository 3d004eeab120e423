package email

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func newTestProvider(t *testing.T, send func(m *gomail.Message) error) *SMTPProvider {
	t.Helper()
	tm, err := NewDefaultTemplateManager("")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host = "smtp.test"
	cfg.FromEmail = "noreply@crm.test"
	cfg.Timeout = time.Second
	cfg.MaxRetries = 1

	p := NewSMTPProvider(cfg, tm)
	p.send = send
	return p
}

func TestSMTPProvider_DisabledWithoutHost(t *testing.T) {
	p := NewSMTPProvider(DefaultConfig(), NewTemplateManager())
	assert.False(t, p.Enabled())

	res := p.Send(context.Background(), &Email{To: []string{"a@b.c"}, Subject: "x", Body: "y"})
	assert.False(t, res.Success)
	assert.Equal(t, ErrNotConfigured.Error(), res.Error)
}

func TestSMTPProvider_SendTemplate(t *testing.T) {
	var sent *gomail.Message
	p := newTestProvider(t, func(m *gomail.Message) error {
		sent = m
		return nil
	})

	mailer := NewMailer(p, "https://app.test", "Acme CRM", 30)
	res := mailer.SendTrialWarning(context.Background(), "jane@acme.test", "Jane", 1)

	require.True(t, res.Success)
	require.NotNil(t, sent)
	assert.Equal(t, []string{"jane@acme.test"}, sent.GetHeader("To"))
	assert.Equal(t, []string{"Last chance! Your trial expires tomorrow"}, sent.GetHeader("Subject"))
}

func TestSMTPProvider_FailureIsReportedNotPanicked(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(m *gomail.Message) error {
		calls++
		return errors.New("connection refused")
	})

	res := p.Send(context.Background(), &Email{To: []string{"a@b.c"}, Subject: "s", Body: "b"})
	assert.False(t, res.Success)
	assert.Equal(t, "connection refused", res.Error)
	assert.Equal(t, 2, calls)
}

func TestSMTPProvider_RealDialerIsWired(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "smtp.test"
	p := NewSMTPProvider(cfg, NewTemplateManager())

	assert.True(t, p.Enabled())
	require.NotNil(t, p.dialer)
	assert.Equal(t, "smtp.test", p.dialer.Host)
	assert.Equal(t, 587, p.dialer.Port)
}

func TestSMTPProvider_HungServerRespectsTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var calls int32
	p := newTestProvider(t, func(m *gomail.Message) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	})
	p.config.Timeout = 50 * time.Millisecond

	start := time.Now()
	res := p.Send(context.Background(), &Email{To: []string{"a@b.c"}, Subject: "s", Body: "b"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "deadline exceeded")
	assert.Less(t, time.Since(start), time.Second)
	// после дедлайна повторов нет
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTemplates_TrialWarningWording(t *testing.T) {
	tm, err := NewDefaultTemplateManager("")
	require.NoError(t, err)

	html, err := tm.Render(TemplateTrialWarning, TemplateData{
		"UserName": "Bob", "DaysRemaining": 7, "ActionURL": "/upgrade", "CompanyName": "Acme", "Subject": "s",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Your trial expires in 7 days")
	assert.NotContains(t, html, "tomorrow")
}
