// Package sms отправляет SMS через Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm_backend/internal/config"
	"crm_backend/internal/logger"
	"crm_backend/internal/utils"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrNotConfigured = errors.New("sms provider is not configured")

// Result - итог отправки SMS
type Result struct {
	Success bool   `json:"success"`
	SID     string `json:"sid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sender - отправка SMS
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, to, body string) Result
}

// messageCreator - часть Twilio API, которая нам нужна
type messageCreator func(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)

type TwilioSender struct {
	from       string
	create     messageCreator
	timeout    time.Duration
	maxRetries int
}

// NewTwilioSender - без SID, токена или номера отправителя провайдер выключен
func NewTwilioSender(cfg *config.Config) *TwilioSender {
	s := &TwilioSender{
		from:       cfg.SMS.PhoneNumber,
		timeout:    cfg.Providers.Timeout,
		maxRetries: cfg.Providers.MaxRetries,
	}
	if cfg.SMS.AccountSID == "" || cfg.SMS.AuthToken == "" || cfg.SMS.PhoneNumber == "" {
		logger.Warn("Twilio credentials not fully configured, SMS is disabled")
		return s
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.SMS.AccountSID,
		Password: cfg.SMS.AuthToken,
	})
	s.create = client.Api.CreateMessage
	return s
}

func (s *TwilioSender) Enabled() bool {
	return s.create != nil
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) Result {
	if !s.Enabled() {
		logger.Debug("SMS disabled, message dropped", "to", to)
		return Result{Error: ErrNotConfigured.Error()}
	}

	to = NormalizeE164(to)
	if to == "" {
		return Result{Error: "empty phone number"}
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var sid string
	start := time.Now()
	err := utils.Retry(ctx, s.maxRetries, func() error {
		resp, err := s.create(params)
		if err != nil {
			return err
		}
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		return nil
	})
	logger.ProviderLog("twilio", "create_message", time.Since(start), err)
	if err != nil {
		return Result{Error: fmt.Sprintf("twilio: %v", err)}
	}
	return Result{Success: true, SID: sid}
}

// NormalizeE164 приводит номер к E.164. Номер без "+" считается американским.
func NormalizeE164(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	cleaned := strings.NewReplacer("-", "", "(", "", ")", "", " ", "").Replace(phone)
	return "+1" + cleaned
}
