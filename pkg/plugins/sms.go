package plugins

import (
	"context"
	"errors"
	"fmt"

	"github.com/harunnryd/aide/pkg/errorsx"
	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	// To is the owner's number. The tool never texts anyone else.
	To string `mapstructure:"to"`
}

func (c SMSConfig) Enabled() bool {
	return c.AccountSID != "" || c.AuthToken != ""
}

func (c SMSConfig) Validate() error {
	if c.AccountSID == "" || c.AuthToken == "" || c.From == "" || c.To == "" {
		return errorsx.Wrap(errors.New("sms requires account_sid, auth_token, from and to"), errorsx.ReasonConfigMissing)
	}
	return nil
}

type messageCreator func(params *api.CreateMessageParams) (*api.ApiV2010Message, error)

// SMS sends short notes to the owner through Twilio.
type SMS struct {
	cfg    SMSConfig
	create messageCreator
}

func NewSMS(cfg SMSConfig) (*SMS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMS{cfg: cfg, create: client.Api.CreateMessage}, nil
}

func (*SMS) Name() string { return "sms" }

func (p *SMS) Tools() []Tool {
	return []Tool{{
		Tool: llmTool("send_sms", "Send a short text message to the owner's phone.", []string{"body"}, map[string]any{
			"body": map[string]any{"type": "string"},
		}),
		Handler: p.send,
	}}
}

func (p *SMS) send(ctx context.Context, args map[string]any) (string, error) {
	body, err := requiredString(args, "body")
	if err != nil {
		return "", err
	}
	if r := []rune(body); len(r) > 1600 {
		body = string(r[:1600])
	}
	params := &api.CreateMessageParams{}
	params.SetTo(p.cfg.To)
	params.SetFrom(p.cfg.From)
	params.SetBody(body)
	msg, err := p.create(params)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	if msg == nil || msg.Sid == nil {
		return "", errors.New("send sms: missing message sid")
	}
	return "Message sent.", nil
}
