package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioGateway sends notifications as WhatsApp (or SMS) messages to the
// phone number on the user's profile.
type TwilioGateway struct {
	api  messageAPI
	from string
}

func NewTwilioGateway(accountSID, authToken, from string) (*TwilioGateway, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("twilio account sid, auth token and from are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioGateway{api: client.Api, from: from}, nil
}

func (g *TwilioGateway) Name() string { return "twilio" }

func (g *TwilioGateway) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.Phone) == "" {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(g.from)
	params.SetTo(g.address(msg.Phone))
	params.SetBody(formatBody(msg))

	if _, err := g.api.CreateMessage(params); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// address mirrors the channel prefix of the sender, so a "whatsapp:" sender
// messages the recipient on WhatsApp.
func (g *TwilioGateway) address(phone string) string {
	phone = strings.TrimSpace(phone)
	if strings.HasPrefix(g.from, "whatsapp:") && !strings.HasPrefix(phone, "whatsapp:") {
		return "whatsapp:" + phone
	}
	return phone
}

func formatBody(msg Message) string {
	if msg.Title == "" {
		return msg.Content
	}
	return "*" + msg.Title + "*\n\n" + msg.Content
}
