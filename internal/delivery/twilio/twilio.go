// Package twilio is the Twilio-backed channel adapter for WhatsApp/SMS
// delivery. The engine's retry policy lives outside; this driver only maps
// Twilio outcomes onto the delivery error classes.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/luis-kovi/WhatsKovi-sub003/internal/delivery"
	"github.com/luis-kovi/WhatsKovi-sub003/internal/domain"
)

type Deliverer struct {
	client *twilio.RestClient
	from   string
}

// New builds the driver. from is the sending number in E.164 form; WhatsApp
// prefixing is applied per destination.
func New(accountSID, authToken, from string) *Deliverer {
	return &Deliverer{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
	}
}

// Deliver sends one message. The ticket reference carries the contact's
// E.164 destination, as populated by the helpdesk layer for channel
// adapters. Private notes never leave the helpdesk and are rejected as a
// precondition failure.
func (d *Deliverer) Deliver(_ context.Context, req delivery.Request) error {
	if req.IsPrivate || req.Type == domain.TypeNote {
		return delivery.Precondition(errors.New("internal-only message cannot be delivered externally"))
	}
	if !strings.HasPrefix(req.TicketID, "+") {
		return delivery.Precondition(fmt.Errorf("ticket %q carries no E.164 destination", req.TicketID))
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + req.TicketID)
	params.SetFrom("whatsapp:" + d.from)
	if req.Body != "" {
		params.SetBody(req.Body)
	}
	if req.MediaURL != nil && *req.MediaURL != "" {
		params.SetMediaUrl([]string{*req.MediaURL})
	}

	// The Twilio REST client manages its own transport deadlines and takes
	// no context.
	if _, err := d.client.Api.CreateMessage(params); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps Twilio errors onto the engine's taxonomy: 5xx and transport
// errors are transient, 4xx are not.
func classify(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) {
		if restErr.Status >= 500 {
			return delivery.Retryable(err)
		}
		return err
	}
	// No structured response: network-class failure.
	return delivery.Retryable(err)
}
