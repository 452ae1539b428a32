// Package callcontrol drives the telephony provider's REST API for
// actions that happen outside the media stream: transferring a live
// call to the dispatcher, hanging up, and sending confirmation texts.
package callcontrol

import (
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioopenapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Controller is what the session layer needs from telephony control.
type Controller interface {
	// Transfer redirects the live call to the dispatcher line. The
	// media stream drops as a side effect of the redirect.
	Transfer(callSID string) error

	// Hangup completes the call.
	Hangup(callSID string) error

	// SendSMS sends a confirmation text to the caller.
	SendSMS(to, body string) error
}

// restAPI is the slice of the Twilio v2010 API the controller uses.
type restAPI interface {
	UpdateCall(sid string, params *twilioopenapi.UpdateCallParams) (*twilioopenapi.ApiV2010Call, error)
	CreateMessage(params *twilioopenapi.CreateMessageParams) (*twilioopenapi.ApiV2010Message, error)
}

// Twilio is the production Controller.
type Twilio struct {
	api            restAPI
	transferNumber string
	smsFrom        string
	logger         *slog.Logger
}

// NewTwilio builds a Controller backed by the Twilio REST API.
func NewTwilio(accountSID, authToken, transferNumber, smsFrom string, logger *slog.Logger) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewTwilioWithAPI(client.Api, transferNumber, smsFrom, logger)
}

// NewTwilioWithAPI is NewTwilio with an injected API surface.
func NewTwilioWithAPI(api restAPI, transferNumber, smsFrom string, logger *slog.Logger) *Twilio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Twilio{
		api:            api,
		transferNumber: transferNumber,
		smsFrom:        smsFrom,
		logger:         logger,
	}
}

func (t *Twilio) Transfer(callSID string) error {
	twiml := fmt.Sprintf("<Response><Dial>%s</Dial></Response>", t.transferNumber)
	params := &twilioopenapi.UpdateCallParams{}
	params.SetTwiml(twiml)
	if _, err := t.api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("transfer call %s: %w", callSID, err)
	}
	t.logger.Info("call transferred", "callSid", callSID, "to", t.transferNumber)
	return nil
}

func (t *Twilio) Hangup(callSID string) error {
	params := &twilioopenapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := t.api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("hang up call %s: %w", callSID, err)
	}
	t.logger.Info("call completed", "callSid", callSID)
	return nil
}

func (t *Twilio) SendSMS(to, body string) error {
	if t.smsFrom == "" {
		return fmt.Errorf("sms sender number not configured")
	}
	params := &twilioopenapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.smsFrom)
	params.SetBody(body)
	if _, err := t.api.CreateMessage(params); err != nil {
		return fmt.Errorf("send sms to %s: %w", to, err)
	}
	t.logger.Info("confirmation sms sent", "to", to)
	return nil
}

// Noop logs call-control actions without performing them. Used when no
// telephony credentials are configured, e.g. local development against
// a stream replayer.
type Noop struct {
	logger *slog.Logger
}

func NewNoop(logger *slog.Logger) *Noop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Noop{logger: logger}
}

func (n *Noop) Transfer(callSID string) error {
	n.logger.Info("call control disabled, skipping transfer", "callSid", callSID)
	return nil
}

func (n *Noop) Hangup(callSID string) error {
	n.logger.Info("call control disabled, skipping hangup", "callSid", callSID)
	return nil
}

func (n *Noop) SendSMS(to, _ string) error {
	n.logger.Info("call control disabled, skipping sms", "to", to)
	return nil
}
