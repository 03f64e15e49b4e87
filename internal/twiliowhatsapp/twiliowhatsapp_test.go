package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/3ndigital/professor/internal/models"
	twilioclient "github.com/twilio/twilio-go/client"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Fatal("expected error without from number")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromWhats("whatsapp:+15550001111")); err != nil {
		t.Fatalf("expected client with full options, got %v", err)
	}
}

func TestClassifySendErrorPermission(t *testing.T) {
	c := &Client{fromWhats: "whatsapp:+15550001111"}

	for _, code := range []int{21608, 21610, 63003} {
		err := c.classifySendError(&twilioclient.TwilioRestError{Code: code, Message: "blocked"}, "+5511999990000")
		if !errors.Is(err, models.ErrRecipientNotPermitted) {
			t.Errorf("code %d should map to ErrRecipientNotPermitted, got %v", code, err)
		}
	}

	err := c.classifySendError(&twilioclient.TwilioRestError{Code: 20003, Message: "auth"}, "+5511999990000")
	if errors.Is(err, models.ErrRecipientNotPermitted) {
		t.Error("unrelated Twilio code should not map to permission error")
	}

	err = c.classifySendError(errors.New("connection refused"), "+5511999990000")
	if errors.Is(err, models.ErrRecipientNotPermitted) {
		t.Error("non-Twilio error should not map to permission error")
	}
}

func TestMockClientRecordsSends(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	if err := m.SendMessage(ctx, "+5511999990000", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := m.SendAudio(ctx, "+5511999990000", "https://example.test/audio/a.mp3"); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	if len(m.SentMessages) != 1 || m.SentMessages[0].Body != "hello" {
		t.Errorf("unexpected recorded messages: %+v", m.SentMessages)
	}
	if len(m.SentAudio) != 1 || m.SentAudio[0].MediaURL != "https://example.test/audio/a.mp3" {
		t.Errorf("unexpected recorded audio: %+v", m.SentAudio)
	}

	m.Err = errors.New("down")
	if err := m.SendMessage(ctx, "+55", "x"); err == nil {
		t.Error("expected configured error to propagate")
	}
}
