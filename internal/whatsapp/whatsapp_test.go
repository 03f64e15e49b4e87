package whatsapp

import (
	"context"
	"testing"
)

func TestOptionsApply(t *testing.T) {
	var cfg Opts
	for _, opt := range []Option{
		WithDBDSN("/tmp/wa.db"),
		WithQRCodeOutput("/tmp/qr.txt"),
		WithNumericCode(),
	} {
		opt(&cfg)
	}
	if cfg.DBDSN != "/tmp/wa.db" || cfg.QRPath != "/tmp/qr.txt" || !cfg.NumericCode {
		t.Errorf("options not applied: %+v", cfg)
	}
}

func TestMockClientRecordsSends(t *testing.T) {
	var sender Sender = NewMockClient()
	mock := sender.(*MockClient)
	ctx := context.Background()

	if err := sender.SendMessage(ctx, "5511999990000", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := sender.SendAudio(ctx, "5511999990000", []byte("OGG"), VoiceNoteMimeType); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	if len(mock.SentMessages) != 1 || mock.SentMessages[0].Body != "hello" {
		t.Errorf("text send not recorded: %+v", mock.SentMessages)
	}
	if len(mock.SentAudio) != 1 || mock.SentAudio[0].Mimetype != VoiceNoteMimeType || mock.SentAudio[0].Size != 3 {
		t.Errorf("audio send not recorded: %+v", mock.SentAudio)
	}
}
