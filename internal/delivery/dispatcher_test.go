package delivery

import (
	"context"
	"errors"
	"testing"
)

func TestValidateDestination(t *testing.T) {
	cases := []struct {
		destination string
		channel     Channel
		wantErr     bool
	}{
		{"+260971234567", ChannelSMS, false},
		{"+260971234567", ChannelWhatsApp, false},
		{"+14155552671", ChannelSMS, false},
		{"260971234567", ChannelSMS, true},  // missing +
		{"+0971234567", ChannelSMS, true},   // leading zero
		{"+26097", ChannelSMS, true},        // too short
		{"+2609712345678901", ChannelSMS, true}, // too long
		{"not-a-number", ChannelSMS, true},
		{"+260971234567", Channel("EMAIL"), true},
	}
	for _, tc := range cases {
		err := ValidateDestination(tc.destination, tc.channel)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateDestination(%q, %s) err = %v, wantErr %v", tc.destination, tc.channel, err, tc.wantErr)
		}
	}
}

func TestSendError_Classification(t *testing.T) {
	base := errors.New("boom")
	if !IsTransient(Transient(base)) {
		t.Error("Transient error not reported as transient")
	}
	if IsTransient(Permanent(base)) {
		t.Error("Permanent error reported as transient")
	}
	if IsTransient(base) {
		t.Error("bare error reported as transient")
	}
	if !errors.Is(Transient(base), base) {
		t.Error("SendError should unwrap to its cause")
	}
}

type fakeDispatcher struct {
	id  string
	err error
	got string
}

func (f *fakeDispatcher) Send(_ context.Context, destination string, _ Channel, _ string) (string, error) {
	f.got = destination
	return f.id, f.err
}

func TestRouter_Send(t *testing.T) {
	sms := &fakeDispatcher{id: "sms-1"}
	wa := &fakeDispatcher{id: "wa-1"}
	r := &Router{SMS: sms, WhatsApp: wa}

	id, err := r.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err != nil || id != "sms-1" {
		t.Fatalf("SMS send = (%q, %v), want (sms-1, nil)", id, err)
	}
	id, err = r.Send(context.Background(), "+260971234567", ChannelWhatsApp, "123456")
	if err != nil || id != "wa-1" {
		t.Fatalf("WhatsApp send = (%q, %v), want (wa-1, nil)", id, err)
	}
}

func TestRouter_UnconfiguredChannel(t *testing.T) {
	r := &Router{SMS: &fakeDispatcher{}}
	_, err := r.Send(context.Background(), "+260971234567", ChannelWhatsApp, "123456")
	if err == nil {
		t.Fatal("expected error for unconfigured channel")
	}
	if !errors.Is(err, ErrUnsupportedChannel) {
		t.Errorf("error = %v, want ErrUnsupportedChannel", err)
	}
	if IsTransient(err) {
		t.Error("unconfigured channel should be a permanent failure")
	}
}
