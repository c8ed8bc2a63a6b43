package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "", 0)
	if client.APIKey != "api-key" {
		t.Errorf("APIKey = %q, want %q", client.APIKey, "api-key")
	}
	if client.BaseURL != "https://www.smslocal.com/dev/bulkV2" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil {
		t.Fatal("HTTPClient should be set")
	}
	if client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient.Timeout = %v, want %v", client.HTTPClient.Timeout, defaultTimeout)
	}
}

func TestSMSLocal_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q, want test-api-key", r.Header.Get("Authorization"))
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["route"] != "otp" {
			t.Errorf("route = %v, want otp", body["route"])
		}
		if body["numbers"] != "+260971234567" {
			t.Errorf("numbers = %v, want +260971234567", body["numbers"])
		}
		if body["variables"] != "123456" {
			t.Errorf("variables = %v, want 123456", body["variables"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"success","request_id":"req-42"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "", 0)
	id, err := client.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "req-42" {
		t.Errorf("delivery id = %q, want req-42", id)
	}
}

func TestSMSLocal_Send_MissingAPIKey(t *testing.T) {
	client := NewSMSLocalClient("", "", "", 0)
	_, err := client.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if IsTransient(err) {
		t.Error("missing API key should be permanent")
	}
}

func TestSMSLocal_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSMSLocalClient("api-key", server.URL, "", 0)
	client.HTTPClient = &http.Client{Timeout: 1 * time.Millisecond}

	_, err := client.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err == nil {
		t.Fatal("expected error for timeout")
	}
	if !IsTransient(err) {
		t.Error("timeout should be transient")
	}
}

func TestSMSLocal_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"server error"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("api-key", server.URL, "", 0)
	_, err := client.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err == nil {
		t.Fatal("expected error for 500 status")
	}
	if !IsTransient(err) {
		t.Error("500 should be transient")
	}
	if !strings.Contains(err.Error(), "status=500") {
		t.Errorf("error = %q, want to contain 'status=500'", err.Error())
	}
}

func TestSMSLocal_Send_ClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("api-key", server.URL, "", 0)
	_, err := client.Send(context.Background(), "+260971234567", ChannelSMS, "123456")
	if err == nil {
		t.Fatal("expected error for 400 status")
	}
	if IsTransient(err) {
		t.Error("400 should be permanent")
	}
}

func TestWhatsApp_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["to"] != "260971234567" {
			t.Errorf("to = %v, want bare digits", body["to"])
		}
		if body["messaging_product"] != "whatsapp" {
			t.Errorf("messaging_product = %v, want whatsapp", body["messaging_product"])
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer server.Close()

	client := NewWhatsAppClient("tok", server.URL, 0)
	id, err := client.Send(context.Background(), "+260971234567", ChannelWhatsApp, "123456")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.1" {
		t.Errorf("delivery id = %q, want wamid.1", id)
	}
}

func TestWhatsApp_Send_Unconfigured(t *testing.T) {
	client := NewWhatsAppClient("", "", 0)
	_, err := client.Send(context.Background(), "+260971234567", ChannelWhatsApp, "123456")
	if err == nil {
		t.Fatal("expected error for unconfigured client")
	}
	if IsTransient(err) {
		t.Error("unconfigured client should be permanent")
	}
}
