package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"066 99 88 77":     "+241066998877",
		"+241 66 99 88 77": "+24166998877",
		"00241-66998877":   "+24166998877",
		"24166998877":      "+24166998877",
		"":                 "",
	}
	for in, want := range cases {
		if got := NormalizeNumber(in); got != want {
			t.Fatalf("NormalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWebhookSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL, "tok")
	if err := s.Send(context.Background(), "066 99 88 77", "Bonjour"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got["to"] != "+241066998877" || got["body"] != "Bonjour" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestWebhookSenderErrors(t *testing.T) {
	if err := NewWebhookSender("", "").Send(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error without url")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewWebhookSender(srv.URL, "").Send(context.Background(), "1", "x"); err == nil {
		t.Fatal("expected error on 502")
	}
}
