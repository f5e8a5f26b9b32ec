package main

import (
	"net/http/httptest"
	"testing"
)

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatal("expected nil checker without origins")
	}
	if originChecker([]string{"https://a.ga", "*"}) != nil {
		t.Fatal("expected nil checker for wildcard")
	}

	check := originChecker([]string{"https://allowork.ga"})
	cases := map[string]bool{
		"":                     true,
		"https://allowork.ga":  true,
		"HTTPS://ALLOWORK.GA":  true,
		"https://evil.example": false,
	}
	for origin, want := range cases {
		r := httptest.NewRequest("GET", "/api/v1/conversations/c1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := check(r); got != want {
			t.Fatalf("origin %q: got %v want %v", origin, got, want)
		}
	}
}
