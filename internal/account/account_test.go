package account

import (
	"testing"
	"time"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	s := NewStore(nil, "test-secret")
	u := &User{Username: "alice"}

	tok, err := s.IssueToken(u, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	username, ok := s.parseSession(tok)
	if !ok {
		t.Fatal("valid token rejected")
	}
	if username != "alice" {
		t.Errorf("username = %q, want alice", username)
	}
}

func TestSessionTokenWrongSecret(t *testing.T) {
	issuer := NewStore(nil, "secret-a")
	verifier := NewStore(nil, "secret-b")

	tok, err := issuer.IssueToken(&User{Username: "alice"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := verifier.parseSession(tok); ok {
		t.Error("token signed with a different secret accepted")
	}
}

func TestSessionTokenExpired(t *testing.T) {
	s := NewStore(nil, "test-secret")

	tok, err := s.IssueToken(&User{Username: "alice"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.parseSession(tok); ok {
		t.Error("expired token accepted")
	}
}

func TestParseSessionGarbage(t *testing.T) {
	s := NewStore(nil, "test-secret")

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, ok := s.parseSession(tok); ok {
			t.Errorf("garbage token %q accepted", tok)
		}
	}
}
