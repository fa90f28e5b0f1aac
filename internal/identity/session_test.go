package identity

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSessionIssueAndVerify(t *testing.T) {
	iss := NewSessionIssuer([]byte("test-secret"), "https://api.octodevs.test", time.Hour)
	userID := uuid.New()

	tok, err := iss.Issue(userID, "octo@example.com", "octocat")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Email != "octo@example.com" || claims.Login != "octocat" {
		t.Errorf("claims = %+v", claims)
	}
	got, err := claims.UserUUID()
	if err != nil {
		t.Fatalf("UserUUID: %v", err)
	}
	if got != userID {
		t.Errorf("user id = %s, want %s", got, userID)
	}
}

func TestSessionVerifyRejectsWrongSecret(t *testing.T) {
	good := NewSessionIssuer([]byte("secret-a"), "https://api.octodevs.test", time.Hour)
	bad := NewSessionIssuer([]byte("secret-b"), "https://api.octodevs.test", time.Hour)

	tok, err := good.Issue(uuid.New(), "a@b.c", "x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := bad.Verify(tok); err == nil {
		t.Fatal("token signed with a different secret must not verify")
	}
}

func TestSessionVerifyRejectsWrongIssuer(t *testing.T) {
	a := NewSessionIssuer([]byte("secret"), "https://a.test", time.Hour)
	b := NewSessionIssuer([]byte("secret"), "https://b.test", time.Hour)

	tok, err := a.Issue(uuid.New(), "a@b.c", "x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Fatal("token with a mismatched issuer must not verify")
	}
}

func TestSessionVerifyRejectsExpired(t *testing.T) {
	iss := NewSessionIssuer([]byte("secret"), "https://api.octodevs.test", -time.Minute)
	tok, err := iss.Issue(uuid.New(), "a@b.c", "x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.Verify(tok); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestSessionVerifyRejectsStateToken(t *testing.T) {
	iss := NewSessionIssuer([]byte("secret"), "https://api.octodevs.test", time.Hour)
	state, err := iss.IssueOAuthState("/profiles")
	if err != nil {
		t.Fatalf("IssueOAuthState: %v", err)
	}
	_, err = iss.Verify(state)
	if err == nil {
		t.Fatal("oauth state token must not pass session verification")
	}
	if !strings.Contains(err.Error(), "not a session token") {
		t.Errorf("err = %v", err)
	}
}

func TestOAuthStateRoundTrip(t *testing.T) {
	iss := NewSessionIssuer([]byte("secret"), "https://api.octodevs.test", time.Hour)
	state, err := iss.IssueOAuthState("/dashboard")
	if err != nil {
		t.Fatalf("IssueOAuthState: %v", err)
	}
	redirect, err := iss.VerifyOAuthState(state)
	if err != nil {
		t.Fatalf("VerifyOAuthState: %v", err)
	}
	if redirect != "/dashboard" {
		t.Errorf("redirect = %q", redirect)
	}

	// A session token is not an acceptable state parameter.
	sess, err := iss.Issue(uuid.New(), "a@b.c", "x")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := iss.VerifyOAuthState(sess); err == nil {
		t.Fatal("session token must not pass state verification")
	}
}
