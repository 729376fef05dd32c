package authn

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewSessionManager_RejectsShortSecret(t *testing.T) {
	if _, err := NewSessionManager("too-short", time.Hour); err == nil {
		t.Error("expected an error for a secret under 32 bytes")
	}
}

func TestSessionManager_IssueAndVerify_RoundTrip(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	want := Identity{UserID: uuid.New(), TeamID: uuid.New(), Role: "member", IsAdmin: true}
	token, err := sm.Issue(want)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := sm.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.UserID != want.UserID || got.TeamID != want.TeamID || got.Role != want.Role || got.IsAdmin != want.IsAdmin {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
	if got.Method != MethodSession {
		t.Errorf("Method = %v, want %v", got.Method, MethodSession)
	}
}

func TestSessionManager_Verify_RejectsTamperedToken(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := sm.Issue(Identity{UserID: uuid.New()})
	if err != nil {
		t.Fatal(err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := sm.Verify(tampered); err == nil {
		t.Error("expected Verify() to reject a tampered token")
	}
}

func TestSessionManager_Verify_RejectsExpiredToken(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), -time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := sm.Issue(Identity{UserID: uuid.New()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm.Verify(token); err == nil {
		t.Error("expected Verify() to reject an already-expired token")
	}
}

func TestSessionManager_Verify_RejectsWrongSigningSecret(t *testing.T) {
	sm1, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	sm2, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := sm1.Issue(Identity{UserID: uuid.New()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sm2.Verify(token); err == nil {
		t.Error("expected Verify() to reject a token signed with a different secret")
	}
}

func TestSessionManager_SetCookie_ClearCookie(t *testing.T) {
	sm, err := NewSessionManager(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	sm.SetCookie(rec, "token-value")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "token-value" || !cookies[0].HttpOnly {
		t.Fatalf("SetCookie() produced unexpected cookie: %+v", cookies)
	}

	rec2 := httptest.NewRecorder()
	sm.ClearCookie(rec2)
	cleared := rec2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("ClearCookie() should set a negative MaxAge, got %+v", cleared)
	}
}
