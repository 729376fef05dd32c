package authn

import "testing"

func TestHashPassword_CheckPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("expected CheckPassword to accept the correct plaintext")
	}
}

func TestCheckPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("expected CheckPassword to reject an incorrect plaintext")
	}
}

func TestHashPassword_ProducesDistinctHashesForSamePassword(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("expected bcrypt to salt each hash distinctly")
	}
}
