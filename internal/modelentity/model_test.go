package modelentity

import "testing"

func TestValidName(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"abc", true},
		{"a", true},
		{"a-b_c9", true},
		{"model-42", true},
		{"", false},
		{"-abc", false},
		{"Abc", false},
		{"abc def", false},
		{"abc.def", false},
		{"9abc", true},
	}
	for _, c := range cases {
		if got := ValidName(c.name); got != c.want {
			t.Errorf("ValidName(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestValidName_RejectsOverlong(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if ValidName(string(long)) {
		t.Error("expected a 64-character name to be rejected")
	}

	max := make([]byte, 63)
	for i := range max {
		max[i] = 'a'
	}
	if !ValidName(string(max)) {
		t.Error("expected a 63-character name to be accepted")
	}
}

func TestModel_Identity(t *testing.T) {
	m := Model{OwnerUsername: "alice", ModelName: "fraud-detector"}
	if got, want := m.Identity(), "alice/fraud-detector"; got != want {
		t.Errorf("Identity() = %q, want %q", got, want)
	}
}
