package syntheticdata

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCompleter struct {
	values map[string]string
	err    error
}

func (f *fakeCompleter) Complete(ctx context.Context, tag string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[tag], nil
}

func TestTemplate_Tags(t *testing.T) {
	tpl := Template("Please call {NAME} at {PHONE} regarding the {COMPANY} account, {NAME}.")
	tags := tpl.Tags()

	want := []string{"NAME", "PHONE", "COMPANY"}
	if len(tags) != len(want) {
		t.Fatalf("Tags() = %v, want %v", tags, want)
	}
	for i, w := range want {
		if tags[i] != w {
			t.Errorf("Tags()[%d] = %q, want %q", i, tags[i], w)
		}
	}
}

func TestTemplate_Fill_UsesGeneratorsTable(t *testing.T) {
	tpl := Template("Email {EMAIL} about it.")
	filled, values, err := tpl.Fill(context.Background(), &fakeCompleter{})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if values["EMAIL"] == "" {
		t.Error("expected EMAIL to be filled from the generator table")
	}
	if !strings.Contains(filled, values["EMAIL"]) {
		t.Errorf("filled text %q does not contain generated value %q", filled, values["EMAIL"])
	}
}

func TestTemplate_Fill_FallsBackToCompleter(t *testing.T) {
	tpl := Template("The mascot is {MASCOT_NAME}.")
	completer := &fakeCompleter{values: map[string]string{"MASCOT_NAME": "Sparky"}}

	filled, values, err := tpl.Fill(context.Background(), completer)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if filled != "The mascot is Sparky." {
		t.Errorf("filled = %q, want %q", filled, "The mascot is Sparky.")
	}
	if values["MASCOT_NAME"] != "Sparky" {
		t.Errorf("values[MASCOT_NAME] = %q, want %q", values["MASCOT_NAME"], "Sparky")
	}
}

func TestTemplate_Fill_ReusesSameValueForRepeatedTag(t *testing.T) {
	tpl := Template("{NAME} called. Please follow up with {NAME} tomorrow.")
	filled, values, err := tpl.Fill(context.Background(), &fakeCompleter{})
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	count := strings.Count(filled, values["NAME"])
	if count != 2 {
		t.Errorf("expected the same generated NAME value to appear twice, got %d occurrences in %q", count, filled)
	}
}

func TestTemplate_Fill_PropagatesCompleterError(t *testing.T) {
	tpl := Template("The mascot is {UNKNOWN_TAG}.")
	wantErr := errors.New("llm unavailable")
	completer := &fakeCompleter{err: wantErr}

	_, _, err := tpl.Fill(context.Background(), completer)
	if !errors.Is(err, wantErr) {
		t.Errorf("Fill() error = %v, want %v", err, wantErr)
	}
}
