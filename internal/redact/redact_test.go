package redact

import "testing"

func TestMaxOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "John Smith", "John Smith", len("John Smith")},
		{"shared substring", "John Smith", "Mr. John Smith", len("John Smith")},
		{"no overlap", "abc", "xyz", 0},
		{"empty", "", "abc", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maxOverlap(tt.a, tt.b); got != tt.want {
				t.Errorf("maxOverlap(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMergeTags(t *testing.T) {
	tokens := []string{"John", "Smith", "lives", "in", "Paris"}
	tags := []string{"NAME", "NAME", "O", "O", "LOCATION"}

	mergedTokens, mergedTags := MergeTags(tokens, tags)

	wantTokens := []string{"John Smith", "lives in", "Paris"}
	wantTags := []string{"NAME", "O", "LOCATION"}

	if len(mergedTokens) != len(wantTokens) {
		t.Fatalf("got %d spans, want %d: %v", len(mergedTokens), len(wantTokens), mergedTokens)
	}
	for i := range wantTokens {
		if mergedTokens[i] != wantTokens[i] || mergedTags[i] != wantTags[i] {
			t.Errorf("span %d = (%q, %q), want (%q, %q)", i, mergedTokens[i], mergedTags[i], wantTokens[i], wantTags[i])
		}
	}
}

func TestMergeTags_Empty(t *testing.T) {
	tokens, tags := MergeTags(nil, nil)
	if tokens != nil || tags != nil {
		t.Errorf("expected nil passthrough for empty input, got %v %v", tokens, tags)
	}
}

func TestLabelMap_ExactDuplicateReusesLabel(t *testing.T) {
	lm := NewLabelMap()

	first := lm.GetLabel("NAME", "John Smith")
	second := lm.GetLabel("NAME", "John Smith")

	if first != second {
		t.Errorf("expected exact duplicate to reuse label, got %q then %q", first, second)
	}
}

func TestLabelMap_NearDuplicateReusesLabel(t *testing.T) {
	lm := NewLabelMap()

	first := lm.GetLabel("NAME", "Jonathan Smithson")
	second := lm.GetLabel("NAME", "Mr. Jonathan Smithson Jr.")

	if first != second {
		t.Errorf("expected near-duplicate (overlap > 5) to reuse label, got %q then %q", first, second)
	}
}

func TestLabelMap_DistinctEntitiesGetDistinctLabels(t *testing.T) {
	lm := NewLabelMap()

	a := lm.GetLabel("NAME", "Alice")
	b := lm.GetLabel("NAME", "Bob")

	if a == b {
		t.Errorf("expected distinct entities to get distinct labels, both got %q", a)
	}
}

func TestLabelMap_LabelsAreScopedPerTag(t *testing.T) {
	lm := NewLabelMap()

	name := lm.GetLabel("NAME", "Alice")
	loc := lm.GetLabel("LOCATION", "Alice")

	if name == loc {
		t.Errorf("expected different tags to produce different label namespaces, got %q for both", name)
	}
}

func TestRedactUnredactRoundTrip(t *testing.T) {
	lm := NewLabelMap()
	nameLabel := lm.GetLabel("NAME", "John Smith")
	locLabel := lm.GetLabel("LOCATION", "Paris")

	redacted := nameLabel + " lives in " + locLabel
	restored := Unredact(redacted, lm.Entities())

	if restored != "John Smith lives in Paris" {
		t.Errorf("Unredact() = %q, want %q", restored, "John Smith lives in Paris")
	}
}

func TestUnredact_UnknownLabel(t *testing.T) {
	restored := Unredact("hello [NAME#7] world", nil)
	if restored != "hello [UNKNOWN ENTITY] world" {
		t.Errorf("Unredact() = %q, want placeholder for unknown entity", restored)
	}
}

func TestUnredact_NoPlaceholders(t *testing.T) {
	text := "no entities here"
	if got := Unredact(text, nil); got != text {
		t.Errorf("Unredact() = %q, want unchanged %q", got, text)
	}
}
