package syntheticdata

import (
	"bytes"
	"strings"
	"testing"
)

func TestSplit_ZeroRatioKeepsAllInTrain(t *testing.T) {
	rows := []Row{{Left: "a"}, {Left: "b"}}
	train, test := Split(rows, 0)
	if len(train) != 2 || len(test) != 0 {
		t.Errorf("train=%d test=%d, want 2/0", len(train), len(test))
	}
}

func TestSplit_FullRatioKeepsAllInTest(t *testing.T) {
	rows := []Row{{Left: "a"}, {Left: "b"}}
	train, test := Split(rows, 1)
	if len(train) != 0 || len(test) != 2 {
		t.Errorf("train=%d test=%d, want 0/2", len(train), len(test))
	}
}

func TestSplit_IsDeterministic(t *testing.T) {
	rows := []Row{{Left: "alpha"}, {Left: "beta"}, {Left: "gamma"}, {Left: "delta"}}
	train1, test1 := Split(rows, 0.5)
	train2, test2 := Split(rows, 0.5)

	if len(train1) != len(train2) || len(test1) != len(test2) {
		t.Fatalf("split sizes differ across calls: %d/%d vs %d/%d", len(train1), len(test1), len(train2), len(test2))
	}
	for i := range train1 {
		if train1[i].Left != train2[i].Left {
			t.Errorf("train[%d] differs between runs: %q vs %q", i, train1[i].Left, train2[i].Left)
		}
	}
}

func TestSplit_SameValueAlwaysSameSide(t *testing.T) {
	rows := []Row{{Left: "repeat-me"}, {Left: "repeat-me"}, {Left: "repeat-me"}}
	train, test := Split(rows, 0.5)
	if len(train) != 0 && len(test) != 0 {
		t.Errorf("identical Left values should land on the same side, got train=%d test=%d", len(train), len(test))
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []Row{{Left: "hello world", Right: "greeting"}, {Left: "bye", Right: "farewell"}}
	if err := WriteCSV(&buf, [2]string{"text", "label"}, rows); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "text,label\n") {
		t.Errorf("missing header, got: %q", out)
	}
	if !strings.Contains(out, "hello world,greeting") {
		t.Errorf("missing first row, got: %q", out)
	}
}
