package provider

import "testing"

func TestCompactTimeControl(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"600+5", "10m+5"},
		{"40", "40s"},
		{"5400", "1h30m"},
		{"3600+30", "1h+30"},
		{"308", "5m08s"},
		{"600", "10m"},
		{"30+2", "30s+2"},
		{"7200", "2h"},
		{"", ""},
		{"1/86400", ""},
		{"abc", ""},
	}
	for _, c := range cases {
		if got := CompactTimeControl(c.raw); got != c.want {
			t.Fatalf("CompactTimeControl(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestCompactClock(t *testing.T) {
	if got := CompactClock(600, 5); got != "10m+5" {
		t.Fatalf("CompactClock(600,5) = %q", got)
	}
	if got := CompactClock(180, 0); got != "3m" {
		t.Fatalf("CompactClock(180,0) = %q", got)
	}
	if got := CompactClock(0, 0); got != "" {
		t.Fatalf("CompactClock(0,0) = %q, want empty", got)
	}
}

func TestResultFromPGN(t *testing.T) {
	pgn := "[Event \"Live Chess\"]\n[Result \"1-0\"]\n\n1. e4 e5 1-0"
	if got := ResultFromPGN(pgn); got != "1-0" {
		t.Fatalf("ResultFromPGN = %q", got)
	}
	if got := ResultFromPGN("1. e4 e5"); got != "" {
		t.Fatalf("expected empty result for tag-less pgn, got %q", got)
	}
}

func TestMoveCountFromPGN(t *testing.T) {
	pgn := "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6"
	if got := MoveCountFromPGN(pgn); got != 6 {
		t.Fatalf("MoveCountFromPGN = %d, want 6", got)
	}
	if got := MoveCountFromPGN("no moves here"); got != 0 {
		t.Fatalf("expected 0 for tokenless text, got %d", got)
	}
}

func TestExtractGameText(t *testing.T) {
	body := "<html><body>junk\n[Event \"Live Chess\"]\n[Site \"Chess.com\"]\n1. e4 e5\n\n<script>more junk</script>"
	pgn, ok := ExtractGameText(body)
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	want := "[Event \"Live Chess\"]\n[Site \"Chess.com\"]\n1. e4 e5"
	if pgn != want {
		t.Fatalf("extracted %q, want %q", pgn, want)
	}

	if _, ok := ExtractGameText("<html>nothing</html>"); ok {
		t.Fatalf("expected absence when marker is missing")
	}

	// No blank line: region runs to end of input.
	pgn, ok = ExtractGameText("x[Event \"A\"]\n1. d4")
	if !ok || pgn != "[Event \"A\"]\n1. d4" {
		t.Fatalf("tail extraction: ok=%v pgn=%q", ok, pgn)
	}
}
