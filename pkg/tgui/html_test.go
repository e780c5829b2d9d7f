package tgui

import "testing"

func TestLinkEscapes(t *testing.T) {
	t.Parallel()
	got := Link(`a<b>`, `https://t.me/c/1/2?x="y"`)
	want := H(`<a href="https://t.me/c/1/2?x=&#34;y&#34;">a&lt;b&gt;</a>`)
	if got != want {
		t.Fatalf("Link = %q, want %q", got, want)
	}
	if Link("plain", "") != "plain" {
		t.Fatalf("empty url should degrade to text")
	}
}

func TestLinesSkipsEmpty(t *testing.T) {
	t.Parallel()
	got := Lines(B("x"), "", Code("y"))
	if got != "<b>x</b>\n<code>y</code>" {
		t.Fatalf("Lines = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel…"},
		{"привет", 2, "пр…"},
		{"x", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
