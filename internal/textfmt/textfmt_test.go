package textfmt

import (
	"reflect"
	"strings"
	"testing"
)

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"only blank lines", "\n\n  \n", []string{}},
		{"joins lines and splits on blank", "a\nb\n\nc", []string{"a b", "c"}},
		{"drops leading and trailing blanks", "\n\nfirst\n\n\n\nsecond\n\n", []string{"first", "second"}},
		{"whitespace-only line delimits", "a\n   \nb", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n\r\nc", []string{"a b", "c"}},
		{"trims line edges", "  a  \n  b", []string{"a b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitParagraphs(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitParagraphs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitParagraphs_CountMatchesBlankLineGroups(t *testing.T) {
	inputs := []string{
		"one",
		"one\ntwo",
		"one\n\ntwo\n\nthree",
		"\n\none\n\n\n\ntwo\n",
		"• a\n• b\n\nplain",
	}
	for _, in := range inputs {
		groups := 0
		inGroup := false
		for _, line := range strings.Split(in, "\n") {
			blank := strings.TrimSpace(line) == ""
			if !blank && !inGroup {
				groups++
			}
			inGroup = !blank
		}
		if got := len(SplitParagraphs(in)); got != groups {
			t.Errorf("SplitParagraphs(%q) produced %d paragraphs, want %d", in, got, groups)
		}
	}
}

func TestDetectListBlock(t *testing.T) {
	tests := []struct {
		lines []string
		want  bool
	}{
		{[]string{"• one"}, true},
		{[]string{"- one"}, true},
		{[]string{"intro", "  - indented bullet"}, true},
		{[]string{"-no space"}, false},
		{[]string{"•no space"}, false},
		{[]string{"2020 - 2023 engineer"}, false},
		{[]string{"plain text"}, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := DetectListBlock(tt.lines); got != tt.want {
			t.Errorf("DetectListBlock(%q) = %v, want %v", tt.lines, got, tt.want)
		}
	}
}

func TestRenderBlock_ListContinuation(t *testing.T) {
	got := RenderBlock([]string{"• one", "more", "- two"})
	want := List([]string{"one more", "two"})

	if !reflect.DeepEqual(got, want) {
		t.Errorf("RenderBlock = %+v, want %+v", got, want)
	}
}

func TestRenderBlock_ListDropsEmptyItems(t *testing.T) {
	got := RenderBlock([]string{"- ", "•  ", "- kept"})

	if !reflect.DeepEqual(got.Items, []string{"kept"}) {
		t.Errorf("items = %q, want [kept]", got.Items)
	}
}

func TestRenderBlock_TextBeforeFirstBulletIsItsOwnItem(t *testing.T) {
	got := RenderBlock([]string{"Highlights:", "- shipped", "- hired"})

	want := []string{"Highlights:", "shipped", "hired"}
	if got.Kind != KindList || !reflect.DeepEqual(got.Items, want) {
		t.Errorf("RenderBlock = %+v, want list %q", got, want)
	}
}

func TestRenderBlock_ListItemsAreNotEmphasized(t *testing.T) {
	got := RenderBlock([]string{"- **raw**"})

	if got.Items[0] != "**raw**" {
		t.Errorf("item = %q, want literal asterisks", got.Items[0])
	}
}

func TestRenderBlock_ParagraphEmphasis(t *testing.T) {
	got := RenderBlock([]string{"**bold** and *italic*"})

	if got.Kind != KindParagraph {
		t.Fatalf("kind = %v, want paragraph", got.Kind)
	}
	want := "<strong>bold</strong> and <em>italic</em>"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}
}

func TestEmphasize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"unmatched single", "5 * 3", "5 * 3"},
		{"unmatched double", "**open", "**open"},
		{"non-greedy", "*a* and *b*", "<em>a</em> and <em>b</em>"},
		{"escapes html first", "<b>x</b> *y*", "&lt;b&gt;x&lt;/b&gt; <em>y</em>"},
		{"no match across lines", "*a\nb*", "*a<br>b*"},
		{"newline becomes br", "line1\nline2", "line1<br>line2"},
		{"strong inside sentence", "led **12** engineers", "led <strong>12</strong> engineers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Emphasize(tt.in); got != tt.want {
				t.Errorf("Emphasize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormat_MixedBlocks(t *testing.T) {
	text := "Summary line one\nline two\n\n• Go\n• SQL\n  and Postgres\n\n*Remote* friendly"

	got := Format(text)
	want := []Block{
		Paragraph("Summary line one line two"),
		List([]string{"Go", "SQL and Postgres"}),
		Paragraph("<em>Remote</em> friendly"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Format = %+v, want %+v", got, want)
	}
}

func TestFormat_Deterministic(t *testing.T) {
	text := "a\n\n- b\n- c\n\n**d**"
	first := Format(text)
	for i := 0; i < 5; i++ {
		if got := Format(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("Format is not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestFormat_Empty(t *testing.T) {
	if got := Format(""); len(got) != 0 {
		t.Errorf("Format(\"\") = %+v, want empty", got)
	}
}
