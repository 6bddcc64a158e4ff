package embedding

import (
	"reflect"
	"strings"
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, attn, types := tok.Tokenize("Hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS || ids[3] != tokenSEP {
		t.Errorf("expected CLS at 0 and SEP at 3, got %v", ids)
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("attention mask: %v", attn)
	}
	lower, _, _ := tok.Tokenize("hello WORLD", 10)
	if !reflect.DeepEqual(ids, lower) {
		t.Error("tokenization should be case-insensitive")
	}
}

func TestSimpleTokenizer_Truncates(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, _, _ := tok.Tokenize("a b c d e f g h", 5)
	if ids[4] != tokenSEP {
		t.Errorf("last slot should hold SEP: %v", ids)
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"  a  b  c  ", []string{"a", "b", "c"}},
		{"spa, pool; garden.", []string{"spa", "pool", "garden"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := SplitWords(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitWords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSimpleTokenizer_FixedLength(t *testing.T) {
	tok := &SimpleTokenizer{}
	for _, n := range []int{0, 2, 3, 64} {
		want := n
		if n <= 2 {
			want = 256
		}
		short, _, _ := tok.Tokenize("", n)
		long, _, _ := tok.Tokenize(strings.Repeat("word ", 300), n)
		if len(short) != want || len(long) != want {
			t.Errorf("limit %d: lengths %d and %d, want %d", n, len(short), len(long), want)
		}
	}
}
