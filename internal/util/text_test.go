package util

import "testing"

func TestNormalizeWhitespace(t *testing.T) {
	if got := NormalizeWhitespace("  渋谷駅 \n\t 徒歩5分  "); got != "渋谷駅 徒歩5分" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeWhitespace("\u3000品川\u3000\u3000駅\u00a0前 "); got != "品川 駅 前" {
		t.Fatalf("full-width and no-break spaces: got %q", got)
	}
}

func TestContainsAnyCaseInsensitive(t *testing.T) {
	cases := []struct {
		text    string
		needles []string
		want    bool
	}{
		{"大きなトラブル発生", []string{"トラブル"}, true},
		{"Big TROUBLE here", []string{"trouble"}, true},
		{"ＦＵＬＬ width", []string{"full"}, true},
		{"平和な話題", []string{"トラブル", ""}, false},
	}
	for _, c := range cases {
		if got := ContainsAnyCaseInsensitive(c.text, c.needles); got != c.want {
			t.Fatalf("%q %v: got %v", c.text, c.needles, got)
		}
	}
}

func TestRuneLen(t *testing.T) {
	if n := RuneLen(" 詳しくはこちら👇"); n != 9 {
		t.Fatalf("rune len = %d", n)
	}
}
