package title

import (
	"context"
	"errors"
	"strings"
	"testing"

	"threadpromo/internal/llm"
	"threadpromo/internal/retry"
	"threadpromo/internal/util"
)

var rules = Rules{
	BannedWords:   []string{"トラブル", "酷い", "scam"},
	CTA:           " 詳しくはこちら👇",
	OverallBudget: 90,
	Sentinel:      "NOT_VIABLE",
}

// scripted replays oracle replies in order; errors are returned as-is.
type scripted struct {
	replies []any
	calls   int
}

func (s *scripted) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	switch v := s.replies[i].(type) {
	case error:
		return "", v
	default:
		return v.(string), nil
	}
}

func newGen(o llm.Oracle) *Generator {
	return NewGenerator(o, rules, retry.Policy{MaxRetries: 3}, retry.Policy{MaxRetries: 2}, 80)
}

func TestGenerateDecoratesTitle(t *testing.T) {
	o := &scripted{replies: []any{"タイトル：「渋谷駅徒歩5分の新築、住民の本音」"}}
	got, err := newGen(o).Generate(context.Background(), "本文")
	if err != nil { t.Fatal(err) }
	if got != "渋谷駅徒歩5分の新築、住民の本音"+rules.CTA { t.Fatalf("got %q", got) }
}

func TestGenerateRetriesTransportThenSucceeds(t *testing.T) {
	o := &scripted{replies: []any{errors.New("timeout"), &llm.StatusError{Code: 529}, "品川の3LDK事情"}}
	got, err := newGen(o).Generate(context.Background(), "本文")
	if err != nil { t.Fatal(err) }
	if o.calls != 3 || !strings.HasPrefix(got, "品川の3LDK事情") { t.Fatalf("calls=%d got=%q", o.calls, got) }
}

func TestGenerateInnerBudgetExhausts(t *testing.T) {
	o := &scripted{replies: []any{errors.New("down")}}
	_, err := newGen(o).Generate(context.Background(), "本文")
	if !errors.Is(err, ErrNotViable) { t.Fatalf("expected not viable, got %v", err) }
	if o.calls != 4 { t.Fatalf("expected 1+3 inner calls, got %d", o.calls) }
}

func TestSentinelStopsInnerImmediately(t *testing.T) {
	o := &scripted{replies: []any{"not_viable", "新宿の話題"}}
	_, err := newGen(o).Generate(context.Background(), "本文")
	if !errors.Is(err, ErrNotViable) || o.calls != 1 {
		t.Fatalf("expected immediate not viable after 1 call, got %v after %d", err, o.calls)
	}
}

func TestBannedTermIsRetriedAndNeverReturned(t *testing.T) {
	o := &scripted{replies: []any{"目黒の大トラブル", "目黒のＳＣＡＭ事情", "目黒の静かな住宅街"}}
	got, err := newGen(o).Generate(context.Background(), "本文")
	if err != nil { t.Fatal(err) }
	if o.calls != 3 { t.Fatalf("expected 3 calls, got %d", o.calls) }
	if util.ContainsAnyCaseInsensitive(got, rules.BannedWords) { t.Fatalf("banned term leaked: %q", got) }
}

func TestOuterLoopRefetchesAfterSentinel(t *testing.T) {
	o := &scripted{replies: []any{"NOT_VIABLE", "NOT_VIABLE", "23区の新築ランキング"}}
	fetches := 0
	got, err := newGen(o).GenerateWithRefetch(context.Background(), func(ctx context.Context) (string, error) {
		fetches++
		return "本文", nil
	})
	if err != nil { t.Fatal(err) }
	if fetches != 3 || o.calls != 3 { t.Fatalf("fetches=%d calls=%d", fetches, o.calls) }
	if !strings.HasSuffix(got, rules.CTA) { t.Fatalf("missing cta: %q", got) }
}

func TestOuterLoopExhausts(t *testing.T) {
	o := &scripted{replies: []any{"NOT_VIABLE"}}
	fetches := 0
	_, err := newGen(o).GenerateWithRefetch(context.Background(), func(ctx context.Context) (string, error) {
		fetches++
		return "本文", nil
	})
	if !errors.Is(err, ErrNotViable) { t.Fatalf("expected not viable, got %v", err) }
	if fetches != 3 { t.Fatalf("expected 1+2 outer attempts, got %d", fetches) }
}

func TestOuterLoopEmptyTextIsNotViable(t *testing.T) {
	o := &scripted{replies: []any{"港区の話題"}}
	_, err := newGen(o).GenerateWithRefetch(context.Background(), func(ctx context.Context) (string, error) { return "  ", nil })
	if !errors.Is(err, ErrNotViable) || o.calls != 0 { t.Fatalf("err=%v calls=%d", err, o.calls) }
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  中野の  新築\n事情 ":     "中野の 新築 事情",
		"Title: \"10年後の街\"": "10年後の街",
		"・『豊洲の眺望』":          "豊洲の眺望",
		"【「二重」】":            "二重",
		"「片側だけ":              "「片側だけ",
		"品川\u3000\u3000駅の話題":    "品川 駅の話題",
		"品川\u00a0駅":           "品川 駅",
		"- タイトル：品川の話題":        "品川の話題",
		"「タイトル：品川の話題」":       "品川の話題",
		"・「Title: 『目黒の朝』」":    "目黒の朝",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want { t.Fatalf("%q: got %q want %q", in, got, want) }
	}
}

func TestDecorateLengthInvariant(t *testing.T) {
	for n := 0; n < 200; n += 7 {
		body := strings.Repeat("あ", n)
		got := Decorate(body, rules)
		if util.RuneLen(got) > rules.OverallBudget { t.Fatalf("n=%d: %d runes", n, util.RuneLen(got)) }
		if !strings.HasSuffix(got, rules.CTA) { t.Fatalf("n=%d: missing cta", n) }
	}
	long := strings.Repeat("い", rules.MaxTitle()-2) + "、、、、、、"
	got := Decorate(long, rules)
	if !strings.Contains(got, "い…") { t.Fatalf("trailing punctuation should be trimmed before ellipsis: %q", got) }
	exact := strings.Repeat("う", rules.MaxTitle())
	if Decorate(exact, rules) != exact+rules.CTA { t.Fatal("title at the limit must not be truncated") }
}
