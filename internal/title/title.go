// Package title generates promotional post titles through the generation oracle.
package title

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"threadpromo/internal/llm"
	"threadpromo/internal/metrics"
	"threadpromo/internal/retry"
	"threadpromo/internal/util"
)

// ErrNotViable means no compliant title could be produced for the candidate.
var ErrNotViable = errors.New("title not viable")

var (
	errSentinel = errors.New("oracle returned sentinel")
	errBanned   = errors.New("title contains banned term")
	errEmpty    = errors.New("empty title")
)

// Rules are the content and format constraints applied to every title.
type Rules struct {
	BannedWords   []string
	CTA           string
	OverallBudget int
	Sentinel      string
}

// MaxTitle is the rune budget left for the title body once the cta is appended.
func (r Rules) MaxTitle() int { return r.OverallBudget - util.RuneLen(r.CTA) }

// Generator produces decorated titles under two nested retry budgets.
// Inner retries repeat only the oracle call; outer retries re-fetch the text and rerun the inner procedure.
type Generator struct {
	oracle    llm.Oracle
	rules     Rules
	inner     retry.Policy
	outer     retry.Policy
	maxTokens int
}

func NewGenerator(oracle llm.Oracle, rules Rules, inner, outer retry.Policy, maxTokens int) *Generator {
	if maxTokens <= 0 { maxTokens = 80 }
	return &Generator{oracle: oracle, rules: rules, inner: inner, outer: outer, maxTokens: maxTokens}
}

func (g *Generator) prompt(text string) string {
	var b strings.Builder
	b.WriteString("あなたは X（旧Twitter）向けのコピーライターです。\n")
	b.WriteString("掲示板スレッドの本文を読み、続きを読みたくなる前向きな日本語タイトルを 1 本だけ作成してください。\n")
	b.WriteString("### ルール\n")
	fmt.Fprintf(&b, "1. タイトル本文だけを 1 行で出力する。接頭辞・記号・かぎ括弧・解説・絵文字・改行は付けない。%d 文字以内。\n", g.rules.OverallBudget)
	b.WriteString("2. 冒頭に地名・駅名・数字のいずれかを入れる。\n")
	b.WriteString("3. 末尾に短い誘導文（例: 詳しくはこちら、続きはこちら）を付ける。\n")
	fmt.Fprintf(&b, "4. ルールを 1 つでも守れない場合、または禁止語を含んでしまう場合は %s とだけ出力する。\n", g.rules.Sentinel)
	b.WriteString("### 禁止語\n")
	b.WriteString(strings.Join(g.rules.BannedWords, ", "))
	b.WriteString("\n--- 本文 ---\n")
	b.WriteString(text)
	return b.String()
}

// Generate runs the inner procedure for one text and returns a decorated title or ErrNotViable.
func (g *Generator) Generate(ctx context.Context, text string) (string, error) {
	p := g.prompt(text)
	out, err := retry.Do(ctx, g.inner, func() (string, error) {
		raw, err := g.oracle.Complete(ctx, p, g.maxTokens)
		if err != nil {
			metrics.IncOracle("title", "error")
			return "", err
		}
		if strings.Contains(strings.ToUpper(raw), strings.ToUpper(g.rules.Sentinel)) {
			metrics.IncOracle("title", "sentinel")
			return "", errSentinel
		}
		t := Normalize(raw)
		if t == "" {
			metrics.IncOracle("title", "empty")
			return "", errEmpty
		}
		if util.ContainsAnyCaseInsensitive(t, g.rules.BannedWords) {
			metrics.IncOracle("title", "banned")
			return "", errBanned
		}
		metrics.IncOracle("title", "ok")
		return t, nil
	}, retry.AbortOn(errSentinel), retry.OnRetry(func() { metrics.IncTitleRetry("inner") }))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil { return "", ctxErr }
		return "", fmt.Errorf("%w: %v", ErrNotViable, err)
	}
	return Decorate(out, g.rules), nil
}

// GenerateWithRefetch is the outer loop: every attempt re-fetches the text and starts from a fresh prompt.
func (g *Generator) GenerateWithRefetch(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	out, err := retry.Do(ctx, g.outer, func() (string, error) {
		text, err := fetch(ctx)
		if err != nil { return "", err }
		if strings.TrimSpace(text) == "" { return "", errEmpty }
		return g.Generate(ctx, text)
	}, retry.OnRetry(func() { metrics.IncTitleRetry("outer") }))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil { return "", ctxErr }
		if errors.Is(err, ErrNotViable) { return "", err }
		return "", fmt.Errorf("%w: %v", ErrNotViable, err)
	}
	return out, nil
}

var (
	rolePrefix = regexp.MustCompile(`(?i)^\s*(?:タイトル|title)\s*[:：]\s*`)
	bullet     = regexp.MustCompile(`^[-–—・*•]+\s*`)
	pairs      = map[rune]rune{'「': '」', '『': '』', '"': '"', '“': '”', '\'': '\'', '【': '】', '(': ')', '（': '）', '[': ']'}
)

// Normalize collapses whitespace and strips role prefixes, bullets and wrapping quotes or
// brackets, repeating until none applies so nested artifacts are removed in any order.
func Normalize(raw string) string {
	t := util.NormalizeWhitespace(raw)
	for {
		prev := t
		t = strings.TrimSpace(rolePrefix.ReplaceAllString(t, ""))
		t = strings.TrimSpace(bullet.ReplaceAllString(t, ""))
		if r := []rune(t); len(r) >= 2 {
			if closer, ok := pairs[r[0]]; ok && r[len(r)-1] == closer {
				t = strings.TrimSpace(string(r[1 : len(r)-1]))
			}
		}
		if t == prev { return t }
	}
}

// Decorate enforces the length budget and appends the cta.
// The result never exceeds rules.OverallBudget runes.
func Decorate(t string, rules Rules) string {
	limit := rules.MaxTitle()
	r := []rune(t)
	if len(r) > limit {
		cut := limit - 1
		if cut < 0 { cut = 0 }
		t = strings.TrimRight(string(r[:cut]), "、,。. ") + "…"
	}
	return t + rules.CTA
}
