// Package risk gates candidates through the reputational-risk oracle.
package risk

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"threadpromo/internal/llm"
	"threadpromo/internal/metrics"
	"threadpromo/internal/model"
)

const rubric = `SNS 炎上リスクのレビューをしてください。
以下の本文（日本語）が SNS で紹介された場合に炎上につながる要素があるか、厳格に判定してください。

## リスク：高 とする条件
1. 人種・国籍・宗教・性別・地域などへの差別、誹謗中傷、蔑称、ヘイト表現
2. 違法行為や公序良俗に反する行為の助長・推奨・自慢
3. 事件・災害・政治・宗教など敏感な話題の一方的または扇動的な扱い
4. 個人や企業への攻撃的・挑発的な言及、名誉毀損、プライバシーの暴露
5. 虐待・残虐・性的搾取など不快または暴力的な内容
## リスク：低 とする条件
上記 1-5 のいずれにも該当しない場合。
## 出力形式（厳守）
- 1 行目：「リスク：高」または「リスク：低」のみ
- 2 行目：判定理由（該当する条件番号）
- それ以外は書かない
- 判定できない場合は「ERROR」とだけ書く
--- 本文 ---
`

var marker = regexp.MustCompile(`(?i)(?:リスク|risk)\s*[:：]\s*(高|低|high|low)`)

// ParseVerdict converts free oracle text into a closed Risk value.
// The first line carrying a marker decides; anything else is RiskUnknown.
func ParseVerdict(msg string) model.Risk {
	for _, line := range strings.Split(msg, "\n") {
		m := marker.FindStringSubmatch(line)
		if m == nil { continue }
		switch strings.ToLower(m[1]) {
		case "高", "high":
			return model.RiskHigh
		case "低", "low":
			return model.RiskLow
		}
	}
	return model.RiskUnknown
}

// Decide maps a risk verdict to the candidate decision.
func Decide(r model.Risk) model.Decision {
	if r == model.RiskLow {
		return model.Accept
	}
	return model.Reject
}

// Classifier asks the oracle for a verdict. It never retries.
type Classifier struct {
	oracle    llm.Oracle
	maxTokens int
}

func NewClassifier(oracle llm.Oracle, maxTokens int) *Classifier {
	if maxTokens <= 0 { maxTokens = 200 }
	return &Classifier{oracle: oracle, maxTokens: maxTokens}
}

// Classify returns the risk and the rationale to keep in the audit table.
// Oracle failures fail closed to RiskHigh.
func (c *Classifier) Classify(ctx context.Context, text string) (model.Risk, string) {
	msg, err := c.oracle.Complete(ctx, rubric+text, c.maxTokens)
	if err != nil {
		metrics.IncOracle("classify", "error")
		return model.RiskHigh, fmt.Sprintf("[error] %v", err)
	}
	r := ParseVerdict(msg)
	metrics.IncOracle("classify", r.String())
	return r, msg
}

// Apply classifies text and stamps the verdict onto c.
func (c *Classifier) Apply(ctx context.Context, cand *model.Candidate, text string) {
	cand.Risk, cand.Verdict = c.Classify(ctx, text)
	cand.Decision = Decide(cand.Risk)
}
