// Package labels holds the prompt and answer parsing shared by the
// vision-model classifier backends.
package labels

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCategories are the classes of the stock cat/dog classification service
var DefaultCategories = []string{"cat", "dog"}

const promptTemplate = `You are an image classifier.

Look at the image and answer with exactly one label from this list:
%s

Return JSON only:
{"prediction": "<label>"}

HARD RULES
- The label must be copied verbatim from the list, lowercase.
- If none fits, pick the closest one.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Prompt builds the classification prompt for the given categories
func Prompt(categories []string) string {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	quoted := make([]string, len(categories))
	for i, c := range categories {
		quoted[i] = "- " + c
	}
	return fmt.Sprintf(promptTemplate, strings.Join(quoted, "\n"))
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize strips code fences, comments and trailing commas from a model reply
// and keeps only the outermost {...}.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// Match picks the category a model reply refers to. JSON replies are read
// from their "prediction" field; free text is scanned for a category word.
// It returns "" when nothing matches.
func Match(reply string, categories []string) string {
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	candidate := reply
	if s := Sanitize(reply); strings.HasPrefix(s, "{") {
		var out struct {
			Prediction string `json:"prediction"`
		}
		if err := json.Unmarshal([]byte(s), &out); err == nil && out.Prediction != "" {
			candidate = out.Prediction
		}
	}

	candidate = strings.ToLower(strings.TrimSpace(candidate))
	for _, c := range categories {
		if candidate == strings.ToLower(c) {
			return c
		}
	}

	// free text: first category mentioned as a whole word wins
	best, bestIdx := "", -1
	for _, c := range categories {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(c)) + `s?\b`)
		if loc := re.FindStringIndex(candidate); loc != nil && (bestIdx < 0 || loc[0] < bestIdx) {
			best, bestIdx = c, loc[0]
		}
	}
	return best
}
