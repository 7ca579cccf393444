package forwarder

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
)

var (
	linkPattern   = regexp.MustCompile(`https?://|www\.|t\.me/|tg://`)
	hashtagClean  = regexp.MustCompile(`#\w+`)
	mentionClean  = regexp.MustCompile(`@\w+`)
	linkClean     = regexp.MustCompile(`https?://\S+|www\.\S+|t\.me/\S+|tg://\S+`)
	phoneClean    = regexp.MustCompile(`\+?\d{1,4}[-.\s]?\(?\d{1,3}\)?[-.\s]?\d{1,4}[-.\s]?\d{1,4}[-.\s]?\d{1,9}|\+?\d{10,15}`)
	emailClean    = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	emojiClean    = regexp.MustCompile(`[\x{1F300}-\x{1F5FF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{1F700}-\x{1FAFF}\x{2600}-\x{27BF}\x{1F1E0}-\x{1F1FF}\x{FE00}-\x{FE0F}\x{200D}\x{2B00}-\x{2BFF}\x{2300}-\x{23FF}\x{2764}\x{2763}\x{2665}\x{2714}\x{2716}]+`)
	multiSpace    = regexp.MustCompile(`[ \t]+`)
	lineEdgeSpace = regexp.MustCompile(`(?m)^ +| +$`)
	multiNewline  = regexp.MustCompile(`\n{3,}`)
)

// Apply runs the rule's modifier chain over a copy of the unit, in configured
// order. The second return value is false when the unit is discarded by a
// block or whitelist step; later steps do not run in that case.
func Apply(rule *db.Rule, u *Unit) (*Unit, bool) {
	out := *u
	out.MessageIds = append([]int64(nil), u.MessageIds...)
	if rule.DelaySeconds > 0 {
		out.Delay = time.Duration(rule.DelaySeconds) * time.Second
	}

	for _, m := range rule.Modifiers {
		switch m.Kind {
		case consts.ModCleanCaption:
			out.Text = ""
		case consts.ModCleanHashtag:
			out.Text = tidy(hashtagClean.ReplaceAllString(out.Text, ""))
		case consts.ModCleanMention:
			out.Text = tidy(mentionClean.ReplaceAllString(out.Text, ""))
		case consts.ModCleanLink:
			out.Text = tidy(linkClean.ReplaceAllString(out.Text, ""))
		case consts.ModCleanEmoji:
			out.Text = tidy(emojiClean.ReplaceAllString(out.Text, ""))
		case consts.ModCleanPhone:
			out.Text = tidy(phoneClean.ReplaceAllString(out.Text, ""))
		case consts.ModCleanEmail:
			out.Text = tidy(emailClean.ReplaceAllString(out.Text, ""))

		case consts.ModBlock:
			if containsAnyWord(out.Text, m.Words) {
				return nil, false
			}
		case consts.ModWhitelist:
			if !containsAnyWord(out.Text, m.Words) {
				return nil, false
			}

		case consts.ModReplace:
			out.Text = replaceOnce(out.Text, m.Replace)

		case consts.ModRename:
			if out.FileName != "" {
				out.FileName = renderName(m.Pattern, out.FileName, out.MessageIds[0], out.ReceivedAt)
				out.Renamed = true
			}

		case consts.ModHeader:
			if out.Text == "" {
				out.Text = m.Text
			} else {
				out.Text = m.Text + "\n" + out.Text
			}
		case consts.ModFooter:
			if out.Text == "" {
				out.Text = m.Text
			} else {
				out.Text = out.Text + "\n" + m.Text
			}

		case consts.ModButtons:
			out.Buttons = make([][]Button, 0, len(m.Buttons))
			for _, row := range m.Buttons {
				r := make([]Button, 0, len(row))
				for _, b := range row {
					r = append(r, Button{Text: b.Text, Url: b.Url})
				}
				out.Buttons = append(out.Buttons, r)
			}

		case consts.ModDelay:
			out.Delay = time.Duration(m.DelaySeconds) * time.Second

		case consts.ModHistory:
			// Startup directive, not a live transform.
		}
	}

	return &out, true
}

// tidy collapses the holes left by removed spans: repeated spaces, trailing
// line space and runs of blank lines.
func tidy(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = lineEdgeSpace.ReplaceAllString(s, "")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// containsAnyWord matches whole words, case-insensitive.
func containsAnyWord(text string, words []string) bool {
	if text == "" || len(words) == 0 {
		return false
	}
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		w = strings.ToLower(w)
		for _, f := range fields {
			if f == w {
				return true
			}
		}
	}
	return false
}

// replaceOnce substitutes exact substrings left to right in a single pass.
// Replacements are never rescanned, so a replacement value that matches a
// mapped source is left alone.
func replaceOnce(text string, pairs []db.ReplacePair) string {
	if text == "" || len(pairs) == 0 {
		return text
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		matched := false
		for _, p := range pairs {
			if p.From != "" && strings.HasPrefix(text[i:], p.From) {
				b.WriteString(p.To)
				i += len(p.From)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(text[i])
			i++
		}
	}
	return b.String()
}

// renderName expands a rename pattern. The counter placeholder is derived
// from the message id, which keeps the chain deterministic.
func renderName(pattern string, original string, messageId int64, at time.Time) string {
	ext := strings.TrimPrefix(path.Ext(original), ".")
	base := strings.TrimSuffix(original, path.Ext(original))

	r := strings.NewReplacer(
		"{original}", base,
		"{ext}", ext,
		"{counter}", fmt.Sprintf("%d", messageId),
		"{date}", at.Format("2006-01-02"),
		"{time}", at.Format("15-04-05"),
	)
	return r.Replace(pattern)
}
