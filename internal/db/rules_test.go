package db

import (
	"testing"

	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/stretchr/testify/assert"
)

func baseRule() *Rule {
	return &Rule{
		Id:           1,
		UserId:       10,
		AccountId:    20,
		Sources:      []string{"-100123"},
		Destinations: []string{"@dest"},
		Mode:         consts.RuleModeForward,
		Enabled:      true,
	}
}

func TestRuleValidateOk(t *testing.T) {
	assert.NoError(t, baseRule().Validate())

	r := baseRule()
	r.Mode = consts.RuleModeCopy
	r.Filters = map[string]bool{consts.FilterSticker: true, consts.FilterGif: false}
	r.Modifiers = []Modifier{
		{Kind: consts.ModCleanHashtag},
		{Kind: consts.ModHeader, Text: "[fwd]"},
		{Kind: consts.ModReplace, Replace: []ReplacePair{{From: "a", To: "b"}}},
		{Kind: consts.ModHistory, HistoryCount: 100},
	}
	assert.NoError(t, r.Validate())
}

func TestRuleValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"no sources", func(r *Rule) { r.Sources = nil }},
		{"no destinations", func(r *Rule) { r.Destinations = nil }},
		{"unknown mode", func(r *Rule) { r.Mode = "broadcast" }},
		{"negative delay", func(r *Rule) { r.DelaySeconds = -1 }},
		{"unknown filter", func(r *Rule) { r.Filters = map[string]bool{"giphy": true} }},
		{"unknown modifier kind", func(r *Rule) { r.Modifiers = []Modifier{{Kind: "sparkle"}} }},
		{"block without words", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModBlock}} }},
		{"whitelist without words", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModWhitelist}} }},
		{"rename without pattern", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModRename}} }},
		{"replace without pairs", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModReplace}} }},
		{"header without text", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModHeader}} }},
		{"buttons without buttons", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModButtons}} }},
		{"history without count", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModHistory}} }},
		{"negative modifier delay", func(r *Rule) { r.Modifiers = []Modifier{{Kind: consts.ModDelay, DelaySeconds: -5}} }},
		{"block and whitelist together", func(r *Rule) {
			r.Modifiers = []Modifier{
				{Kind: consts.ModBlock, Words: []string{"x"}},
				{Kind: consts.ModWhitelist, Words: []string{"y"}},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := baseRule()
			tc.mutate(r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestRuleHistoryCount(t *testing.T) {
	r := baseRule()
	assert.Equal(t, 0, r.HistoryCount())

	r.Modifiers = []Modifier{{Kind: consts.ModHistory, HistoryCount: 250}}
	assert.Equal(t, 250, r.HistoryCount())
}
