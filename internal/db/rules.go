package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/TeleOle/auto-forward/internal/config"
	"github.com/TeleOle/auto-forward/internal/consts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ReplacePair maps an exact substring to its replacement.
type ReplacePair struct {
	From string `bson:"from"`
	To   string `bson:"to"`
}

// Button is one inline link button attached to outgoing messages.
type Button struct {
	Text string `bson:"text"`
	Url  string `bson:"url"`
}

// Modifier is one step of a rule's transformation chain. Kind selects the
// behavior, the remaining fields are its parameters; which fields apply per
// kind is checked by Validate.
type Modifier struct {
	Kind         string        `bson:"kind"`
	Pattern      string        `bson:"pattern,omitempty"`
	Words        []string      `bson:"words,omitempty"`
	Replace      []ReplacePair `bson:"replace,omitempty"`
	Text         string        `bson:"text,omitempty"`
	Buttons      [][]Button    `bson:"buttons,omitempty"`
	DelaySeconds int           `bson:"delaySeconds,omitempty"`
	HistoryCount int           `bson:"historyCount,omitempty"`
}

// Rule is one forwarding rule. Sources and destinations are chat refs:
// either numeric chat ids or @usernames, resolved through the owning account.
type Rule struct {
	Id            int64            `bson:"id"`
	UserId        int64            `bson:"userId"`
	AccountId     int64            `bson:"accountId"`
	Sources       []string         `bson:"sources"`
	Destinations  []string         `bson:"destinations"`
	Mode          string           `bson:"mode"`
	Enabled       bool             `bson:"enabled"`
	Filters       map[string]bool  `bson:"filters,omitempty"`
	Modifiers     []Modifier       `bson:"modifiers,omitempty"`
	DelaySeconds  int              `bson:"delaySeconds"`
	HistoryCursor map[string]int64 `bson:"historyCursor,omitempty"`
	ForwardCount  int64            `bson:"forwardCount"`
	CreatedAt     time.Time        `bson:"createdAt"`
}

// Validate rejects malformed rules at load time so that the pipeline never
// has to guess about an unknown modifier kind or filter toggle mid-flight.
func (r *Rule) Validate() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("rule %d: no sources", r.Id)
	}
	if len(r.Destinations) == 0 {
		return fmt.Errorf("rule %d: no destinations", r.Id)
	}
	if r.Mode != consts.RuleModeForward && r.Mode != consts.RuleModeCopy {
		return fmt.Errorf("rule %d: unknown mode %q", r.Id, r.Mode)
	}
	if r.DelaySeconds < 0 {
		return fmt.Errorf("rule %d: negative delay", r.Id)
	}
	for name := range r.Filters {
		if !knownFilter(name) {
			return fmt.Errorf("rule %d: unknown filter %q", r.Id, name)
		}
	}
	hasBlock, hasWhitelist := false, false
	for i, m := range r.Modifiers {
		if !knownModifierKind(m.Kind) {
			return fmt.Errorf("rule %d: unknown modifier kind %q", r.Id, m.Kind)
		}
		switch m.Kind {
		case consts.ModBlock:
			hasBlock = true
			if len(m.Words) == 0 {
				return fmt.Errorf("rule %d: block modifier without words", r.Id)
			}
		case consts.ModWhitelist:
			hasWhitelist = true
			if len(m.Words) == 0 {
				return fmt.Errorf("rule %d: whitelist modifier without words", r.Id)
			}
		case consts.ModRename:
			if m.Pattern == "" {
				return fmt.Errorf("rule %d: rename modifier without pattern", r.Id)
			}
		case consts.ModReplace:
			if len(m.Replace) == 0 {
				return fmt.Errorf("rule %d: replace modifier without pairs", r.Id)
			}
		case consts.ModHeader, consts.ModFooter:
			if m.Text == "" {
				return fmt.Errorf("rule %d: %s modifier without text", r.Id, m.Kind)
			}
		case consts.ModButtons:
			if len(m.Buttons) == 0 {
				return fmt.Errorf("rule %d: buttons modifier without buttons", r.Id)
			}
		case consts.ModDelay:
			if m.DelaySeconds < 0 {
				return fmt.Errorf("rule %d: modifier %d: negative delay", r.Id, i)
			}
		case consts.ModHistory:
			if m.HistoryCount <= 0 {
				return fmt.Errorf("rule %d: history modifier without count", r.Id)
			}
		}
	}
	// Block and whitelist on one rule have no defined combined meaning,
	// so the combination is rejected instead of being interpreted.
	if hasBlock && hasWhitelist {
		return fmt.Errorf("rule %d: block and whitelist cannot both be enabled", r.Id)
	}

	return nil
}

// HistoryCount returns the configured backfill size, zero when history
// replay is not enabled on this rule.
func (r *Rule) HistoryCount() int {
	for _, m := range r.Modifiers {
		if m.Kind == consts.ModHistory {
			return m.HistoryCount
		}
	}
	return 0
}

func knownModifierKind(kind string) bool {
	for _, k := range consts.ModifierKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func knownFilter(name string) bool {
	for _, n := range consts.FilterNames {
		if n == name {
			return true
		}
	}
	return false
}

type RulesStorage struct {
	rulesColl *mongo.Collection
}

func NewRulesStorage(cfg *config.Config, dbClient *mongo.Client) *RulesStorage {
	return &RulesStorage{
		rulesColl: dbClient.Database(cfg.MongoDb).Collection("rules"),
	}
}

// RulesByAccount loads enabled rules for one account. Malformed rules are
// skipped and reported, they never abort loading of their siblings.
func (rs *RulesStorage) RulesByAccount(ctx context.Context, accountId int64) ([]*Rule, error) {
	crit := bson.M{"accountId": accountId, "enabled": true}
	return rs.find(ctx, crit)
}

func (rs *RulesStorage) UserRules(ctx context.Context, userId int64) ([]*Rule, error) {
	return rs.find(ctx, bson.M{"userId": userId})
}

func (rs *RulesStorage) find(ctx context.Context, crit bson.M) ([]*Rule, error) {
	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cur, err := rs.rulesColl.Find(mctx, crit, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	rules := make([]*Rule, 0)
	if err = cur.All(mctx, &rules); err != nil {
		return nil, fmt.Errorf("load rules cursor: %w", err)
	}

	return rules, nil
}

func (rs *RulesStorage) SaveRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	crit := bson.D{{Key: "id", Value: rule.Id}}
	update := bson.D{{Key: "$set", Value: rule}}
	t := true
	opts := &options.UpdateOptions{Upsert: &t}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := rs.rulesColl.UpdateOne(mctx, crit, update, opts)
	if err != nil {
		return fmt.Errorf("save rule: %w", err)
	}
	return nil
}

func (rs *RulesStorage) ToggleRule(ctx context.Context, userId int64, ruleId int64, enabled bool) error {
	crit := bson.D{{Key: "id", Value: ruleId}, {Key: "userId", Value: userId}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "enabled", Value: enabled}}}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := rs.rulesColl.UpdateOne(mctx, crit, update)
	if err != nil {
		return fmt.Errorf("toggle rule: %w", err)
	}
	return nil
}

func (rs *RulesStorage) DeleteRule(ctx context.Context, userId int64, ruleId int64) error {
	crit := bson.D{{Key: "id", Value: ruleId}, {Key: "userId", Value: userId}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := rs.rulesColl.DeleteOne(mctx, crit)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

func (rs *RulesStorage) IncrementForwardCount(ctx context.Context, ruleId int64) error {
	crit := bson.D{{Key: "id", Value: ruleId}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "forwardCount", Value: 1}}}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := rs.rulesColl.UpdateOne(mctx, crit, update)
	if err != nil {
		return fmt.Errorf("increment forward count: %w", err)
	}
	return nil
}

// SaveHistoryCursor advances the replay position of one source chat. The
// cursor only moves forward so an interrupted replay resumes instead of
// restarting, and each chat keeps its own because message id spaces of
// different chats are unrelated.
func (rs *RulesStorage) SaveHistoryCursor(ctx context.Context, ruleId int64, chatId int64, cursor int64) error {
	crit := bson.D{{Key: "id", Value: ruleId}}
	field := "historyCursor." + strconv.FormatInt(chatId, 10)
	update := bson.D{{Key: "$max", Value: bson.D{{Key: field, Value: cursor}}}}

	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := rs.rulesColl.UpdateOne(mctx, crit, update)
	if err != nil {
		return fmt.Errorf("save history cursor: %w", err)
	}
	return nil
}

func (rs *RulesStorage) HistoryCursor(ctx context.Context, ruleId int64, chatId int64) (int64, error) {
	mctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	crit := bson.D{{Key: "id", Value: ruleId}}
	res := rs.rulesColl.FindOne(mctx, crit)
	if res.Err() == mongo.ErrNoDocuments {
		return 0, nil
	} else if res.Err() != nil {
		return 0, fmt.Errorf("get history cursor: %w", res.Err())
	}
	var rule Rule
	if err := res.Decode(&rule); err != nil {
		return 0, fmt.Errorf("decode rule: %w", err)
	}

	return rule.HistoryCursor[strconv.FormatInt(chatId, 10)], nil
}
