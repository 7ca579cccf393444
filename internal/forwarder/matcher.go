package forwarder

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TeleOle/auto-forward/internal/db"
)

// RulesProvider is the read side of the configuration store.
type RulesProvider interface {
	RulesByAccount(ctx context.Context, accountId int64) ([]*db.Rule, error)
}

// Matcher resolves which enabled rules apply to an inbound unit. Rules are
// read through a short-lived cache so that edits become visible without a
// restart while the hot path stays off the database.
type Matcher struct {
	accountId int64
	provider  RulesProvider
	ttl       time.Duration

	mu       sync.RWMutex
	cached   []*db.Rule
	loadedAt time.Time
}

func NewMatcher(accountId int64, provider RulesProvider, ttl time.Duration) *Matcher {
	return &Matcher{accountId: accountId, provider: provider, ttl: ttl}
}

// Match returns the enabled rules whose source set contains the unit's chat,
// in rule id order. Malformed rules are skipped and reported, never fatal.
func (m *Matcher) Match(ctx context.Context, u *Unit) []*db.Rule {
	rules := m.load(ctx)
	matched := make([]*db.Rule, 0)
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			log.Printf("[account %d] skipping malformed rule: %s", m.accountId, err)
			continue
		}
		for _, src := range rule.Sources {
			if sourceMatches(u.ChatId, u.ChatUsername, src) {
				matched = append(matched, rule)
				break
			}
		}
	}
	return matched
}

// Invalidate drops the cache so the next match sees fresh configuration.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.loadedAt = time.Time{}
	m.mu.Unlock()
}

func (m *Matcher) load(ctx context.Context) []*db.Rule {
	m.mu.RLock()
	if time.Since(m.loadedAt) < m.ttl {
		cached := m.cached
		m.mu.RUnlock()
		return cached
	}
	m.mu.RUnlock()

	rules, err := m.provider.RulesByAccount(ctx, m.accountId)
	if err != nil {
		log.Printf("[account %d] failed to load rules: %s", m.accountId, err)
		m.mu.RLock()
		cached := m.cached
		m.mu.RUnlock()
		return cached
	}

	m.mu.Lock()
	m.cached = rules
	m.loadedAt = time.Now()
	m.mu.Unlock()

	return rules
}

// sourceMatches compares a chat against one source ref: @username or numeric
// id, tolerating the supergroup -100 prefix on either side.
func sourceMatches(chatId int64, chatUsername string, source string) bool {
	if strings.HasPrefix(source, "@") {
		return chatUsername != "" && strings.EqualFold(chatUsername, source[1:])
	}

	src, err := strconv.ParseInt(source, 10, 64)
	if err != nil {
		return false
	}
	if chatId == src {
		return true
	}
	return normalizeChatId(chatId) == normalizeChatId(src)
}

// normalizeChatId strips the -100 supergroup marker and the sign, leaving
// the bare channel id.
func normalizeChatId(id int64) int64 {
	s := strconv.FormatInt(id, 10)
	if strings.HasPrefix(s, "-100") {
		v, _ := strconv.ParseInt(s[4:], 10, 64)
		return v
	}
	if id < 0 {
		return -id
	}
	return id
}
