package forwarder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	rules []*db.Rule
	err   error
	calls int
}

func (p *fakeProvider) RulesByAccount(ctx context.Context, accountId int64) ([]*db.Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.rules, p.err
}

func validRule(id int64, sources ...string) *db.Rule {
	return &db.Rule{
		Id:           id,
		Sources:      sources,
		Destinations: []string{"@somewhere"},
		Mode:         consts.RuleModeForward,
		Enabled:      true,
	}
}

func TestMatcherNumericAndPrefixedIds(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{
		validRule(1, "-1001234567890"),
		validRule(2, "1234567890"),
		validRule(3, "-1009999999999"),
	}}
	m := NewMatcher(42, provider, time.Minute)

	u := &Unit{ChatId: -1001234567890}
	matched := m.Match(context.Background(), u)
	require.Len(t, matched, 2)
	assert.Equal(t, int64(1), matched[0].Id)
	assert.Equal(t, int64(2), matched[1].Id)
}

func TestMatcherUsername(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{
		validRule(1, "@NewsChannel"),
		validRule(2, "@other"),
	}}
	m := NewMatcher(42, provider, time.Minute)

	matched := m.Match(context.Background(), &Unit{ChatId: -100555, ChatUsername: "newschannel"})
	require.Len(t, matched, 1)
	assert.Equal(t, int64(1), matched[0].Id)

	// No username resolved on the unit: username sources cannot match.
	matched = m.Match(context.Background(), &Unit{ChatId: -100555})
	assert.Empty(t, matched)
}

func TestMatcherMultipleSources(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{
		validRule(1, "@alpha", "-100777"),
	}}
	m := NewMatcher(42, provider, time.Minute)

	assert.Len(t, m.Match(context.Background(), &Unit{ChatId: -100777}), 1)
	assert.Len(t, m.Match(context.Background(), &Unit{ChatId: 1, ChatUsername: "alpha"}), 1)
	assert.Empty(t, m.Match(context.Background(), &Unit{ChatId: 2, ChatUsername: "beta"}))
}

func TestMatcherSkipsMalformedRules(t *testing.T) {
	bad := validRule(1, "-100777")
	bad.Mode = "broadcast"
	provider := &fakeProvider{rules: []*db.Rule{bad, validRule(2, "-100777")}}
	m := NewMatcher(42, provider, time.Minute)

	matched := m.Match(context.Background(), &Unit{ChatId: -100777})
	require.Len(t, matched, 1)
	assert.Equal(t, int64(2), matched[0].Id)
}

func TestMatcherCachesWithinTTL(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{validRule(1, "-100777")}}
	m := NewMatcher(42, provider, time.Minute)
	ctx := context.Background()

	m.Match(ctx, &Unit{ChatId: -100777})
	m.Match(ctx, &Unit{ChatId: -100777})
	m.Match(ctx, &Unit{ChatId: -100777})

	provider.mu.Lock()
	calls := provider.calls
	provider.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestMatcherInvalidateForcesReload(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{validRule(1, "-100777")}}
	m := NewMatcher(42, provider, time.Minute)
	ctx := context.Background()

	require.Len(t, m.Match(ctx, &Unit{ChatId: -100777}), 1)

	provider.mu.Lock()
	provider.rules = nil
	provider.mu.Unlock()
	m.Invalidate()

	assert.Empty(t, m.Match(ctx, &Unit{ChatId: -100777}))
}

func TestMatcherKeepsStaleCacheOnLoadError(t *testing.T) {
	provider := &fakeProvider{rules: []*db.Rule{validRule(1, "-100777")}}
	m := NewMatcher(42, provider, time.Minute)
	ctx := context.Background()

	require.Len(t, m.Match(ctx, &Unit{ChatId: -100777}), 1)

	provider.mu.Lock()
	provider.err = errors.New("mongo down")
	provider.mu.Unlock()
	m.Invalidate()

	// Stale rules are better than no rules.
	assert.Len(t, m.Match(ctx, &Unit{ChatId: -100777}), 1)
}
