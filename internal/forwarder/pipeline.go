package forwarder

import (
	"context"
	"log"
	"time"

	"github.com/TeleOle/auto-forward/internal/db"
)

// Pipeline is one account's processing chain: inbound units go through the
// album aggregator, then rule matching, then per-rule filtering and
// modification, and finally into the delivery scheduler. Units of one
// account are consumed in arrival order; album buffering is the only
// suspension before a unit moves on.
type Pipeline struct {
	accountId int64
	in        chan *Unit
	albums    *AlbumAggregator
	matcher   *Matcher
	sched     *Scheduler
}

func NewPipeline(accountId int64, matcher *Matcher, sched *Scheduler, debounce time.Duration) *Pipeline {
	p := &Pipeline{
		accountId: accountId,
		in:        make(chan *Unit, 256),
		matcher:   matcher,
		sched:     sched,
	}
	p.albums = NewAlbumAggregator(debounce, p.dispatch)
	return p
}

// Enqueue hands an inbound unit to the pipeline. Called from the session's
// update listener.
func (p *Pipeline) Enqueue(u *Unit) {
	p.in <- u
}

// Run consumes inbound units until the context is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.albums.Shutdown()
			return
		case u := <-p.in:
			p.albums.Add(ctx, u)
		}
	}
}

// dispatch runs one released unit against every matching rule. Rules are
// independent: a failure in one never touches its siblings.
func (p *Pipeline) dispatch(ctx context.Context, u *Unit) {
	rules := p.matcher.Match(ctx, u)
	for _, rule := range rules {
		p.ProcessRule(ctx, rule, u)
	}
}

// ProcessRule is the per-rule half of the pipeline: classify, filter,
// modify, schedule. History replay feeds units through here as well.
func (p *Pipeline) ProcessRule(ctx context.Context, rule *db.Rule, u *Unit) {
	flags := Classify(u)
	if ShouldSkip(flags, FilterMask(rule.Filters)) {
		return
	}
	out, keep := Apply(rule, u)
	if !keep {
		log.Printf("[account %d] rule %d: unit %d discarded by word filter", p.accountId, rule.Id, u.MessageIds[0])
		return
	}
	p.sched.Dispatch(ctx, rule, out)
}

// Rules exposes the matcher's current rule set, used at startup to find
// rules with a pending history backfill.
func (p *Pipeline) Rules(ctx context.Context) []*db.Rule {
	return p.matcher.load(ctx)
}

// Invalidate drops the cached rule set after configuration changes.
func (p *Pipeline) Invalidate() {
	p.matcher.Invalidate()
}
