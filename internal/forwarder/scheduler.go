package forwarder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/TeleOle/auto-forward/internal/consts"
	"github.com/TeleOle/auto-forward/internal/db"
	"github.com/getsentry/sentry-go"
	"go.uber.org/ratelimit"
)

// Sender is the outbound capability of one account's live session.
type Sender interface {
	ResolveChat(ctx context.Context, ref string) (int64, error)
	ForwardTo(ctx context.Context, dstChatId int64, srcChatId int64, messageIds []int64) error
	CopyTo(ctx context.Context, dstChatId int64, u *Unit) error
}

// OutcomeSink records every job when it is accepted and again when it
// reaches a terminal state, so no job can vanish without a trace.
type OutcomeSink interface {
	SavePending(ctx context.Context, outcome *db.JobOutcome) error
	SaveOutcome(ctx context.Context, outcome *db.JobOutcome) error
}

// DeliveryJob is one pending outbound call: one rule, one unit, one
// destination. Fan-out across destinations produces independent jobs.
type DeliveryJob struct {
	Id          string
	Rule        *db.Rule
	Unit        *Unit
	Destination string
	ScheduledAt time.Time
	Attempt     int
}

type laneKey struct {
	ruleId      int64
	destination string
}

// Scheduler executes delivery jobs for one account. Jobs for the same
// (rule, destination) pair run in FIFO order on a dedicated lane; lanes run
// concurrently. All outbound calls pass through one gate per account, so a
// rate-limit wait stalls only this account.
type Scheduler struct {
	accountId   int64
	sender      Sender
	sink        OutcomeSink
	maxAttempts int
	baseBackoff time.Duration

	limiter ratelimit.Limiter
	gate    sync.Mutex

	mu     sync.Mutex
	lanes  map[laneKey]chan *DeliveryJob
	closed bool
	wg     sync.WaitGroup

	// OnDelivered and OnAuthInvalid are optional hooks for the owning
	// account: forward counters and revocation.
	OnDelivered   func(ruleId int64)
	OnAuthInvalid func(err error)
}

func NewScheduler(accountId int64, sender Sender, sink OutcomeSink, sendRate int, maxAttempts int) *Scheduler {
	if sendRate <= 0 {
		sendRate = 10
	}
	return &Scheduler{
		accountId:   accountId,
		sender:      sender,
		sink:        sink,
		maxAttempts: maxAttempts,
		baseBackoff: time.Second,
		limiter:     ratelimit.New(sendRate),
		lanes:       make(map[laneKey]chan *DeliveryJob),
	}
}

// Dispatch fans a transformed unit out to the rule's destinations. Each
// destination gets its own job; a failure on one never blocks the others.
func (s *Scheduler) Dispatch(ctx context.Context, rule *db.Rule, u *Unit) {
	scheduledAt := u.ReceivedAt
	if u.Delay > 0 {
		scheduledAt = scheduledAt.Add(u.Delay)
	}
	for _, dest := range rule.Destinations {
		job := &DeliveryJob{
			Id:          fmt.Sprintf("%d-%d-%d-%s", s.accountId, rule.Id, u.MessageIds[0], dest),
			Rule:        rule,
			Unit:        u,
			Destination: dest,
			ScheduledAt: scheduledAt,
		}
		s.enqueue(ctx, job)
	}
}

func (s *Scheduler) enqueue(ctx context.Context, job *DeliveryJob) {
	key := laneKey{ruleId: job.Rule.Id, destination: job.Destination}

	if s.sink != nil {
		if err := s.sink.SavePending(ctx, s.record(job, consts.JobStatePending, "")); err != nil {
			log.Printf("[account %d] failed to record pending job %s: %s", s.accountId, job.Id, err)
		}
	}

	// The send stays under the mutex: Shutdown closes lanes under the same
	// lock, a send into a closed lane would panic.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.finish(ctx, job, consts.JobStateFailed, "scheduler shut down")
		return
	}
	lane, ok := s.lanes[key]
	if !ok {
		lane = make(chan *DeliveryJob, 64)
		s.lanes[key] = lane
		s.wg.Add(1)
		go s.runLane(ctx, lane)
	}
	lane <- job
}

func (s *Scheduler) runLane(ctx context.Context, lane chan *DeliveryJob) {
	defer s.wg.Done()
	for job := range lane {
		if ctx.Err() != nil {
			// Canceled account: every queued job still gets a terminal
			// outcome, never a silent drop.
			s.finish(ctx, job, consts.JobStateFailed, ctx.Err().Error())
			continue
		}
		if wait := time.Until(job.ScheduledAt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				s.finish(ctx, job, consts.JobStateFailed, ctx.Err().Error())
				continue
			}
		}
		s.deliver(ctx, job)
	}
}

func (s *Scheduler) deliver(ctx context.Context, job *DeliveryJob) {
	backoff := s.baseBackoff
	for {
		s.gate.Lock()
		s.limiter.Take()
		err := s.send(ctx, job)
		if err == nil {
			s.gate.Unlock()
			s.finish(ctx, job, consts.JobStateDelivered, "")
			if s.OnDelivered != nil {
				s.OnDelivered(job.Rule.Id)
			}
			return
		}

		de := ClassifyError(err)
		switch de.Kind {
		case KindRateLimit:
			// Hold the gate for the platform-imposed wait: every
			// outbound call of this account has to pause, nobody
			// else's.
			log.Printf("[account %d] rate limited, waiting %s", s.accountId, de.Wait)
			select {
			case <-time.After(de.Wait):
			case <-ctx.Done():
				s.gate.Unlock()
				s.finish(ctx, job, consts.JobStateFailed, ctx.Err().Error())
				return
			}
			s.gate.Unlock()

		case KindTransient:
			s.gate.Unlock()
			job.Attempt++
			if job.Attempt >= s.maxAttempts {
				s.finish(ctx, job, consts.JobStateFailed, de.Err.Error())
				return
			}
			log.Printf("[account %d] transient error, retry %d/%d in %s: %s",
				s.accountId, job.Attempt, s.maxAttempts, backoff, de.Err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				s.finish(ctx, job, consts.JobStateFailed, ctx.Err().Error())
				return
			}
			backoff *= 2

		case KindAuthInvalid:
			s.gate.Unlock()
			if s.OnAuthInvalid != nil {
				s.OnAuthInvalid(de.Err)
			}
			s.finish(ctx, job, consts.JobStateFailed, de.Err.Error())
			return

		default:
			s.gate.Unlock()
			s.finish(ctx, job, consts.JobStateFailed, de.Err.Error())
			return
		}
	}
}

func (s *Scheduler) send(ctx context.Context, job *DeliveryJob) error {
	dstChatId, err := s.sender.ResolveChat(ctx, job.Destination)
	if err != nil {
		return err
	}
	switch job.Rule.Mode {
	case consts.RuleModeCopy:
		return s.sender.CopyTo(ctx, dstChatId, job.Unit)
	case consts.RuleModeForward:
		return s.sender.ForwardTo(ctx, dstChatId, job.Unit.ChatId, job.Unit.MessageIds)
	}
	return configurationError("rule %d: unknown mode %q", job.Rule.Id, job.Rule.Mode)
}

func (s *Scheduler) record(job *DeliveryJob, state string, reason string) *db.JobOutcome {
	o := &db.JobOutcome{
		JobId:       job.Id,
		RuleId:      job.Rule.Id,
		AccountId:   s.accountId,
		Destination: job.Destination,
		MessageId:   job.Unit.MessageIds[0],
		State:       state,
		Reason:      reason,
		Attempts:    job.Attempt + 1,
	}
	if state != consts.JobStatePending {
		o.FinishedAt = time.Now()
	}
	return o
}

func (s *Scheduler) finish(ctx context.Context, job *DeliveryJob, state string, reason string) {
	if state == consts.JobStateFailed {
		log.Printf("[account %d] rule %d -> %s FAILED: %s",
			s.accountId, job.Rule.Id, job.Destination, reason)
		sentry.CaptureException(fmt.Errorf("delivery failed: account %d rule %d -> %s: %s",
			s.accountId, job.Rule.Id, job.Destination, reason))
	}
	if s.sink == nil {
		return
	}
	// The outcome must land even when the account context is already
	// canceled, otherwise shutdown would erase its own trail.
	if err := s.sink.SaveOutcome(context.WithoutCancel(ctx), s.record(job, state, reason)); err != nil {
		log.Printf("[account %d] failed to save job outcome: %s", s.accountId, err)
	}
}

// Shutdown drains the lanes and waits for in-flight jobs.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, lane := range s.lanes {
		close(lane)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
