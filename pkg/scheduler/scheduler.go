package scheduler

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/discoverer/pkg/config"
	"github.com/cuemby/discoverer/pkg/events"
	"github.com/cuemby/discoverer/pkg/log"
	"github.com/cuemby/discoverer/pkg/persistence"
	"github.com/cuemby/discoverer/pkg/queue"
	"github.com/cuemby/discoverer/pkg/resultstore"
	"github.com/cuemby/discoverer/pkg/types"
)

// defaultPollInterval bounds how long one tick's sleep can run before the
// scheduler wakes to recheck rule due-times even if nothing else changed.
const defaultPollInterval = 10 * time.Second

// defaultDelay is used to reschedule a rule whose delay failed to resolve,
// so a persistently broken macro doesn't spin the tick loop.
const defaultDelay = 30 * time.Second

// IPCServer is the narrow seam the scheduler serves requests through while
// it would otherwise just be sleeping (spec.md §4.5 step 7: "while
// sleeping, serve IPC on the Discoverer endpoint"). Serve blocks for up to
// timeout, returning true if a SHUTDOWN request was received.
type IPCServer interface {
	Serve(timeout time.Duration) (shutdown bool)
}

// Scheduler drives the discoverer's single tick loop (spec.md §4.5).
type Scheduler struct {
	queue  *queue.Queue
	store  *resultstore.Store
	rules  persistence.RuleSource
	collab persistence.Collaborator
	timeouts config.CheckTimeoutGetter
	macros   config.UserMacroResolver
	events   *events.Broker
	ipc      IPCServer

	pollInterval time.Duration
	defaultDelay time.Duration

	logger zerolog.Logger
	mu     sync.Mutex

	// jobRevisions tracks the revision each currently-active job was built
	// from, so syncRevisions can detect a rule definition that changed
	// underneath an in-flight job (spec.md §4.5 step 1).
	jobRevisions map[string]int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// Config bundles the collaborators a Scheduler needs (spec.md §9
// "encapsulate into a Service value constructed at startup").
type Config struct {
	Queue  *queue.Queue
	Store  *resultstore.Store
	Rules  persistence.RuleSource
	Collab persistence.Collaborator

	Timeouts config.CheckTimeoutGetter
	Macros   config.UserMacroResolver

	// Events, if set, receives rule/host lifecycle notifications as the
	// scheduler flushes results (spec.md §2 data-flow).
	Events *events.Broker

	// IPC, if set, is served during the scheduler's sleep window instead
	// of a plain timer (spec.md §4.5 step 7). Nil is fine for tests and
	// for running the engine without the IPC listener attached.
	IPC IPCServer

	PollInterval time.Duration
	DefaultDelay time.Duration
}

// New constructs a Scheduler. It does not start the loop; call Start.
func New(cfg Config) *Scheduler {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	delay := cfg.DefaultDelay
	if delay <= 0 {
		delay = defaultDelay
	}
	return &Scheduler{
		queue:        cfg.Queue,
		store:        cfg.Store,
		rules:        cfg.Rules,
		collab:       cfg.Collab,
		timeouts:     cfg.Timeouts,
		macros:       cfg.Macros,
		events:       cfg.Events,
		ipc:          cfg.IPC,
		pollInterval: poll,
		defaultDelay: delay,
		logger:       log.WithComponent("scheduler"),
		jobRevisions: make(map[string]int64),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the tick loop in its own goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the loop to exit and waits for it to return.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		sleepFor := s.Tick(time.Now())

		if s.ipc != nil {
			if shutdown := s.ipc.Serve(sleepFor); shutdown {
				return
			}
			continue
		}

		select {
		case <-time.After(sleepFor):
		case <-s.stopCh:
			return
		}
	}
}

// Tick runs one full scheduling cycle and returns how long the caller may
// sleep before the next one is worth running (spec.md §4.5 steps 1-6).
func (s *Scheduler) Tick(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := s.syncRevisions(now)
	errs := s.queue.DrainErrors()
	errByRule := make(map[string]string, len(errs))
	for _, e := range errs {
		errByRule[e.DRuleID] = e.Text
	}

	moreResults := s.flushResults(now, cancelled, errByRule)
	s.expandDueRules(now)

	return s.sleepDuration(now, moreResults)
}

// syncRevisions implements spec.md §4.5 step 1: fetch the authoritative
// (druleid, revision) set and cancel any tracked job whose rule no longer
// exists or whose revision moved on.
func (s *Scheduler) syncRevisions(now time.Time) []string {
	revisions, err := s.rules.Revisions()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch rule revisions")
		return nil
	}

	current := make(map[string]int64, len(revisions))
	for _, rv := range revisions {
		current[rv.DRuleID] = rv.Revision
	}

	var cancelled []string
	for druleid, rev := range s.jobRevisions {
		newRev, ok := current[druleid]
		if ok && newRev == rev {
			continue
		}
		s.queue.CancelJob(druleid)
		s.store.DropRule(druleid)
		delete(s.jobRevisions, druleid)
		cancelled = append(cancelled, druleid)
		s.logger.Debug().Str("druleid", druleid).Msg("cancelled job on revision skew")
	}
	_ = now
	return cancelled
}

// flushResults implements spec.md §4.5 step 3. It returns whether more
// completed results remained in the store after this flush, which bounds
// the tick's sleep to zero.
func (s *Scheduler) flushResults(now time.Time, cancelled []string, errByRule map[string]string) bool {
	flush, _ := s.store.TakeCompleted(cancelled, 1000)

	for _, r := range flush {
		if r.IP == "" {
			s.flushRuleStatus(r, errByRule[r.DRuleID], now)
			continue
		}
		s.flushHost(r, now)
	}

	return s.store.Len() > 0
}

func (s *Scheduler) flushRuleStatus(r types.Result, errText string, now time.Time) {
	h, err := s.collab.Open()
	if err != nil {
		s.logger.Error().Err(err).Str("druleid", r.DRuleID).Msg("failed to open persistence handle")
		return
	}
	defer s.collab.Close(h)

	if err := s.collab.UpdateDRule(h, r.DRuleID, errText, now); err != nil {
		s.logger.Error().Err(err).Str("druleid", r.DRuleID).Msg("failed to update rule status")
		return
	}

	if s.events == nil {
		return
	}
	typ := events.EventRuleRevisionSkew
	msg := "rule completed with no hosts"
	if errText != "" {
		typ = events.EventRuleError
		msg = errText
	}
	s.events.Publish(&events.Event{
		Type:      typ,
		Timestamp: now,
		Message:   msg,
		Metadata:  map[string]string{"druleid": r.DRuleID},
	})
}

func (s *Scheduler) flushHost(r types.Result, now time.Time) {
	h, err := s.collab.Open()
	if err != nil {
		s.logger.Error().Err(err).Str("druleid", r.DRuleID).Str("ip", r.IP).Msg("failed to open persistence handle")
		return
	}
	defer s.collab.Close(h)

	dhostID, err := s.collab.FindHost(h, r.DRuleID, r.IP)
	if err != nil {
		s.logger.Error().Err(err).Str("druleid", r.DRuleID).Str("ip", r.IP).Msg("failed to resolve host")
		return
	}

	status := types.ServiceStatusDown
	if len(r.Services) > 0 {
		status = types.ServiceStatusUp
	}

	if err := s.collab.UpdateHost(h, r.DRuleID, dhostID, r.IP, r.DNSName, status, now); err != nil {
		s.logger.Error().Err(err).Str("dhost_id", dhostID).Msg("failed to update host")
		return
	}

	for _, svc := range r.Services {
		if err := s.collab.UpdateService(h, dhostID, svc, now); err != nil {
			s.logger.Error().Err(err).Str("dhost_id", dhostID).Int("port", svc.Port).Msg("failed to update service")
		}
	}

	if s.events != nil {
		s.events.Publish(&events.Event{
			Type:      events.EventHostDiscovered,
			Timestamp: now,
			Message:   fmt.Sprintf("%s discovered for rule %s", r.IP, r.DRuleID),
			Metadata:  map[string]string{"druleid": r.DRuleID, "ip": r.IP, "dhost_id": dhostID},
		})
	}
}

// expandDueRules implements spec.md §4.5 steps 4-5: every rule whose
// nextcheck has elapsed and that has no job already active is expanded
// and pushed, then rescheduled.
func (s *Scheduler) expandDueRules(now time.Time) {
	due, err := s.rules.DueRules(now)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch due rules")
		return
	}

	for _, rule := range due {
		if _, active := s.queue.Job(rule.DRuleID); active {
			continue
		}
		s.expandOne(rule, now)
	}
}

func (s *Scheduler) expandOne(rule types.Rule, now time.Time) {
	delay, err := s.resolveDelay(rule)
	if err != nil {
		s.queue.AppendError(rule.DRuleID, fmt.Sprintf("invalid delay: %v", err), now)
		s.store.RegisterEmptyJob(rule.DRuleID, now)
		s.reschedule(rule.DRuleID, now, s.defaultDelay)
		return
	}

	for i := range rule.Checks {
		if rule.Checks[i].Timeout > 0 {
			continue
		}
		d, err := s.timeouts.CheckTimeout(rule.Checks[i].Type)
		if err != nil {
			s.queue.AppendError(rule.DRuleID, fmt.Sprintf("timeout lookup failed for %s: %v", rule.Checks[i].Type, err), now)
			s.store.RegisterEmptyJob(rule.DRuleID, now)
			s.reschedule(rule.DRuleID, now, delay)
			return
		}
		rule.Checks[i].Timeout = d
	}

	tasks, totalCount, perIPCount := expandRule(rule)
	if totalCount == 0 {
		s.reschedule(rule.DRuleID, now, delay)
		return
	}

	reserved := s.queue.ReserveCapacity(totalCount)
	if reserved < totalCount {
		s.queue.ReleaseChecks(reserved)
		s.queue.AppendError(rule.DRuleID, "queue is full, skipping", now)
		s.store.RegisterEmptyJob(rule.DRuleID, now)
		s.reschedule(rule.DRuleID, now, delay)
		return
	}

	rule.IPRange.Each(func(ip net.IP) bool {
		s.store.Reserve(rule.DRuleID, ip.String(), perIPCount)
		return true
	})

	job := &types.Job{
		JobID:         uuid.NewString(),
		DRuleID:       rule.DRuleID,
		DRuleRevision: rule.Revision,
		Tasks:         tasks,
		WorkersMax:    0,
		Status:        types.JobStatusQueued,
		ChecksCommon:  rule.Checks,
		IPRanges:      rule.IPRange,
	}
	s.queue.Push(job)
	s.jobRevisions[rule.DRuleID] = rule.Revision
	s.logger.Debug().Str("druleid", rule.DRuleID).Str("job_id", job.JobID).
		Int("tasks", len(tasks)).Int("checks", totalCount).Msg("job enqueued")

	s.reschedule(rule.DRuleID, now, delay)
}

func (s *Scheduler) resolveDelay(rule types.Rule) (time.Duration, error) {
	raw, err := s.macros.ResolveMacro(rule.DRuleID, rule.Delay)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse delay %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("delay %q must be positive", raw)
	}
	return d, nil
}

func (s *Scheduler) reschedule(druleid string, now time.Time, delay time.Duration) {
	if err := s.rules.Reschedule(druleid, now.Add(delay)); err != nil {
		s.logger.Warn().Err(err).Str("druleid", druleid).Msg("failed to reschedule rule")
	}
}

// sleepDuration implements spec.md §4.5 step 6: zero if results remain,
// else the minimum of the soonest nextcheck and the IPC poll interval.
func (s *Scheduler) sleepDuration(now time.Time, moreResults bool) time.Duration {
	if moreResults {
		return 0
	}

	wait := s.pollInterval
	if next, ok := s.rules.NextWakeup(now); ok {
		if until := next.Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}
