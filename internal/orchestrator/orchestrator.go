// Package orchestrator drives each deduplicated story through the
// enrichment pipeline: classify, score, verify against a source quorum,
// retrieve historical context, synthesize, and gate. Each story is
// processed by its own goroutine so per-story work is serialized, while
// a shared semaphore bounds concurrent provider calls across stories.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/finsentry/finsentry/internal/dedup"
	"github.com/finsentry/finsentry/internal/gate"
	"github.com/finsentry/finsentry/internal/provider"
	"github.com/finsentry/finsentry/internal/quorum"
	"github.com/finsentry/finsentry/internal/story"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator closed")

var errCanceled = errors.New("story canceled")

// EventSink receives the terminal event for each story. *database.DB
// satisfies it.
type EventSink interface {
	RecordEvent(ev story.Event) error
}

// Options configures the orchestrator. Zero values fall back to the
// defaults noted per field.
type Options struct {
	Workers             int           // concurrent provider calls, default 4
	RetryAttempts       int           // attempts per provider call, default 3
	RetryBase           time.Duration // first backoff delay, doubled per retry, default 500ms
	RequiredSources     int           // distinct sources for verification, default 2
	VerificationTimeout time.Duration // quorum deadline, default 30m
	RetrievalK          int           // context hits per story, default 3
	DedupWindow         time.Duration // fingerprint recency window, default 72h
	SweepInterval       time.Duration // verification deadline sweep, default 5s
	Rule                gate.Rule     // zero value replaced by gate.DefaultRule
	Logger              *log.Logger   // default log.Default()
}

func (o *Options) fill() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetrievalK <= 0 {
		o.RetrievalK = 3
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	if (o.Rule == gate.Rule{}) {
		o.Rule = gate.DefaultRule()
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
}

// tracked is the orchestrator's bookkeeping around one story. The item
// is mutated only under the orchestrator lock; the processing goroutine
// owns the flow, Submit and the sweeper only add sources and signal.
type tracked struct {
	item   *story.Item
	resume chan struct{} // buffered; signaled on new source or deadline expiry

	ctx    context.Context // canceled by Cancel
	cancel context.CancelFunc

	done     bool
	decision story.Decision
}

// Orchestrator owns story tracking from submission to terminal event.
type Orchestrator struct {
	opts      Options
	providers provider.Set
	sink      EventSink

	dedup  *dedup.Deduplicator
	quorum *quorum.Tracker
	sem    chan struct{}

	mu      sync.Mutex
	items   map[story.Fingerprint]*tracked
	subs    map[int]chan story.Event
	nextSub int
	closed  bool

	stop chan struct{}
	wg   sync.WaitGroup
	now  func() time.Time
}

// New creates an orchestrator and starts its deadline sweeper. The
// providers' Classifier, Sentiment and Impact must be non-nil;
// Retriever and Synthesizer may be nil and their stages degrade.
func New(opts Options, providers provider.Set, sink EventSink) *Orchestrator {
	opts.fill()
	o := &Orchestrator{
		opts:      opts,
		providers: providers,
		sink:      sink,
		dedup:     dedup.New(opts.DedupWindow),
		quorum:    quorum.New(opts.RequiredSources, opts.VerificationTimeout),
		sem:       make(chan struct{}, opts.Workers),
		items:     make(map[story.Fingerprint]*tracked),
		subs:      make(map[int]chan story.Event),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
	o.wg.Add(1)
	go o.sweep()
	return o
}

// Submit routes a raw item: new stories start a processing goroutine,
// repeat sightings add their source toward the verification quorum.
// Duplicates of completed stories are absorbed without re-emitting.
func (o *Orchestrator) Submit(raw story.RawItem) (dedup.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return dedup.Result{}, ErrClosed
	}

	now := o.now()
	res := o.dedup.Submit(raw)

	if res.Outcome == dedup.OutcomeDuplicate {
		t, ok := o.items[res.Fingerprint]
		if !ok || t.done {
			// Completed or already evicted; nothing to update.
			return res, nil
		}
		t.item.AddSource(raw.SourceID, now)
		o.quorum.Observe(res.Fingerprint, raw.SourceID, now)
		signal(t.resume)
		return res, nil
	}

	o.evictDoneLocked(now)

	it := story.NewItem(res.Fingerprint, raw, now)
	ctx, cancel := context.WithCancel(context.Background())
	t := &tracked{
		item:   it,
		resume: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	o.items[res.Fingerprint] = t
	o.quorum.Observe(res.Fingerprint, raw.SourceID, now)

	o.wg.Add(1)
	go o.process(t)
	return res, nil
}

// Cancel aborts a story that has not reached a terminal state. The
// processing goroutine observes the cancellation at its next blocking
// point and drops the story with cause "canceled".
func (o *Orchestrator) Cancel(fp story.Fingerprint) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.items[fp]
	if !ok || t.done {
		return false
	}
	t.cancel()
	return true
}

// Close stops intake and the sweeper, resolves stories parked in
// verification with whatever corroboration they have, and waits for all
// in-flight processing to emit its terminal event.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.stop)
	o.mu.Unlock()
	o.wg.Wait()
}

// Subscribe registers a listener for terminal events. Slow listeners
// miss events rather than stalling the pipeline. The returned func
// unregisters the listener.
func (o *Orchestrator) Subscribe() (<-chan story.Event, func()) {
	ch := make(chan story.Event, 16)
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Stats is a point-in-time view of the orchestrator's tracking state.
type Stats struct {
	Tracked             int
	InFlight            int
	PendingVerification int
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Stats{Tracked: len(o.items), PendingVerification: o.quorum.Pending()}
	for _, t := range o.items {
		if !t.done {
			s.InFlight++
		}
	}
	return s
}

// Lookup returns a snapshot of a tracked story, terminal or in flight.
func (o *Orchestrator) Lookup(fp story.Fingerprint) (story.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.items[fp]
	if !ok {
		return story.Event{}, false
	}
	return t.item.Snapshot(t.decision, o.now()), true
}

func (o *Orchestrator) process(t *tracked) {
	defer o.wg.Done()

	if err := o.classify(t); err != nil {
		o.drop(t, err)
		return
	}
	if err := o.score(t); err != nil {
		o.drop(t, err)
		return
	}

	verified, err := o.verify(t)
	if err != nil {
		o.drop(t, err)
		return
	}
	if verified {
		o.retrieve(t)
		o.synthesize(t)
	}
	o.finalize(t)
}

func (o *Orchestrator) classify(t *tracked) error {
	if err := o.precondition(opClassify, t); err != nil {
		return err
	}
	if o.providers.Classifier == nil {
		return provider.Permanent(opClassify, errors.New("no classifier configured"))
	}

	text := t.item.EnrichmentText()
	var c story.Classification
	err := o.withRetry(t, opClassify, func(ctx context.Context) error {
		var err error
		c, err = o.providers.Classifier.Classify(ctx, text)
		return err
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	t.item.Classification = &c
	t.item.State = story.StageClassified
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) score(t *tracked) error {
	if err := o.precondition(opScore, t); err != nil {
		return err
	}
	if o.providers.Sentiment == nil || o.providers.Impact == nil {
		return provider.Permanent(opScore, errors.New("no sentiment/impact provider configured"))
	}

	text := t.item.EnrichmentText()
	var s story.Sentiment
	err := o.withRetry(t, opScore, func(ctx context.Context) error {
		var err error
		s, err = o.providers.Sentiment.Score(ctx, text)
		return err
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	c := *t.item.Classification
	o.mu.Unlock()

	var impact string
	err = o.withRetry(t, opRate, func(ctx context.Context) error {
		var err error
		impact, err = o.providers.Impact.Rate(ctx, text, c)
		return err
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	t.item.Sentiment = &s
	t.item.Impact = impact
	t.item.State = story.StageScored
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()
	return nil
}

// verify parks the story until its source quorum is met or the deadline
// passes. Wakeups come from Submit (a new source arrived), the sweeper
// (deadline expired), cancellation, or shutdown. Returns whether the
// story was verified.
func (o *Orchestrator) verify(t *tracked) (bool, error) {
	if err := o.precondition(opVerify, t); err != nil {
		return false, err
	}

	fp := t.item.Fingerprint
	o.mu.Lock()
	t.item.State = story.StagePendingVerification
	if dl, ok := o.quorum.Deadline(fp); ok {
		t.item.TTLDeadline = dl
	}
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()

	stopping := false
	for {
		if o.quorum.Confirmed(fp) {
			o.quorum.Resolve(fp)
			o.setState(t, story.StageVerified)
			return true, nil
		}
		dl, ok := o.quorum.Deadline(fp)
		expired := ok && o.now().After(dl)
		if expired || stopping {
			o.quorum.Resolve(fp)
			o.setState(t, story.StageUnconfirmed)
			return false, nil
		}

		select {
		case <-t.resume:
		case <-t.ctx.Done():
			o.quorum.Resolve(fp)
			return false, provider.Permanent(opVerify, errCanceled)
		case <-o.stop:
			// Shutdown: no further corroboration can arrive, so
			// resolve with what we have after one more check.
			stopping = true
		}
	}
}

// retrieve attaches historical context to a verified story. Retrieval
// failures degrade to an empty context rather than dropping a story
// that already cleared verification.
func (o *Orchestrator) retrieve(t *tracked) {
	if o.providers.Retriever == nil {
		return
	}
	if err := o.precondition(opRetrieve, t); err != nil {
		o.opts.Logger.Printf("orchestrator: %v", err)
		return
	}

	text := t.item.EnrichmentText()
	var hits []story.ContextHit
	err := o.withRetry(t, opRetrieve, func(ctx context.Context) error {
		var err error
		hits, err = o.providers.Retriever.Query(ctx, text, o.opts.RetrievalK)
		return err
	})
	if err != nil {
		o.opts.Logger.Printf("orchestrator: %s failed for %s, continuing without context: %v",
			opRetrieve, t.item.Fingerprint, err)
		return
	}

	o.mu.Lock()
	t.item.Context = hits
	t.item.State = story.StageContextualized
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()
}

// synthesize produces the story summary, falling back to a templated
// summary when the provider is missing or fails so the story still
// reaches the gate.
func (o *Orchestrator) synthesize(t *tracked) {
	if err := o.precondition(opSynthesize, t); err != nil {
		o.opts.Logger.Printf("orchestrator: %v", err)
		return
	}

	// The synthesizer runs outside the lock; hand it a copy so a
	// concurrent duplicate arrival cannot mutate what it reads.
	o.mu.Lock()
	item := t.item.Clone()
	o.mu.Unlock()
	hits := item.Context

	summary := ""
	if o.providers.Synthesizer != nil {
		err := o.withRetry(t, opSynthesize, func(ctx context.Context) error {
			var err error
			summary, err = o.providers.Synthesizer.Summarize(ctx, item, hits)
			return err
		})
		if err != nil {
			o.opts.Logger.Printf("orchestrator: %s failed for %s, using fallback: %v",
				opSynthesize, item.Fingerprint, err)
			summary = ""
		}
	}
	if summary == "" {
		summary = provider.FallbackSummary(item)
	}

	o.mu.Lock()
	t.item.Summary = summary
	t.item.State = story.StageSynthesized
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()
}

// finalize gates the story, marks it done, and emits its terminal
// event. The story stays tracked until the dedup window evicts it so
// late duplicates cannot re-alert.
func (o *Orchestrator) finalize(t *tracked) {
	o.mu.Lock()
	decision := o.opts.Rule.Decide(t.item)
	if decision == story.DecisionAlert {
		t.item.State = story.StageAlerted
	}
	t.done = true
	t.decision = decision
	t.item.LastUpdatedAt = o.now()
	ev := t.item.Snapshot(decision, o.now())
	o.mu.Unlock()

	o.opts.Logger.Printf("orchestrator: %s %s (%s) sources=%d",
		decision, t.item.Fingerprint, ev.Title, len(ev.Sources))
	o.emit(ev)
}

// drop records a terminal failure: permanent provider errors, exhausted
// retries, precondition violations, or cancellation. The decision comes
// from the gate, which suppresses dropped stories; the quorum entry is
// resolved here because a story can drop before it ever reaches verify.
func (o *Orchestrator) drop(t *tracked, cause error) {
	o.quorum.Resolve(t.item.Fingerprint)

	o.mu.Lock()
	t.item.State = story.StageDropped
	t.item.DropCause = cause.Error()
	decision := o.opts.Rule.Decide(t.item)
	t.done = true
	t.decision = decision
	t.item.LastUpdatedAt = o.now()
	ev := t.item.Snapshot(decision, o.now())
	o.mu.Unlock()

	o.opts.Logger.Printf("orchestrator: dropped %s: %v", t.item.Fingerprint, cause)
	o.emit(ev)
}

// withRetry runs a provider call under the worker semaphore, retrying
// transient failures with doubling backoff up to the attempt budget.
// Permanent failures and cancellation end the retry loop immediately.
func (o *Orchestrator) withRetry(t *tracked, op string, call func(ctx context.Context) error) error {
	delay := o.opts.RetryBase
	for attempt := 1; ; attempt++ {
		select {
		case o.sem <- struct{}{}:
		case <-t.ctx.Done():
			return provider.Permanent(op, errCanceled)
		}
		err := call(t.ctx)
		<-o.sem

		if err == nil {
			return nil
		}
		if provider.IsPermanent(err) {
			return err
		}
		if t.ctx.Err() != nil {
			return provider.Permanent(op, errCanceled)
		}
		if attempt >= o.opts.RetryAttempts {
			return fmt.Errorf("%s: %d attempts exhausted: %w", op, attempt, err)
		}

		o.opts.Logger.Printf("orchestrator: %s attempt %d/%d for %s failed, retrying in %s: %v",
			op, attempt, o.opts.RetryAttempts, t.item.Fingerprint, delay, err)
		select {
		case <-time.After(delay):
		case <-t.ctx.Done():
			return provider.Permanent(op, errCanceled)
		}
		delay *= 2
	}
}

// sweep wakes stories whose verification deadline has passed. A ticker
// drives the scan so parked stories never busy-poll their deadline.
func (o *Orchestrator) sweep() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case now := <-ticker.C:
			for _, fp := range o.quorum.Expired(now) {
				o.mu.Lock()
				if t, ok := o.items[fp]; ok && !t.done {
					signal(t.resume)
				}
				o.mu.Unlock()
			}
		}
	}
}

func (o *Orchestrator) precondition(op string, t *tracked) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return checkPrecondition(op, t.item)
}

func (o *Orchestrator) setState(t *tracked, s story.Stage) {
	o.mu.Lock()
	t.item.State = s
	t.item.LastUpdatedAt = o.now()
	o.mu.Unlock()
}

func (o *Orchestrator) emit(ev story.Event) {
	if o.sink != nil {
		if err := o.sink.RecordEvent(ev); err != nil {
			o.opts.Logger.Printf("orchestrator: recording event for %s: %v", ev.Fingerprint, err)
		}
	}

	o.mu.Lock()
	chans := make([]chan story.Event, 0, len(o.subs))
	for _, ch := range o.subs {
		chans = append(chans, ch)
	}
	o.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

// evictDoneLocked drops completed stories whose dedup window has
// lapsed; the deduplicator evicts the matching fingerprints itself.
func (o *Orchestrator) evictDoneLocked(now time.Time) {
	window := o.opts.DedupWindow
	if window <= 0 {
		window = 72 * time.Hour
	}
	cutoff := now.Add(-window)
	for fp, t := range o.items {
		if t.done && t.item.CreatedAt.Before(cutoff) {
			delete(o.items, fp)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
