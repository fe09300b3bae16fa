package monitor

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"exameye/shield/internal/api"
	"exameye/shield/internal/models"
	"exameye/shield/internal/push"
)

// DefaultRefreshInterval drives the periodic full snapshot refresh.
const DefaultRefreshInterval = 5 * time.Second

// Options tunes a Reconciler. Zero values pick the defaults.
type Options struct {
	RefreshInterval time.Duration
	RecentLimit     int
	TimelineLimit   int
	FeedCapacity    int

	// Cue is the audible signal fired on every alert. It runs on its own
	// goroutine and its failure never propagates.
	Cue func(models.LiveAlert)

	// OnError surfaces non-fatal refresh and drill-down failures to the
	// operator.
	OnError func(error)
}

// Reconciler owns the console's dashboard state. It merges the periodic
// snapshot batch with incremental push events, each logical slice replaced
// wholesale, and guards drill-down against stale responses.
type Reconciler struct {
	client *api.Client
	opts   Options
	feed   *Feed

	mu          sync.RWMutex
	stats       models.SessionStats
	sessions    []models.ExamSession
	recent      []models.Violation
	averages    models.AverageStatistics
	timeline    []models.TimelinePoint
	selected    *SessionDetail
	connected   bool
	lastRefresh time.Time

	selectSeq atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	channel   *push.Channel
	closeOnce sync.Once
	ticker    *time.Ticker
	loopDone  chan struct{}
}

func NewReconciler(client *api.Client, opts Options) *Reconciler {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = api.DefaultRecentLimit
	}
	return &Reconciler{
		client:   client,
		opts:     opts,
		feed:     NewFeed(opts.FeedCapacity),
		loopDone: make(chan struct{}),
	}
}

// Start runs the bootstrap batch, opens the push channel and begins the
// periodic refresh. It returns after the bootstrap attempt; a failed
// bootstrap is surfaced but not fatal, the next tick retries.
func (r *Reconciler) Start(ctx context.Context, pushEndpoint string) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if err := r.refreshAll(r.ctx); err != nil {
		r.reportError(err)
	}

	r.channel = push.Open(r.ctx, pushEndpoint, push.Handlers{
		OnAlert:         r.handleAlert,
		OnSessionUpdate: r.handleSessionUpdate,
		OnConnected:     func() { r.setConnected(true) },
		OnDisconnected:  func(err error) { r.setConnected(false) },
	})

	r.ticker = time.NewTicker(r.opts.RefreshInterval)
	go r.refreshLoop()
}

func (r *Reconciler) refreshLoop() {
	defer close(r.loopDone)
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.ticker.C:
			// Each refresh runs independently so a slow batch never
			// blocks the next tick.
			go func() {
				if err := r.refreshAll(r.ctx); err != nil {
					r.reportError(err)
				}
			}()
		}
	}
}

// refreshAll fetches the five snapshot reads concurrently and applies them
// as one batch. If any read fails the whole batch is discarded and the
// previous state stays visible.
func (r *Reconciler) refreshAll(ctx context.Context) error {
	var (
		stats    models.SessionStats
		sessions []models.ExamSession
		recent   []models.Violation
		averages models.AverageStatistics
		timeline models.ViolationsTimeline
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = r.client.GetStats(gctx)
		return
	})
	g.Go(func() (err error) {
		sessions, err = r.client.GetActiveSessions(gctx)
		return
	})
	g.Go(func() (err error) {
		recent, err = r.client.GetRecentViolations(gctx, r.opts.RecentLimit)
		return
	})
	g.Go(func() (err error) {
		averages, err = r.client.GetAverageStatistics(gctx)
		return
	})
	g.Go(func() (err error) {
		timeline, err = r.client.GetViolationsTimeline(gctx, r.opts.TimelineLimit)
		return
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mu.Lock()
	r.stats = stats
	r.sessions = sessions
	r.recent = recent
	r.averages = averages
	r.timeline = timeline.Timeline
	r.lastRefresh = time.Now()
	r.mu.Unlock()
	return nil
}

// handleAlert feeds the live feed, fires the cue and schedules the partial
// recent-violations refresh. Order matters; the refreshes themselves are
// asynchronous.
func (r *Reconciler) handleAlert(alert models.LiveAlert) {
	r.feed.Push(alert)

	if r.opts.Cue != nil {
		go func() {
			defer func() {
				if v := recover(); v != nil {
					log.Printf("Alert cue failed: %v", v)
				}
			}()
			r.opts.Cue(alert)
		}()
	}

	go r.refreshRecent(r.context())
}

func (r *Reconciler) handleSessionUpdate() {
	go r.refreshSessions(r.context())
}

func (r *Reconciler) context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}
	return context.Background()
}

// refreshRecent replaces only the recent violations slice.
func (r *Reconciler) refreshRecent(ctx context.Context) {
	recent, err := r.client.GetRecentViolations(ctx, r.opts.RecentLimit)
	if err != nil {
		r.reportError(err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	r.recent = recent
	r.mu.Unlock()
}

// refreshSessions replaces only the active sessions slice.
func (r *Reconciler) refreshSessions(ctx context.Context) {
	sessions, err := r.client.GetActiveSessions(ctx)
	if err != nil {
		r.reportError(err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()
}

// SelectSession drills into one session's violation history. If a newer
// selection was made while the request was in flight, the result is
// silently discarded: last request wins.
func (r *Reconciler) SelectSession(ctx context.Context, sessionID string) error {
	seq := r.selectSeq.Add(1)

	violations, err := r.client.GetSessionViolations(ctx, sessionID)
	if err != nil {
		if r.selectSeq.Load() == seq {
			r.reportError(err)
		}
		return err
	}

	if r.selectSeq.Load() != seq {
		// Stale response, a newer selection owns the panel now.
		return nil
	}
	if r.ctx != nil && r.ctx.Err() != nil {
		// Torn down while the request was in flight.
		return nil
	}

	r.mu.Lock()
	if r.selectSeq.Load() == seq {
		r.selected = &SessionDetail{SessionID: sessionID, Violations: violations}
	}
	r.mu.Unlock()
	return nil
}

// ClearSelection drops the drill-down panel.
func (r *Reconciler) ClearSelection() {
	r.selectSeq.Add(1)
	r.mu.Lock()
	r.selected = nil
	r.mu.Unlock()
}

func (r *Reconciler) setConnected(up bool) {
	r.mu.Lock()
	r.connected = up
	r.mu.Unlock()
}

// Connected reports the push channel state.
func (r *Reconciler) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// Snapshot copies the current display state for the presentation layer.
func (r *Reconciler) Snapshot() DashboardState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return DashboardState{
		Stats:            r.stats,
		ActiveSessions:   r.sessions,
		RecentViolations: r.recent,
		Averages:         r.averages,
		Timeline:         r.timeline,
		Alerts:           r.feed.Alerts(),
		Selected:         r.selected,
		Connected:        r.connected,
		LastRefresh:      r.lastRefresh,
	}
}

func (r *Reconciler) reportError(err error) {
	if r.ctx != nil && r.ctx.Err() != nil {
		return
	}
	log.Printf("Dashboard refresh error: %v", err)
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

// Close stops the refresh timer and closes the push channel, suppressing
// its reconnection loop. In-flight requests finish but their results are
// discarded. Safe to call more than once.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.ticker != nil {
			r.ticker.Stop()
			<-r.loopDone
		}
		if r.channel != nil {
			r.channel.Close()
		}
	})
}
