package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/robot"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultFetchTimeout = 10 * time.Second
)

type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration
	Logger       logr.Logger
	Now          func() time.Time
}

// Controller owns the local mirror of one robot. It polls the gateway on a
// timer and on demand, issues commands, and reconciles afterwards.
//
// Every fetch is tagged with a generation. A result is applied only if its
// generation is newer than the one currently shown, so a slow response can
// never overwrite a faster, newer one.
type Controller struct {
	gw   gateway.Gateway
	opts Options
	log  logr.Logger

	mu      sync.Mutex
	state   robot.State
	hasData bool
	settled Phase
	stale   bool
	notice  *Notice
	issued  uint64
	applied uint64
	// coords are laid over fetches issued at or before coordsGen.
	coords    []robot.Coordinate
	coordsGen uint64
	inflight  int
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	pubMu sync.Mutex
	subs  subscribers
}

func New(gw gateway.Gateway, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		gw:      gw,
		opts:    opts,
		log:     opts.Logger,
		state:   robot.Empty(),
		settled: PhaseIdle,
	}
}

// Start mounts the controller: it syncs immediately and then on every
// PollInterval tick until Stop or ctx cancellation.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.pollLoop(loopCtx)
	return nil
}

// Stop tears the controller down. The timer is cancelled, results of fetches
// still in flight are dropped on arrival, and the mirrored state is discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.state = robot.Empty()
	c.hasData = false
	c.notice = nil
	c.settled = PhaseIdle
	c.coords = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.log.Info("controller stopped")
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick starts a background sync unless one is already in flight. The fetch
// is not bound to the loop context: teardown suppresses its effect instead
// of aborting it.
func (c *Controller) tick() {
	gen, err := c.begin(true)
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.FetchTimeout)
		defer cancel()
		_ = c.fetch(ctx, gen)
	}()
}

// Refresh performs a manual sync. It may overlap with a timer-driven one and
// doubles as the retry action of the blocking error view.
func (c *Controller) Refresh(ctx context.Context) error {
	gen, err := c.begin(false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	return c.fetch(ctx, gen)
}

var errBusy = errors.New("sync in flight")

func (c *Controller) begin(skipIfBusy bool) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0, ErrStopped
	}
	if skipIfBusy && c.inflight > 0 {
		c.log.V(1).Info("tick skipped, sync in flight", "inflight", c.inflight)
		return 0, errBusy
	}
	c.issued++
	c.inflight++
	return c.issued, nil
}

func (c *Controller) fetch(ctx context.Context, gen uint64) error {
	c.publish()
	payload, err := c.gw.FetchStatus(ctx)
	return c.complete(gen, payload, err)
}

func (c *Controller) complete(gen uint64, payload robot.Payload, fetchErr error) error {
	c.mu.Lock()
	c.inflight--

	if c.stopped {
		c.mu.Unlock()
		syncCounter.WithLabelValues("discarded").Inc()
		c.log.V(1).Info("dropping sync result after teardown", "generation", gen)
		return ErrStopped
	}

	if gen <= c.applied {
		applied := c.applied
		c.mu.Unlock()
		syncCounter.WithLabelValues("superseded").Inc()
		c.log.V(1).Info("dropping superseded sync result", "generation", gen, "applied", applied, "failed", fetchErr != nil)
		c.publish()
		return fetchErr
	}

	if fetchErr != nil {
		c.state.IsConnected = false
		if c.hasData {
			c.settled = PhaseReady
			c.stale = true
			c.notice = &Notice{Kind: NoticeBanner, Message: fetchErr.Error(), Err: &StaleDataError{Err: fetchErr}}
		} else {
			c.settled = PhaseFailed
			c.stale = false
			c.notice = &Notice{Kind: NoticeBlocking, Message: fetchErr.Error(), Err: fetchErr}
		}
		hasData := c.hasData
		c.mu.Unlock()

		syncCounter.WithLabelValues("failure").Inc()
		c.log.Error(fetchErr, "sync failed", "generation", gen, "stale", hasData)
		c.publish()
		return fetchErr
	}

	wasConnected := c.state.IsConnected
	next := robot.Normalize(payload, c.opts.Now())
	if c.coords != nil {
		if gen <= c.coordsGen {
			next.Coordinates = append([]robot.Coordinate{}, c.coords...)
		} else {
			c.coords = nil
		}
	}
	c.state = next
	c.applied = gen
	c.hasData = true
	c.settled = PhaseReady
	c.stale = false
	c.notice = nil
	c.mu.Unlock()

	syncCounter.WithLabelValues("success").Inc()
	if !wasConnected {
		c.log.Info("robot connected", "generation", gen)
	}
	c.log.V(1).Info("sync applied", "generation", gen)
	c.publish()
	return nil
}

// SendCommand issues command and, once accepted, runs exactly one
// reconciliation sync. A rejected or failed command leaves the state alone.
func (c *Controller) SendCommand(ctx context.Context, command string) (gateway.CommandResult, error) {
	if c.isStopped() {
		return gateway.CommandResult{}, ErrStopped
	}

	result, err := c.gw.SendCommand(ctx, command)
	if err != nil {
		commandCounter.WithLabelValues(commandLabel(command), "failure").Inc()
		c.log.Error(err, "command failed", "command", command)
		c.surface(err)
		return result, err
	}
	commandCounter.WithLabelValues(string(result.Command), "success").Inc()
	c.log.Info("command accepted", "command", result.Command, "advisory_status", result.NewStatus)

	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStopped) {
		c.log.V(1).Info("reconciliation sync did not apply", "error", err.Error())
	}
	return result, nil
}

// UpdateCoordinates stores a new waypoint list remotely and mirrors it
// locally without waiting for the next sync. Fetches issued before the update
// still apply, but keep the submitted coordinates.
func (c *Controller) UpdateCoordinates(ctx context.Context, coords []robot.Coordinate) error {
	if c.isStopped() {
		return ErrStopped
	}

	if err := c.gw.UpdateCoordinates(ctx, coords); err != nil {
		c.log.Error(err, "coordinate update failed")
		c.surface(err)
		return err
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	next := c.state.Clone()
	next.Coordinates = append([]robot.Coordinate{}, coords...)
	next.LastUpdated = c.opts.Now()
	c.state = next
	c.coords = append([]robot.Coordinate{}, coords...)
	c.coordsGen = c.issued
	c.mu.Unlock()

	c.log.V(1).Info("coordinates updated", "count", len(coords))
	c.publish()
	return nil
}

// DismissNotice clears a banner. Blocking notices stay until a sync succeeds.
func (c *Controller) DismissNotice() bool {
	c.mu.Lock()
	if c.notice == nil || !c.notice.Dismissible() {
		c.mu.Unlock()
		return false
	}
	c.notice = nil
	c.mu.Unlock()
	c.publish()
	return true
}

// View returns a snapshot that is safe to hold and read concurrently.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	view := View{
		State:      c.state.Clone(),
		Phase:      c.settled,
		Stale:      c.stale,
		HasData:    c.hasData,
		Generation: c.applied,
	}
	if c.inflight > 0 && !c.stopped {
		view.Phase = PhaseSyncing
	}
	if c.notice != nil {
		notice := *c.notice
		view.Notice = &notice
	}
	return view
}

// surface records a command or coordinate failure. It never downgrades a
// blocking notice, which only a successful sync may clear.
func (c *Controller) surface(err error) {
	c.mu.Lock()
	if c.stopped || (c.notice != nil && c.notice.Kind == NoticeBlocking) {
		c.mu.Unlock()
		return
	}
	c.notice = &Notice{Kind: NoticeBanner, Message: err.Error(), Err: err}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func commandLabel(raw string) string {
	cmd, err := gateway.ParseCommand(raw)
	if err != nil {
		return "invalid"
	}
	return string(cmd)
}
