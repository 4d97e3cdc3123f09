package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/logging"
)

const (
	defaultSettleDelay     = 800 * time.Millisecond
	defaultTimePerQuestion = 30
)

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithClock replaces the wall clock, e.g. with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

// WithTransitionHook registers fn for every phase change. fn runs on the session loop and
// must not call Stop or Start.
func WithTransitionHook(fn func(Transition)) ControllerOption {
	return func(c *Controller) { c.hook = fn }
}

func WithLogger(logger *zap.SugaredLogger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithSettleDelay sets the pause between a self-paced answer and the next question.
func WithSettleDelay(d time.Duration) ControllerOption {
	return func(c *Controller) { c.settleDelay = d }
}

// WithDefaultTimePerQuestion sets the countdown used when neither room nor question carries one.
func WithDefaultTimePerQuestion(seconds int) ControllerOption {
	return func(c *Controller) {
		if seconds > 0 {
			c.defaultTimePerQuestion = seconds
		}
	}
}

// WithQuestionSource routes question-list fetches through src instead of the API.
func WithQuestionSource(src QuestionSource) ControllerOption {
	return func(c *Controller) { c.questions = src }
}

// Controller is the per-room session state machine. One session is active at a time;
// Start tears down the previous one before creating new subscriptions. All state changes
// happen on a single loop goroutine per session, in delivery order.
type Controller struct {
	api       API
	questions QuestionSource
	transport PushTransport
	submitter *AnswerSubmitter
	resolver  *ReconnectionResolver
	identity  domain.Identity

	clock                  clockwork.Clock
	logger                 *zap.SugaredLogger
	hook                   func(Transition)
	settleDelay            time.Duration
	defaultTimePerQuestion int

	mu     sync.Mutex
	state  SessionState
	active *session
	feed   *broadcaster[SessionState]
}

type session struct {
	cancel   context.CancelFunc
	done     chan struct{}
	cmds     chan answerCommand
	finished chan struct{}
}

type answerCommand struct {
	index int
	reply chan error
}

func NewController(api API, transport PushTransport, submitter *AnswerSubmitter, resolver *ReconnectionResolver, identity domain.Identity, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:                    api,
		questions:              api,
		transport:              transport,
		submitter:              submitter,
		resolver:               resolver,
		identity:               identity,
		clock:                  clockwork.NewRealClock(),
		logger:                 logging.DefaultLogger(),
		settleDelay:            defaultSettleDelay,
		defaultTimePerQuestion: defaultTimePerQuestion,
		state:                  SessionState{SelectedIndex: NoSelection},
		feed:                   newBroadcaster[SessionState](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens a session for roomID. Any running session is stopped first.
func (c *Controller) Start(ctx context.Context, roomID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Stop()

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{
		cancel:   cancel,
		done:     make(chan struct{}),
		cmds:     make(chan answerCommand),
		finished: make(chan struct{}),
	}
	r := &runner{
		c:         c,
		sess:      sess,
		roomID:    roomID,
		mode:      ModeSynchronized,
		results:   make(chan func(), 16),
		lastIndex: -1,
		logger:    c.logger.With("room_id", roomID, "user_id", c.identity.UserID),
	}

	c.mu.Lock()
	c.active = sess
	c.state = SessionState{RoomID: roomID, Phase: PhaseIdle, SelectedIndex: NoSelection}
	c.feed.publish(c.state)
	c.mu.Unlock()

	r.restore(sctx)
	go r.run(sctx)
	r.logger.Infow("session started")
	return nil
}

// Stop tears down the active session: subscriptions, timers and in-flight work. The last
// state remains readable.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.active
	c.active = nil
	c.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
	<-sess.done
}

// Answer locks option index for the active question and submits it in the background.
func (c *Controller) Answer(ctx context.Context, index int) error {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess == nil {
		return domain.ErrSessionNotStarted
	}

	reply := make(chan error, 1)
	select {
	case sess.cmds <- answerCommand{index: index, reply: reply}:
	case <-sess.done:
		return domain.ErrSessionNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-sess.done:
		return domain.ErrSessionNotStarted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a copy of the current session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel of state snapshots. The caller must invoke cancel.
func (c *Controller) Subscribe() (<-chan SessionState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed.subscribe(c.state)
}

// Finished is closed when the active session reaches PhaseFinished. It is nil without a session.
func (c *Controller) Finished() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	return c.active.finished
}

// Record scores the locked selection of the current question.
func (c *Controller) Record() (domain.AnswerRecord, bool) {
	st := c.State()
	if st.Question == nil || !st.HasSelection() {
		return domain.AnswerRecord{}, false
	}
	return domain.NewAnswerRecord(c.identity.UserID, st.RoomID, *st.Question, st.SelectedIndex, nil), true
}

// NextUnanswered returns the first question, in list order, whose id is not in answered.
func NextUnanswered(questions []domain.Question, answered []int64) (int, domain.Question, bool) {
	return nextUnansweredFrom(questions, idSet(answered), 0)
}

func nextUnansweredFrom(questions []domain.Question, answered map[int64]struct{}, from int) (int, domain.Question, bool) {
	for i := from; i < len(questions); i++ {
		if _, ok := answered[questions[i].ID]; !ok {
			return i, questions[i], true
		}
	}
	return -1, domain.Question{}, false
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// runner owns one session. Its fields are only touched on the loop goroutine; background
// work hands results back as closures through results.
type runner struct {
	c      *Controller
	sess   *session
	roomID int64
	logger *zap.SugaredLogger

	room           domain.Room
	mode           Mode
	results        chan func()
	game           <-chan domain.GameEvent
	cancelGame     func()
	ticker         clockwork.Ticker
	settle         clockwork.Timer
	lastIndex      int
	questionStart  time.Time
	serverAnswered map[int64]struct{}
	finished       bool
}

func (r *runner) run(ctx context.Context) {
	defer close(r.sess.done)
	defer r.teardown()

	r.subscribeGame(ctx)
	r.goDo(ctx, r.loadRoom)

	for {
		var tick, settle <-chan time.Time
		if r.ticker != nil {
			tick = r.ticker.Chan()
		}
		if r.settle != nil {
			settle = r.settle.Chan()
		}

		select {
		case <-ctx.Done():
			return
		case apply := <-r.results:
			apply()
		case cmd := <-r.sess.cmds:
			cmd.reply <- r.answer(ctx, cmd.index)
		case ev, ok := <-r.game:
			if !ok {
				r.game = nil
				if !r.finished && r.mode == ModeSynchronized {
					r.logger.Warnw("game stream closed")
					r.update(func(s *SessionState) { s.Notice = "Lost connection to the game" })
				}
				continue
			}
			r.onGameEvent(ctx, ev)
		case <-tick:
			r.onTick()
		case <-settle:
			r.settle = nil
			r.goDo(ctx, r.fetchNext)
		}
	}
}

// goDo runs fn off the loop and applies the closure it returns on the loop.
func (r *runner) goDo(ctx context.Context, fn func(context.Context) func()) {
	go func() {
		apply := fn(ctx)
		if apply == nil {
			return
		}
		select {
		case r.results <- apply:
		case <-ctx.Done():
		}
	}()
}

func (r *runner) teardown() {
	r.stopTicker()
	r.stopSettle()
	r.closeGame()
	r.logger.Infow("session stopped")
}

// restore applies durably stored progress before any network round-trip.
func (r *runner) restore(ctx context.Context) {
	start, ok := r.c.resolver.StartTime(ctx, r.roomID)
	r.update(func(s *SessionState) {
		s.Phase = PhaseWaitingForStart
		if ok {
			s.StartTime = &start
		}
	})
}

func (r *runner) subscribeGame(ctx context.Context) {
	roomID := r.roomID
	go func() {
		events, cancel, err := r.c.transport.SubscribeGame(ctx, roomID)
		if err == nil {
			cancel = sync.OnceFunc(cancel)
			go func() {
				<-ctx.Done()
				cancel()
			}()
		}
		apply := func() {
			if err != nil {
				r.logger.Warnw("subscribe game failed", "error", err)
				r.update(func(s *SessionState) {
					s.Notice = domain.UserMessage(err, "Could not connect to the game")
				})
				return
			}
			if r.finished || r.mode == ModeSelfPaced {
				cancel()
				return
			}
			r.game = events
			r.cancelGame = cancel
			r.logger.Debugw("subscribed to game stream")
		}
		select {
		case r.results <- apply:
		case <-ctx.Done():
		}
	}()
}

func (r *runner) closeGame() {
	if r.cancelGame != nil {
		r.cancelGame()
		r.cancelGame = nil
	}
	r.game = nil
}

func (r *runner) loadRoom(ctx context.Context) func() {
	info, err := r.c.api.RoomInfo(ctx, r.roomID)
	if err != nil {
		return func() {
			// Without room info the session stays synchronized and follows the game stream.
			r.logger.Warnw("load room info failed", "error", err)
			r.update(func(s *SessionState) {
				s.Notice = domain.UserMessage(err, "Failed to load room")
			})
		}
	}
	return func() { r.onRoomInfo(ctx, info) }
}

func (r *runner) onRoomInfo(ctx context.Context, info domain.RoomInfo) {
	if r.finished {
		return
	}
	r.room = info.Room
	if info.Room.IsPublic() {
		r.mode = ModeSelfPaced
		r.closeGame()
	}
	mode := r.mode
	r.update(func(s *SessionState) {
		s.Mode = mode
		if info.Total > 0 {
			s.TotalQuestions = info.Total
		}
		if info.Room.StartTime != nil {
			start := *info.Room.StartTime
			s.StartTime = &start
		}
	})
	if info.Room.StartTime != nil {
		r.c.resolver.RememberStartTime(ctx, r.roomID, *info.Room.StartTime)
	}

	if mode == ModeSynchronized {
		r.goDo(ctx, r.fetchAnswered)
		return
	}

	completed := info.Completed
	r.goDo(ctx, func(ctx context.Context) func() {
		if err := r.c.api.JoinRoom(ctx, r.roomID, ""); err != nil {
			r.logger.Debugw("join public room failed", "error", err)
		}
		if completed {
			return func() { r.finish(ctx) }
		}
		return r.fetchNext(ctx)
	})
}

// fetchAnswered reconciles synchronized sessions with the server's answered set.
func (r *runner) fetchAnswered(ctx context.Context) func() {
	ids, err := r.c.api.AnsweredQuestionIDs(ctx, r.roomID)
	if err != nil {
		return func() { r.logger.Warnw("fetch answered questions failed", "error", err) }
	}
	return func() {
		r.serverAnswered = idSet(ids)
		r.reconcile()
	}
}

func (r *runner) reconcile() {
	st := r.snapshot()
	if st.Question == nil {
		return
	}
	if _, ok := r.serverAnswered[st.Question.ID]; !ok {
		return
	}
	switch st.Phase {
	case PhaseQuestionActive:
		r.c.submitter.Lock(r.roomID, st.Question.ID, NoSelection)
		r.update(func(s *SessionState) { s.Phase = PhaseAnswerLocked })
	case PhaseAnswerLocked:
		r.update(func(s *SessionState) { s.Provisional = false })
	}
}

func (r *runner) fetchNext(ctx context.Context) func() {
	var questions []domain.Question
	var answered []int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := r.c.questions.Questions(gctx, r.roomID)
		questions = q
		return err
	})
	g.Go(func() error {
		ids, err := r.c.api.AnsweredQuestionIDs(gctx, r.roomID)
		answered = ids
		return err
	})
	if err := g.Wait(); err != nil {
		return func() {
			r.logger.Warnw("load next question failed", "error", err)
			r.update(func(s *SessionState) {
				s.Notice = domain.UserMessage(err, "Failed to load the next question")
			})
		}
	}
	return func() { r.onProgress(ctx, questions, answered) }
}

func (r *runner) onProgress(ctx context.Context, questions []domain.Question, answered []int64) {
	if r.finished {
		return
	}
	r.serverAnswered = idSet(answered)
	st := r.snapshot()

	idx, q, ok := nextUnansweredFrom(questions, r.serverAnswered, 0)
	if ok && st.Question != nil && idx < st.CurrentIndex {
		r.logger.Warnw("server answered set behind local progress", "next_index", idx, "current_index", st.CurrentIndex)
		idx, q, ok = nextUnansweredFrom(questions, r.serverAnswered, st.CurrentIndex)
	}
	if !ok {
		r.finish(ctx)
		return
	}
	r.present(ctx, idx, len(questions), q, r.timePerQuestion(q))
}

func (r *runner) timePerQuestion(q domain.Question) int {
	if r.room.TimePerQuestion > 0 {
		return r.room.TimePerQuestion
	}
	if q.TimePerQuestion > 0 {
		return q.TimePerQuestion
	}
	return r.c.defaultTimePerQuestion
}

func (r *runner) onGameEvent(ctx context.Context, ev domain.GameEvent) {
	if r.finished || r.mode == ModeSelfPaced {
		return
	}
	switch {
	case ev.Finished:
		r.finish(ctx)
		return
	case ev.Error != "":
		r.stopTicker()
		r.update(func(s *SessionState) {
			s.Phase = PhaseWaitingForStart
			s.Question = nil
			s.SelectedIndex = NoSelection
			s.Provisional = false
			s.TimedOut = false
			s.Notice = ev.Error
		})
		return
	case ev.Question == nil:
		r.logger.Debugw("ignoring game event without question", "index", ev.Index)
		return
	}

	st := r.snapshot()
	if r.lastIndex >= 0 && ev.Index < r.lastIndex {
		r.logger.Debugw("ignoring stale game event", "index", ev.Index, "last_index", r.lastIndex)
		return
	}
	if ev.Index == r.lastIndex && st.Question != nil {
		q := *ev.Question
		r.update(func(s *SessionState) {
			s.Question = &q
			s.TimeLeft = max(0, ev.TimeLeft)
			if ev.Total > 0 {
				s.TotalQuestions = ev.Total
			}
		})
		r.armTicker()
		return
	}

	r.lastIndex = ev.Index
	r.present(ctx, ev.Index, ev.Total, *ev.Question, ev.TimeLeft)
}

// present shows q as the current question, locked if an answer is already known.
func (r *runner) present(ctx context.Context, index, total int, q domain.Question, timeLeft int) {
	r.stopTicker()

	selected, locked := r.lockedSelection(ctx, q.ID)
	_, confirmed := r.serverAnswered[q.ID]
	phase := PhaseQuestionActive
	if locked || confirmed {
		phase = PhaseAnswerLocked
	}

	r.update(func(s *SessionState) {
		s.Phase = phase
		s.Question = &q
		s.CurrentIndex = index
		if total > 0 {
			s.TotalQuestions = total
		}
		s.TimeLeft = max(0, timeLeft)
		s.SelectedIndex = NoSelection
		if locked {
			s.SelectedIndex = selected
		}
		s.Provisional = locked && !confirmed
		s.TimedOut = false
	})
	r.questionStart = r.c.clock.Now()

	if phase == PhaseQuestionActive || r.mode == ModeSynchronized {
		r.armTicker()
	}
}

func (r *runner) lockedSelection(ctx context.Context, questionID int64) (int, bool) {
	if idx, ok := r.c.submitter.Selection(r.roomID, questionID); ok {
		return idx, true
	}
	if idx, ok := r.c.resolver.SelectionFor(ctx, r.roomID, questionID); ok {
		r.c.submitter.Lock(r.roomID, questionID, idx)
		return idx, true
	}
	return NoSelection, false
}

// armTicker restarts the one-second display countdown from the current TimeLeft.
func (r *runner) armTicker() {
	r.stopTicker()
	st := r.snapshot()
	if st.TimeLeft > 0 {
		r.ticker = r.c.clock.NewTicker(time.Second)
		return
	}
	r.expire()
}

func (r *runner) onTick() {
	st := r.snapshot()
	if st.TimeLeft <= 0 {
		r.stopTicker()
		return
	}
	next := st.TimeLeft - 1
	r.update(func(s *SessionState) { s.TimeLeft = next })
	if next == 0 {
		r.stopTicker()
		r.expire()
	}
}

// expire locks a synchronized question whose display countdown hit zero. The server still
// decides when the next question starts.
func (r *runner) expire() {
	if r.mode != ModeSynchronized {
		return
	}
	if r.snapshot().Phase != PhaseQuestionActive {
		return
	}
	r.update(func(s *SessionState) {
		s.Phase = PhaseAnswerLocked
		s.TimedOut = true
	})
}

func (r *runner) answer(ctx context.Context, index int) error {
	st := r.snapshot()
	switch st.Phase {
	case PhaseQuestionActive:
	case PhaseAnswerLocked:
		return domain.ErrAnswerLocked
	default:
		return domain.ErrNoActiveQuestion
	}
	q := *st.Question
	if !q.HasOption(index) {
		return domain.ErrInvalidOption
	}

	var elapsed *int64
	if r.mode == ModeSelfPaced {
		ms := r.c.clock.Since(r.questionStart).Milliseconds()
		elapsed = &ms
		r.stopTicker()
	}
	r.update(func(s *SessionState) {
		s.Phase = PhaseAnswerLocked
		s.SelectedIndex = index
		s.Provisional = false
		s.Notice = ""
	})

	submission := domain.AnswerSubmission{
		RoomID:        r.roomID,
		QuestionID:    q.ID,
		SelectedIndex: index,
		ElapsedMs:     elapsed,
	}
	r.goDo(ctx, func(ctx context.Context) func() {
		_, err := r.c.submitter.Submit(ctx, submission)
		return func() { r.onSubmitted(ctx, q.ID, err) }
	})
	return nil
}

func (r *runner) onSubmitted(ctx context.Context, questionID int64, err error) {
	if err != nil {
		r.update(func(s *SessionState) {
			s.Notice = domain.UserMessage(err, "Network error while saving answer")
		})
		// A transport failure keeps the question locked and does not advance.
		if !errors.Is(err, domain.ErrRejected) {
			return
		}
	}
	if r.mode != ModeSelfPaced || r.finished {
		return
	}
	if st := r.snapshot(); st.Question == nil || st.Question.ID != questionID {
		return
	}
	if r.c.settleDelay <= 0 {
		r.goDo(ctx, r.fetchNext)
		return
	}
	r.stopSettle()
	r.settle = r.c.clock.NewTimer(r.c.settleDelay)
}

// finish ends the session. The cached start time is no longer needed for a countdown.
func (r *runner) finish(ctx context.Context) {
	if r.finished {
		return
	}
	r.finished = true
	r.stopTicker()
	r.stopSettle()
	r.closeGame()
	r.c.resolver.ForgetStartTime(ctx, r.roomID)
	r.update(func(s *SessionState) {
		s.Phase = PhaseFinished
		s.Finished = true
		s.Question = nil
		s.SelectedIndex = NoSelection
		s.TimeLeft = 0
		s.Provisional = false
		s.TimedOut = false
	})
	close(r.sess.finished)
	r.logger.Infow("session finished")
}

func (r *runner) stopTicker() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

func (r *runner) stopSettle() {
	if r.settle != nil {
		r.settle.Stop()
		r.settle = nil
	}
}

func (r *runner) snapshot() SessionState {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	return r.c.state
}

// update mutates the published state and reports phase changes to the hook.
func (r *runner) update(fn func(*SessionState)) {
	c := r.c
	c.mu.Lock()
	prev := c.state.Phase
	fn(&c.state)
	next := c.state
	c.feed.publish(next)
	c.mu.Unlock()

	if prev == next.Phase {
		return
	}
	r.logger.Debugw("phase changed", "from", prev.String(), "to", next.Phase.String(), "index", next.CurrentIndex)
	if c.hook != nil {
		c.hook(Transition{RoomID: r.roomID, From: prev, To: next.Phase, Index: next.CurrentIndex})
	}
}
