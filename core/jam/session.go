package jam

import (
	"context"
	"sort"
	"sync"
	"time"

	"JamFM/core/event"
	"JamFM/model"

	"github.com/google/uuid"
)

// Playback run states. Orthogonal to the submissions gate and the playback
// mode; an ended session accepts no transitions at all.
const (
	PlayStateIdle    = "idle"
	PlayStatePlaying = "playing"
	PlayStatePaused  = "paused"
)

// Unbounded marks an autoplay/dj countdown with no limit.
const Unbounded = -1

// persistFn hands an ordered persistence op to the manager's writer.
type persistFn func(op func(ctx context.Context))

type reactionKey struct {
	trackID      string
	userID       int64
	reactionType string
}

// Session owns one channel's queue, submission gate, playback mode and
// reaction tallies. Every mutation runs under the session mutex, so all
// operations against one session are linearized while unrelated sessions
// never contend.
type Session struct {
	mu sync.Mutex

	id        string
	guildID   int64
	channelID int64

	ended           bool
	playState       string
	submissionsOpen bool
	perUserLimit    int // 0 = unlimited

	mode      string
	remaining int // <0 = unbounded; meaningless in manual mode

	queue     *queue
	currentID string

	reactions map[reactionKey]struct{}

	startedAt time.Time
	endedAt   *time.Time

	pub     event.Publisher
	persist persistFn
	store   Stores
}

func newSession(guildID, channelID int64, perUserLimit int, pub event.Publisher, persist persistFn, store Stores) *Session {
	id := uuid.NewString()
	return &Session{
		id:              id,
		guildID:         guildID,
		channelID:       channelID,
		playState:       PlayStateIdle,
		submissionsOpen: true,
		perUserLimit:    perUserLimit,
		mode:            model.ModeManual,
		queue:           newQueue(id),
		reactions:       make(map[reactionKey]struct{}),
		startedAt:       time.Now(),
		pub:             pub,
		persist:         persist,
		store:           store,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Enqueue appends a submission. Fails while submissions are closed or when
// the requester already holds the per-user number of pending entries.
func (s *Session) Enqueue(trackID string, requestedBy int64) (*model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}
	if !s.submissionsOpen {
		return nil, ErrSubmissionsClosed
	}
	if s.perUserLimit > 0 && s.queue.pendingCountFor(requestedBy) >= s.perUserLimit {
		return nil, ErrLimitExceeded
	}

	entry := s.queue.enqueue(trackID, requestedBy)
	s.persistEntry(entry)
	s.emit(event.TypeQueueUpdated, &event.QueueUpdate{Action: "enqueued", Entry: copyEntry(entry)})
	return copyEntry(entry), nil
}

// Remove drops the pending entry at the given position. Removing an
// unknown or already-settled position is a no-op.
func (s *Session) Remove(position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}

	entry := s.queue.remove(position)
	if entry == nil {
		return nil
	}
	s.persistEntry(entry)
	s.emit(event.TypeQueueUpdated, &event.QueueUpdate{Action: "removed", Entry: copyEntry(entry)})
	return nil
}

// Clear removes every pending entry atomically with respect to concurrent
// enqueues and pops.
func (s *Session) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return 0, ErrSessionEnded
	}

	cleared := s.queue.clear()
	if cleared > 0 {
		s.persistQueueStatuses()
		s.emit(event.TypeQueueUpdated, &event.QueueUpdate{Action: "cleared", Cleared: cleared})
	}
	return cleared, nil
}

// PlayNext is the manual "play next" trigger: it finishes the current entry
// if one is playing and pops the next pending entry. A nil return with nil
// error means there is nothing to play, which is a normal outcome.
func (s *Session) PlayNext() (*model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}

	s.finishCurrent()
	entry := s.popIntoCurrent()
	return copyEntry(entry), nil
}

// Advance reacts to the current entry finishing. Manual mode stops;
// autoplay/dj pop the next entry while their countdown allows, and flip
// back to manual once the countdown is spent.
func (s *Session) Advance() (*model.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil, ErrSessionEnded
	}

	s.finishCurrent()

	if s.mode == model.ModeManual {
		s.goIdle()
		return nil, nil
	}

	// The countdown hits zero when the last counted entry starts, but the
	// mode only flips once that entry has finished, i.e. here.
	if s.remaining == 0 {
		s.mode = model.ModeManual
		s.emit(event.TypeModeChanged, &event.ModeChange{Mode: s.mode})
		s.goIdle()
		return nil, nil
	}

	entry := s.popIntoCurrent()
	if entry == nil {
		return nil, nil
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return copyEntry(entry), nil
}

// Skip forcibly finishes the current entry and advances.
func (s *Session) Skip() (*model.QueueEntry, error) {
	return s.Advance()
}

// Pause suspends playback of the current entry.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	if s.playState == PlayStatePlaying {
		s.playState = PlayStatePaused
	}
	return nil
}

// Resume continues a paused entry.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	if s.playState == PlayStatePaused {
		s.playState = PlayStatePlaying
	}
	return nil
}

// OpenSubmissions opens the submission gate. No effect on playback.
func (s *Session) OpenSubmissions() error {
	return s.setSubmissions(true)
}

// CloseSubmissions closes the submission gate. No effect on playback.
func (s *Session) CloseSubmissions() error {
	return s.setSubmissions(false)
}

func (s *Session) setSubmissions(open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	if s.submissionsOpen == open {
		return nil
	}
	s.submissionsOpen = open
	s.persistSession()
	s.emit(event.TypeSubmissionsChanged, &event.SubmissionsChange{Open: open})
	return nil
}

// SetLimit updates the per-user pending limit. Entries already queued above
// the new limit stay queued.
func (s *Session) SetLimit(limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	if limit < 0 {
		limit = 0
	}
	s.perUserLimit = limit
	s.persistSession()
	s.emit(event.TypeLimitChanged, &event.LimitChange{Limit: limit})
	return nil
}

// SetMode replaces the playback mode. Switching mid-playback never
// interrupts the current entry; the new mode applies from the next advance.
func (s *Session) SetMode(mode string, remaining int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}

	switch mode {
	case model.ModeManual:
		s.mode = model.ModeManual
		s.remaining = 0
	case model.ModeAutoplay, model.ModeDJ:
		s.mode = mode
		if remaining < 0 {
			s.remaining = Unbounded
		} else {
			s.remaining = remaining
		}
	default:
		return nil
	}

	s.persistSession()
	s.emit(event.TypeModeChanged, &event.ModeChange{Mode: s.mode, Remaining: s.remaining})
	return nil
}

// React records a user's reaction to a track in this session. Duplicate
// reactions are idempotent.
func (s *Session) React(trackID string, userID int64, reactionType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}
	if reactionType != model.ReactionUpvote && reactionType != model.ReactionDownvote {
		return nil
	}

	key := reactionKey{trackID: trackID, userID: userID, reactionType: reactionType}
	if _, dup := s.reactions[key]; dup {
		return nil
	}
	s.reactions[key] = struct{}{}

	if s.persist != nil && s.store.Reactions != nil {
		reaction := &model.SessionReaction{
			SessionID:    s.id,
			TrackID:      trackID,
			UserID:       userID,
			ReactionType: reactionType,
			CreatedAt:    time.Now(),
		}
		store := s.store.Reactions
		s.persist(func(ctx context.Context) {
			_ = store.SaveReaction(ctx, reaction)
		})
	}

	s.emit(event.TypeReactionCounts, &event.ReactionUpdate{
		TrackID: trackID,
		Counts:  s.reactionCountsFor(trackID),
	})
	return nil
}

// End terminates the session. Terminal: every later operation fails with
// ErrSessionEnded.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return ErrSessionEnded
	}

	s.finishCurrent()
	s.ended = true
	s.playState = PlayStateIdle
	now := time.Now()
	s.endedAt = &now
	s.persistSession()
	s.emit(event.TypeSessionEnded, nil)
	return nil
}

// Pending returns the pending entries in pop order, capped at limit when
// limit > 0.
func (s *Session) Pending(limit int) []*model.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.pending(limit)
}

// Current returns a copy of the currently playing entry, nil when idle.
func (s *Session) Current() *model.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyEntry(s.queue.byID(s.currentID))
}

// Snapshot builds the consistent state replayed to a new subscriber.
func (s *Session) Snapshot(queueLimit int) *event.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(queueLimit)
}

// SubscribeEvents registers a dashboard viewer with the hub. Snapshot and
// registration both happen under the session mutex: no delta from a
// concurrent mutation can be missed or arrive ahead of the snapshot. Lock
// order is session then hub, same as every emit; the hub never calls back
// out under its own lock.
func (s *Session) SubscribeEvents(hub *event.Hub, queueLimit int) *event.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return hub.Subscribe(s.id, s.snapshotLocked(queueLimit))
}

// ---- internals, all called with s.mu held ----

func (s *Session) snapshotLocked(queueLimit int) *event.SessionSnapshot {
	return &event.SessionSnapshot{
		Session:    s.record(),
		NowPlaying: copyEntry(s.queue.byID(s.currentID)),
		Queue:      s.queue.pending(queueLimit),
		Reactions:  s.reactionCounts(),
	}
}

// finishCurrent marks the current entry played and clears the pointer.
func (s *Session) finishCurrent() {
	entry := s.queue.byID(s.currentID)
	if entry != nil && entry.Status == model.EntryStatusPlaying {
		entry.Status = model.EntryStatusPlayed
		entry.UpdatedAt = time.Now()
		s.persistEntry(entry)
	}
	s.currentID = ""
}

// popIntoCurrent promotes the next pending entry and announces it. At this
// point no entry is playing, so the single-playing invariant holds across
// the transition.
func (s *Session) popIntoCurrent() *model.QueueEntry {
	entry := s.queue.popNext()
	if entry == nil {
		s.goIdle()
		return nil
	}
	s.currentID = entry.ID
	s.playState = PlayStatePlaying
	s.persistEntry(entry)
	s.persistSession()
	s.emit(event.TypeNowPlaying, &event.NowPlaying{Entry: copyEntry(entry)})
	return entry
}

// goIdle clears playback state and tells viewers nothing is playing.
func (s *Session) goIdle() {
	if s.playState == PlayStateIdle && s.currentID == "" {
		return
	}
	s.currentID = ""
	s.playState = PlayStateIdle
	s.persistSession()
	s.emit(event.TypeNowPlaying, &event.NowPlaying{})
}

// record builds the durable session row from in-memory state.
func (s *Session) record() *model.JamSession {
	status := model.SessionStatusActive
	if s.ended {
		status = model.SessionStatusEnded
	}
	return &model.JamSession{
		ID:              s.id,
		GuildID:         s.guildID,
		ChannelID:       s.channelID,
		Status:          status,
		SubmissionsOpen: s.submissionsOpen,
		PerUserLimit:    s.perUserLimit,
		PlaybackMode:    s.mode,
		PlaybackState:   s.playState,
		ModeRemaining:   s.remaining,
		CurrentEntryID:  s.currentID,
		StartedAt:       s.startedAt,
		EndedAt:         s.endedAt,
	}
}

func (s *Session) reactionCounts() []model.ReactionCount {
	tally := make(map[string]map[string]int)
	for key := range s.reactions {
		if tally[key.trackID] == nil {
			tally[key.trackID] = make(map[string]int)
		}
		tally[key.trackID][key.reactionType]++
	}

	out := make([]model.ReactionCount, 0, len(tally))
	for trackID, byType := range tally {
		for reactionType, count := range byType {
			out = append(out, model.ReactionCount{
				TrackID:      trackID,
				ReactionType: reactionType,
				Count:        count,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrackID != out[j].TrackID {
			return out[i].TrackID < out[j].TrackID
		}
		return out[i].ReactionType < out[j].ReactionType
	})
	return out
}

func (s *Session) reactionCountsFor(trackID string) []model.ReactionCount {
	all := s.reactionCounts()
	out := make([]model.ReactionCount, 0, 2)
	for _, count := range all {
		if count.TrackID == trackID {
			out = append(out, count)
		}
	}
	return out
}

// persistEntry hands a copy of the entry to the ordered writer.
func (s *Session) persistEntry(entry *model.QueueEntry) {
	if s.persist == nil || s.store.Queue == nil {
		return
	}
	snapshot := *entry
	store := s.store.Queue
	s.persist(func(ctx context.Context) {
		_ = store.SaveEntry(ctx, &snapshot)
	})
}

// persistQueueStatuses snapshots every entry after a bulk mutation.
func (s *Session) persistQueueStatuses() {
	if s.persist == nil || s.store.Queue == nil {
		return
	}
	snapshots := make([]*model.QueueEntry, 0, len(s.queue.entries))
	for _, entry := range s.queue.entries {
		copied := *entry
		snapshots = append(snapshots, &copied)
	}
	store := s.store.Queue
	s.persist(func(ctx context.Context) {
		for _, entry := range snapshots {
			_ = store.SaveEntry(ctx, entry)
		}
	})
}

// persistSession hands the durable session row to the ordered writer.
func (s *Session) persistSession() {
	if s.persist == nil || s.store.Sessions == nil {
		return
	}
	record := s.record()
	store := s.store.Sessions
	s.persist(func(ctx context.Context) {
		_ = store.SaveSession(ctx, record)
	})
}

func (s *Session) emit(eventType string, data interface{}) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(s.id, eventType, data)
}

func copyEntry(entry *model.QueueEntry) *model.QueueEntry {
	if entry == nil {
		return nil
	}
	copied := *entry
	return &copied
}
