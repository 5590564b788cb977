package jam

import (
	"time"

	"JamFM/model"

	"github.com/google/uuid"
)

// queue is the ordered entry list for one session. It carries no lock of
// its own: every method runs under the owning session's mutex, which is
// what linearizes queue and session mutations together (an enqueue can
// never interleave with a clear, a pop_next always has one winner).
type queue struct {
	sessionID string
	entries   []*model.QueueEntry // insertion order == ascending position
	nextPos   int
}

func newQueue(sessionID string) *queue {
	return &queue{sessionID: sessionID, nextPos: 1}
}

// enqueue appends an entry at the next monotonic position. Positions are
// identities: they are never reassigned or reused, even after removals.
func (q *queue) enqueue(trackID string, requestedBy int64) *model.QueueEntry {
	now := time.Now()
	entry := &model.QueueEntry{
		ID:          uuid.NewString(),
		SessionID:   q.sessionID,
		TrackID:     trackID,
		Position:    q.nextPos,
		Status:      model.EntryStatusPending,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.nextPos++
	q.entries = append(q.entries, entry)
	return entry
}

// remove marks the entry at the given position removed. Remaining entries
// keep their positions; ordering for pop is by ascending position among
// pending entries only.
func (q *queue) remove(position int) *model.QueueEntry {
	for _, entry := range q.entries {
		if entry.Position == position && entry.Status == model.EntryStatusPending {
			entry.Status = model.EntryStatusRemoved
			entry.UpdatedAt = time.Now()
			return entry
		}
	}
	return nil
}

// clear marks every pending entry removed and reports how many it touched.
func (q *queue) clear() int {
	now := time.Now()
	cleared := 0
	for _, entry := range q.entries {
		if entry.Status == model.EntryStatusPending {
			entry.Status = model.EntryStatusRemoved
			entry.UpdatedAt = now
			cleared++
		}
	}
	return cleared
}

// popNext promotes the lowest-position pending entry to playing. Entries
// are stored in insertion order, so the first pending one wins.
func (q *queue) popNext() *model.QueueEntry {
	for _, entry := range q.entries {
		if entry.Status == model.EntryStatusPending {
			entry.Status = model.EntryStatusPlaying
			entry.UpdatedAt = time.Now()
			return entry
		}
	}
	return nil
}

// byID looks an entry up by its ID.
func (q *queue) byID(entryID string) *model.QueueEntry {
	for _, entry := range q.entries {
		if entry.ID == entryID {
			return entry
		}
	}
	return nil
}

// pendingCountFor counts pending entries held by one requester.
func (q *queue) pendingCountFor(userID int64) int {
	count := 0
	for _, entry := range q.entries {
		if entry.Status == model.EntryStatusPending && entry.RequestedBy == userID {
			count++
		}
	}
	return count
}

// pending returns copies of the pending entries in pop order, capped at
// limit when limit > 0.
func (q *queue) pending(limit int) []*model.QueueEntry {
	out := make([]*model.QueueEntry, 0)
	for _, entry := range q.entries {
		if entry.Status != model.EntryStatusPending {
			continue
		}
		copied := *entry
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
