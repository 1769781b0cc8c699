package scheduler

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
)

// QueueItem is one feed candidate: a fact plus the scheduling facts the
// ordering policy needs.
type QueueItem struct {
	FactID uuid.UUID
	// Due items carry the snapshot's NextDueAt; new (never-seen) items carry
	// the fact's ingestion time in IngestedAt instead.
	NextDueAt  time.Time
	IngestedAt time.Time
	Status     Status
	New        bool
}

// BuildFeed orders a session feed of at most size items: everything due
// (most overdue first), padded with never-seen facts (newest ingestion
// first). newRatio caps the new-fact share only while due items remain to
// fill the space; short due lists are always topped up with new facts rather
// than returning a short session.
func BuildFeed(due, fresh []QueueItem, size int, newRatio float64, now time.Time) []QueueItem {
	if size <= 0 {
		return nil
	}

	eligible := make([]QueueItem, 0, len(due))
	for _, it := range due {
		if !it.NextDueAt.After(now) {
			eligible = append(eligible, it)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].NextDueAt.Before(eligible[j].NextDueAt)
	})
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].IngestedAt.After(fresh[j].IngestedAt)
	})

	newBudget := size
	if len(eligible) > 0 {
		newBudget = int(float64(size) * newRatio)
	}
	dueTake := min(len(eligible), size)
	if size-dueTake < newBudget {
		// Reserve room for the new-fact share before truncating due items.
		reserved := min(newBudget, len(fresh))
		if dueTake > size-reserved {
			dueTake = size - reserved
		}
	}

	feed := make([]QueueItem, 0, size)
	feed = append(feed, eligible[:dueTake]...)
	for _, it := range fresh {
		if len(feed) >= size {
			break
		}
		feed = append(feed, it)
	}
	return feed
}

// VarietyShuffle reorders a feed pseudo-randomly with a seed derived from
// (learnerID, sessionID), so the same session sees the same order and tests
// stay reproducible. The most overdue item stays first.
func VarietyShuffle(feed []QueueItem, learnerID uuid.UUID, sessionID string) {
	if len(feed) < 3 {
		return
	}
	h := fnv.New64a()
	h.Write(learnerID[:])
	h.Write([]byte(sessionID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	rest := feed[1:]
	rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}
