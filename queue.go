package lavago

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// asyncConcurrency bounds how many AsyncTrackFunc/AsyncPredicateFunc
// invocations mapAsync/filterAsync/findAsync/someAsync/everyAsync run at
// once (spec §4.2 "helpers").
const asyncConcurrency = 4

// AsyncTrackFunc is applied to one queued track by MapAsync. It takes a
// context since callers commonly do I/O per track (e.g. re-resolving or
// enriching a track from an external source).
type AsyncTrackFunc func(ctx context.Context, t *Track, index int) (interface{}, error)

// AsyncPredicateFunc backs FilterAsync/FindAsync/SomeAsync/EveryAsync.
type AsyncPredicateFunc func(ctx context.Context, t *Track, index int) (bool, error)

// mapTracksAsync runs fn over tracks with bounded concurrency, returning
// results in the original order. The first error cancels the rest via the
// errgroup's derived context.
func mapTracksAsync(ctx context.Context, tracks []*Track, fn AsyncTrackFunc) ([]interface{}, error) {
	results := make([]interface{}, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(asyncConcurrency)
	for i, t := range tracks {
		i, t := i, t
		g.Go(func() error {
			r, err := fn(gctx, t, i)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// filterTracksAsync evaluates fn over tracks with bounded concurrency and
// returns the subset that matched, preserving original order.
func filterTracksAsync(ctx context.Context, tracks []*Track, fn AsyncPredicateFunc) ([]*Track, error) {
	keep := make([]bool, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(asyncConcurrency)
	for i, t := range tracks {
		i, t := i, t
		g.Go(func() error {
			ok, err := fn(gctx, t, i)
			if err != nil {
				return err
			}
			keep[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]*Track, 0, len(tracks))
	for i, k := range keep {
		if k {
			out = append(out, tracks[i])
		}
	}
	return out, nil
}

// findTrackAsync returns the first track (by original index) matching fn.
func findTrackAsync(ctx context.Context, tracks []*Track, fn AsyncPredicateFunc) (*Track, error) {
	matched, err := filterTracksAsync(ctx, tracks, fn)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return matched[0], nil
}

// someTrackAsync reports whether any track matches fn.
func someTrackAsync(ctx context.Context, tracks []*Track, fn AsyncPredicateFunc) (bool, error) {
	matched, err := filterTracksAsync(ctx, tracks, fn)
	if err != nil {
		return false, err
	}
	return len(matched) > 0, nil
}

// everyTrackAsync reports whether every track matches fn.
func everyTrackAsync(ctx context.Context, tracks []*Track, fn AsyncPredicateFunc) (bool, error) {
	matched, err := filterTracksAsync(ctx, tracks, fn)
	if err != nil {
		return false, err
	}
	return len(matched) == len(tracks), nil
}

// globalRand backs shuffles on backends (like RedisQueue) that don't own a
// per-guild *rand.Rand.
var globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// QueueAction tags the kind of mutation that produced a state-update event
// (spec §3 "Queue" invariants).
type QueueAction string

const (
	QueueActionAdd          QueueAction = "add"
	QueueActionRemove       QueueAction = "remove"
	QueueActionClear        QueueAction = "clear"
	QueueActionShuffle      QueueAction = "shuffle"
	QueueActionRoundRobin   QueueAction = "roundRobin"
	QueueActionUserBlock    QueueAction = "userBlock"
	QueueActionAutoPlayAdd  QueueAction = "autoPlayAdd"
)

// QueueEvent is emitted once per ordering-changing mutation.
type QueueEvent struct {
	GuildID string
	Action  QueueAction
}

// Queue is the pluggable per-guild track store (spec §4.2). All three
// backends (in-process, JSON-file, external KV) implement this interface
// with identical observable behavior.
type Queue interface {
	GetCurrent() *Track
	SetCurrent(t *Track) error

	GetPrevious() []*Track
	AddPrevious(t *Track) error
	SetPrevious(tracks []*Track) error
	PopPrevious() (*Track, error)
	ClearPrevious() error

	Size() int
	TotalSize() int
	Duration() int64

	Add(tracks []*Track, offset int) error
	Remove(start, end int) error
	Clear() error
	Dequeue() (*Track, error)
	EnqueueFront(t *Track) error

	GetTracks() []*Track
	GetSlice(start, end int) ([]*Track, error)
	ModifyAt(start, deleteCount int, items ...*Track) error

	Shuffle() error
	UserBlockShuffle() error
	RoundRobinShuffle() error

	// MapAsync/FilterAsync/FindAsync/SomeAsync/EveryAsync run a
	// possibly-I/O-bound function over the upcoming tracks with bounded
	// concurrency (spec §4.2 "helpers").
	MapAsync(ctx context.Context, fn AsyncTrackFunc) ([]interface{}, error)
	FilterAsync(ctx context.Context, fn AsyncPredicateFunc) ([]*Track, error)
	FindAsync(ctx context.Context, fn AsyncPredicateFunc) (*Track, error)
	SomeAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error)
	EveryAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error)

	// Events returns the buffered channel (capacity 16) of state-update
	// notifications for this queue; an event is dropped when the buffer is
	// full. Nothing in this package reads the channel.
	Events() <-chan QueueEvent
}

func fisherYates(tracks []*Track, rng *rand.Rand) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

// groupByRequester groups tracks by requester identity, preserving
// per-group order, for userBlockShuffle/roundRobinShuffle (spec §4.2).
func groupByRequester(tracks []*Track) ([]string, map[string][]*Track) {
	order := []string{}
	groups := map[string][]*Track{}
	for _, t := range tracks {
		key := requesterKey(t)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], t)
	}
	return order, groups
}

func requesterKey(t *Track) string {
	if t == nil || t.Requester == nil {
		return ""
	}
	type hasID interface{ ID() string }
	if h, ok := t.Requester.(hasID); ok {
		return h.ID()
	}
	return "unknown"
}

// roundRobinInterleave performs the round-robin emission shared by
// userBlockShuffle (groups kept in original order) and roundRobinShuffle
// (groups pre-shuffled by the caller).
func roundRobinInterleave(order []string, groups map[string][]*Track) []*Track {
	out := make([]*Track, 0)
	idx := map[string]int{}
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	for len(out) < total {
		for _, key := range order {
			i := idx[key]
			if i >= len(groups[key]) {
				continue
			}
			out = append(out, groups[key][i])
			idx[key] = i + 1
		}
	}
	return out
}

func trackIdentifier(t *Track) string {
	if t == nil {
		return ""
	}
	return t.Identifier
}
