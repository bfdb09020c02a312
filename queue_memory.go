package lavago

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/emirpasic/gods/lists/arraylist"
)

// MemoryQueue is the in-process Queue backend, grounded on the teacher's
// `Player.Queue lists.List` (gods arraylist). Dequeues, shuffles and
// mutations are served from memory with no I/O.
type MemoryQueue struct {
	mu               sync.Mutex
	guildID          string
	current          *Track
	upcoming         *arraylist.List
	previous         *arraylist.List
	maxPreviousTracks int
	rng              *rand.Rand
	events           chan QueueEvent
}

func NewMemoryQueue(guildID string, maxPreviousTracks int) *MemoryQueue {
	if maxPreviousTracks <= 0 {
		maxPreviousTracks = 20
	}
	return &MemoryQueue{
		guildID:           guildID,
		upcoming:          arraylist.New(),
		previous:          arraylist.New(),
		maxPreviousTracks: maxPreviousTracks,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		events:            make(chan QueueEvent, 16),
	}
}

func (q *MemoryQueue) emit(action QueueAction) {
	select {
	case q.events <- QueueEvent{GuildID: q.guildID, Action: action}:
	default:
	}
}

func (q *MemoryQueue) Events() <-chan QueueEvent { return q.events }

func (q *MemoryQueue) GetCurrent() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

func (q *MemoryQueue) SetCurrent(t *Track) error {
	q.mu.Lock()
	q.current = t
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) upcomingSlice() []*Track {
	out := make([]*Track, q.upcoming.Size())
	for i, v := range q.upcoming.Values() {
		out[i] = v.(*Track)
	}
	return out
}

func (q *MemoryQueue) GetPrevious() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Track, q.previous.Size())
	for i, v := range q.previous.Values() {
		out[i] = v.(*Track)
	}
	return out
}

// AddPrevious inserts at index 0; duplicates (by identifier) are dropped
// silently, per spec §4.2 (in-process variant dedups).
func (q *MemoryQueue) AddPrevious(t *Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range q.previous.Values() {
		if trackIdentifier(v.(*Track)) == trackIdentifier(t) {
			return nil
		}
	}
	q.previous.Insert(0, t)
	for q.previous.Size() > q.maxPreviousTracks {
		q.previous.Remove(q.previous.Size() - 1)
	}
	return nil
}

func (q *MemoryQueue) SetPrevious(tracks []*Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.previous.Clear()
	for _, t := range tracks {
		q.previous.Add(t)
	}
	return nil
}

func (q *MemoryQueue) PopPrevious() (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.previous.Get(0)
	if !ok {
		return nil, errBusiness(ErrNoPreviousTrack, "no previous track")
	}
	q.previous.Remove(0)
	return v.(*Track), nil
}

func (q *MemoryQueue) ClearPrevious() error {
	q.mu.Lock()
	q.previous.Clear()
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.upcoming.Size()
}

func (q *MemoryQueue) TotalSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.upcoming.Size()
	if q.current != nil {
		n++
	}
	return n
}

func (q *MemoryQueue) Duration() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	var d int64
	if q.current != nil {
		d += q.current.DurationMs
	}
	for _, v := range q.upcoming.Values() {
		d += v.(*Track).DurationMs
	}
	return d
}

// Add promotes the first track to current when none is set, then appends
// the rest (or splices at offset); spec §3/§4.2.
func (q *MemoryQueue) Add(tracks []*Track, offset int) error {
	if len(tracks) == 0 {
		return nil
	}
	q.mu.Lock()
	start := 0
	if q.current == nil {
		q.current = tracks[0]
		start = 1
	}
	rest := tracks[start:]
	if offset < 0 {
		q.mu.Unlock()
		return errValidation(ErrInvalidArgument, "add: negative offset %d", offset)
	}
	if offset == 0 {
		for _, t := range rest {
			q.upcoming.Add(t)
		}
	} else {
		if offset > q.upcoming.Size() {
			q.mu.Unlock()
			return errValidation(ErrInvalidArgument, "add: offset %d out of range (size=%d)", offset, q.upcoming.Size())
		}
		for i, t := range rest {
			q.upcoming.Insert(offset+i, t)
		}
	}
	q.mu.Unlock()
	q.emit(QueueActionAdd)
	return nil
}

func (q *MemoryQueue) Remove(start, end int) error {
	q.mu.Lock()
	size := q.upcoming.Size()
	if start >= end || start >= size || start < 0 {
		q.mu.Unlock()
		return errBusiness(ErrOutOfRange, "remove: invalid range [%d,%d) over size %d", start, end, size)
	}
	if end > size {
		end = size
	}
	for i := end - 1; i >= start; i-- {
		q.upcoming.Remove(i)
	}
	q.mu.Unlock()
	q.emit(QueueActionRemove)
	return nil
}

func (q *MemoryQueue) Clear() error {
	q.mu.Lock()
	q.upcoming.Clear()
	q.current = nil
	q.mu.Unlock()
	q.emit(QueueActionClear)
	return nil
}

func (q *MemoryQueue) Dequeue() (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	v, ok := q.upcoming.Get(0)
	if !ok {
		return nil, errBusiness(ErrQueueEmpty, "queue is empty")
	}
	q.upcoming.Remove(0)
	return v.(*Track), nil
}

func (q *MemoryQueue) EnqueueFront(t *Track) error {
	q.mu.Lock()
	q.upcoming.Insert(0, t)
	q.mu.Unlock()
	q.emit(QueueActionAdd)
	return nil
}

func (q *MemoryQueue) GetTracks() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.upcomingSlice()
}

func (q *MemoryQueue) GetSlice(start, end int) ([]*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	size := q.upcoming.Size()
	if start < 0 || start > end || end > size {
		return nil, errBusiness(ErrOutOfRange, "getSlice: invalid range [%d,%d) over size %d", start, end, size)
	}
	out := make([]*Track, 0, end-start)
	for i := start; i < end; i++ {
		v, _ := q.upcoming.Get(i)
		out = append(out, v.(*Track))
	}
	return out, nil
}

func (q *MemoryQueue) ModifyAt(start, deleteCount int, items ...*Track) error {
	q.mu.Lock()
	size := q.upcoming.Size()
	if start < 0 || start > size {
		q.mu.Unlock()
		return errBusiness(ErrOutOfRange, "modifyAt: start %d out of range over size %d", start, size)
	}
	end := start + deleteCount
	if end > size {
		end = size
	}
	for i := end - 1; i >= start; i-- {
		q.upcoming.Remove(i)
	}
	for i, t := range items {
		q.upcoming.Insert(start+i, t)
	}
	q.mu.Unlock()
	q.emit(QueueActionAdd)
	return nil
}

func (q *MemoryQueue) Shuffle() error {
	q.mu.Lock()
	tracks := q.upcomingSliceLocked()
	fisherYates(tracks, q.rng)
	q.replaceUpcomingLocked(tracks)
	q.mu.Unlock()
	q.emit(QueueActionShuffle)
	return nil
}

func (q *MemoryQueue) upcomingSliceLocked() []*Track {
	out := make([]*Track, q.upcoming.Size())
	for i, v := range q.upcoming.Values() {
		out[i] = v.(*Track)
	}
	return out
}

func (q *MemoryQueue) replaceUpcomingLocked(tracks []*Track) {
	q.upcoming.Clear()
	for _, t := range tracks {
		q.upcoming.Add(t)
	}
}

func (q *MemoryQueue) UserBlockShuffle() error {
	q.mu.Lock()
	tracks := q.upcomingSliceLocked()
	order, groups := groupByRequester(tracks)
	out := roundRobinInterleave(order, groups)
	q.replaceUpcomingLocked(out)
	q.mu.Unlock()
	q.emit(QueueActionUserBlock)
	return nil
}

func (q *MemoryQueue) RoundRobinShuffle() error {
	q.mu.Lock()
	tracks := q.upcomingSliceLocked()
	order, groups := groupByRequester(tracks)
	for _, key := range order {
		fisherYates(groups[key], q.rng)
	}
	out := roundRobinInterleave(order, groups)
	q.replaceUpcomingLocked(out)
	q.mu.Unlock()
	q.emit(QueueActionRoundRobin)
	return nil
}

func (q *MemoryQueue) MapAsync(ctx context.Context, fn AsyncTrackFunc) ([]interface{}, error) {
	return mapTracksAsync(ctx, q.GetTracks(), fn)
}

func (q *MemoryQueue) FilterAsync(ctx context.Context, fn AsyncPredicateFunc) ([]*Track, error) {
	return filterTracksAsync(ctx, q.GetTracks(), fn)
}

func (q *MemoryQueue) FindAsync(ctx context.Context, fn AsyncPredicateFunc) (*Track, error) {
	return findTrackAsync(ctx, q.GetTracks(), fn)
}

func (q *MemoryQueue) SomeAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error) {
	return someTrackAsync(ctx, q.GetTracks(), fn)
}

func (q *MemoryQueue) EveryAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error) {
	return everyTrackAsync(ctx, q.GetTracks(), fn)
}
