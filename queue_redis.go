package lavago

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is the external-KV Queue backend (spec §4.2). Keys are
// "<prefix>:queue:<guildId>:{current|previous|tracks}"; every operation
// round-trips to Redis (spec §5 "external-KV variant suspends on every
// operation"). Unlike MemoryQueue, AddPrevious performs no deduplication,
// per spec §4.2.
type RedisQueue struct {
	client  *redis.Client
	guildID string
	prefix  string
	maxPrev int
	events  chan QueueEvent
}

func NewRedisQueue(client *redis.Client, prefix, guildID string, maxPreviousTracks int) *RedisQueue {
	if maxPreviousTracks <= 0 {
		maxPreviousTracks = 20
	}
	return &RedisQueue{
		client:  client,
		guildID: guildID,
		prefix:  prefix,
		maxPrev: maxPreviousTracks,
		events:  make(chan QueueEvent, 16),
	}
}

func (q *RedisQueue) Events() <-chan QueueEvent { return q.events }

func (q *RedisQueue) emit(action QueueAction) {
	select {
	case q.events <- QueueEvent{GuildID: q.guildID, Action: action}:
	default:
	}
}

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("%s:queue:%s:%s", q.prefix, q.guildID, suffix)
}

func encodeTrack(t *Track) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", errCatastrophic(ErrGeneral, "", err, "encode track: %v", err)
	}
	return string(data), nil
}

func decodeTrack(s string) (*Track, error) {
	var t Track
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, errCatastrophic(ErrGeneral, "", err, "decode track: %v", err)
	}
	return &t, nil
}

func (q *RedisQueue) GetCurrent() *Track {
	ctx := context.Background()
	s, err := q.client.Get(ctx, q.key("current")).Result()
	if err != nil {
		return nil
	}
	t, err := decodeTrack(s)
	if err != nil {
		return nil
	}
	return t
}

func (q *RedisQueue) SetCurrent(t *Track) error {
	ctx := context.Background()
	if t == nil {
		return q.client.Del(ctx, q.key("current")).Err()
	}
	s, err := encodeTrack(t)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.key("current"), s, 0).Err()
}

func (q *RedisQueue) readList(suffix string) ([]*Track, error) {
	ctx := context.Background()
	raw, err := q.client.LRange(ctx, q.key(suffix), 0, -1).Result()
	if err != nil {
		return nil, errTransport(ErrRESTRequestFailed, "", 0, err, "redis lrange %s: %v", suffix, err)
	}
	out := make([]*Track, 0, len(raw))
	for _, s := range raw {
		t, err := decodeTrack(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (q *RedisQueue) writeList(suffix string, tracks []*Track) error {
	ctx := context.Background()
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, q.key(suffix))
	if len(tracks) > 0 {
		vals := make([]interface{}, 0, len(tracks))
		for _, t := range tracks {
			s, err := encodeTrack(t)
			if err != nil {
				return err
			}
			vals = append(vals, s)
		}
		pipe.RPush(ctx, q.key(suffix), vals...)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errTransport(ErrRESTRequestFailed, "", 0, err, "redis write list %s: %v", suffix, err)
	}
	return nil
}

func (q *RedisQueue) GetPrevious() []*Track {
	out, err := q.readList("previous")
	if err != nil {
		return nil
	}
	return out
}

// AddPrevious performs no deduplication in the KV variant (spec §4.2).
func (q *RedisQueue) AddPrevious(t *Track) error {
	prev, err := q.readList("previous")
	if err != nil {
		return err
	}
	prev = append([]*Track{t}, prev...)
	if len(prev) > q.maxPrev {
		prev = prev[:q.maxPrev]
	}
	return q.writeList("previous", prev)
}

func (q *RedisQueue) SetPrevious(tracks []*Track) error {
	return q.writeList("previous", tracks)
}

func (q *RedisQueue) PopPrevious() (*Track, error) {
	prev, err := q.readList("previous")
	if err != nil {
		return nil, err
	}
	if len(prev) == 0 {
		return nil, errBusiness(ErrNoPreviousTrack, "no previous track")
	}
	head := prev[0]
	if err := q.writeList("previous", prev[1:]); err != nil {
		return nil, err
	}
	return head, nil
}

func (q *RedisQueue) ClearPrevious() error {
	return q.client.Del(context.Background(), q.key("previous")).Err()
}

func (q *RedisQueue) Size() int {
	n, err := q.client.LLen(context.Background(), q.key("tracks")).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (q *RedisQueue) TotalSize() int {
	n := q.Size()
	if q.GetCurrent() != nil {
		n++
	}
	return n
}

func (q *RedisQueue) Duration() int64 {
	var d int64
	if c := q.GetCurrent(); c != nil {
		d += c.DurationMs
	}
	for _, t := range q.GetTracks() {
		d += t.DurationMs
	}
	return d
}

func (q *RedisQueue) Add(tracks []*Track, offset int) error {
	if len(tracks) == 0 {
		return nil
	}
	start := 0
	if q.GetCurrent() == nil {
		if err := q.SetCurrent(tracks[0]); err != nil {
			return err
		}
		start = 1
	}
	rest := tracks[start:]
	if len(rest) == 0 {
		q.emit(QueueActionAdd)
		return nil
	}
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	if offset < 0 || offset > len(existing) {
		return errValidation(ErrInvalidArgument, "add: offset %d out of range (size=%d)", offset, len(existing))
	}
	if offset == 0 {
		offset = len(existing)
	}
	merged := make([]*Track, 0, len(existing)+len(rest))
	merged = append(merged, existing[:offset]...)
	merged = append(merged, rest...)
	merged = append(merged, existing[offset:]...)
	if err := q.writeList("tracks", merged); err != nil {
		return err
	}
	q.emit(QueueActionAdd)
	return nil
}

func (q *RedisQueue) Remove(start, end int) error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	if start >= end || start >= len(existing) || start < 0 {
		return errBusiness(ErrOutOfRange, "remove: invalid range [%d,%d) over size %d", start, end, len(existing))
	}
	if end > len(existing) {
		end = len(existing)
	}
	merged := append(append([]*Track{}, existing[:start]...), existing[end:]...)
	if err := q.writeList("tracks", merged); err != nil {
		return err
	}
	q.emit(QueueActionRemove)
	return nil
}

func (q *RedisQueue) Clear() error {
	if err := q.SetCurrent(nil); err != nil {
		return err
	}
	if err := q.writeList("tracks", nil); err != nil {
		return err
	}
	q.emit(QueueActionClear)
	return nil
}

func (q *RedisQueue) Dequeue() (*Track, error) {
	existing, err := q.readList("tracks")
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, errBusiness(ErrQueueEmpty, "queue is empty")
	}
	head := existing[0]
	if err := q.writeList("tracks", existing[1:]); err != nil {
		return nil, err
	}
	return head, nil
}

func (q *RedisQueue) EnqueueFront(t *Track) error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	merged := append([]*Track{t}, existing...)
	if err := q.writeList("tracks", merged); err != nil {
		return err
	}
	q.emit(QueueActionAdd)
	return nil
}

func (q *RedisQueue) GetTracks() []*Track {
	out, err := q.readList("tracks")
	if err != nil {
		return nil
	}
	return out
}

func (q *RedisQueue) GetSlice(start, end int) ([]*Track, error) {
	existing, err := q.readList("tracks")
	if err != nil {
		return nil, err
	}
	if start < 0 || start > end || end > len(existing) {
		return nil, errBusiness(ErrOutOfRange, "getSlice: invalid range [%d,%d) over size %d", start, end, len(existing))
	}
	return existing[start:end], nil
}

func (q *RedisQueue) ModifyAt(start, deleteCount int, items ...*Track) error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	if start < 0 || start > len(existing) {
		return errBusiness(ErrOutOfRange, "modifyAt: start %d out of range over size %d", start, len(existing))
	}
	end := start + deleteCount
	if end > len(existing) {
		end = len(existing)
	}
	merged := make([]*Track, 0, len(existing)-(end-start)+len(items))
	merged = append(merged, existing[:start]...)
	merged = append(merged, items...)
	merged = append(merged, existing[end:]...)
	if err := q.writeList("tracks", merged); err != nil {
		return err
	}
	q.emit(QueueActionAdd)
	return nil
}

func (q *RedisQueue) Shuffle() error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	fisherYates(existing, globalRand)
	if err := q.writeList("tracks", existing); err != nil {
		return err
	}
	q.emit(QueueActionShuffle)
	return nil
}

func (q *RedisQueue) UserBlockShuffle() error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	order, groups := groupByRequester(existing)
	out := roundRobinInterleave(order, groups)
	if err := q.writeList("tracks", out); err != nil {
		return err
	}
	q.emit(QueueActionUserBlock)
	return nil
}

func (q *RedisQueue) RoundRobinShuffle() error {
	existing, err := q.readList("tracks")
	if err != nil {
		return err
	}
	order, groups := groupByRequester(existing)
	for _, key := range order {
		fisherYates(groups[key], globalRand)
	}
	out := roundRobinInterleave(order, groups)
	if err := q.writeList("tracks", out); err != nil {
		return err
	}
	q.emit(QueueActionRoundRobin)
	return nil
}

func (q *RedisQueue) MapAsync(ctx context.Context, fn AsyncTrackFunc) ([]interface{}, error) {
	return mapTracksAsync(ctx, q.GetTracks(), fn)
}

func (q *RedisQueue) FilterAsync(ctx context.Context, fn AsyncPredicateFunc) ([]*Track, error) {
	return filterTracksAsync(ctx, q.GetTracks(), fn)
}

func (q *RedisQueue) FindAsync(ctx context.Context, fn AsyncPredicateFunc) (*Track, error) {
	return findTrackAsync(ctx, q.GetTracks(), fn)
}

func (q *RedisQueue) SomeAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error) {
	return someTrackAsync(ctx, q.GetTracks(), fn)
}

func (q *RedisQueue) EveryAsync(ctx context.Context, fn AsyncPredicateFunc) (bool, error) {
	return everyTrackAsync(ctx, q.GetTracks(), fn)
}
