package lavago

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// jsonQueueSnapshot is the on-disk representation; PluginInfo/CustomData
// round-trip as map[string]interface{} through encoding/json, so their
// contents survive but key order and number formatting are not preserved
// byte for byte (spec §4.2).
type jsonQueueSnapshot struct {
	Current  *Track   `json:"current"`
	Upcoming []*Track `json:"upcoming"`
	Previous []*Track `json:"previous"`
}

// JSONQueue is the on-disk Queue backend. It keeps an in-memory MemoryQueue
// as its working copy and flushes a full snapshot to disk after every
// mutation, using atomic write-to-temp+rename (same pattern as the
// session-id file, spec §5 "Shared resources").
type JSONQueue struct {
	*MemoryQueue
	path string
}

func NewJSONQueue(guildID string, maxPreviousTracks int, dir string) (*JSONQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errCatastrophic(ErrGeneral, "", err, "create queue dir: %v", err)
	}
	q := &JSONQueue{
		MemoryQueue: NewMemoryQueue(guildID, maxPreviousTracks),
		path:        filepath.Join(dir, guildID+".queue.json"),
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *JSONQueue) load() error {
	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errCatastrophic(ErrGeneral, "", err, "read queue file: %v", err)
	}
	var snap jsonQueueSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errCatastrophic(ErrGeneral, "", err, "decode queue file: %v", err)
	}
	q.current = snap.Current
	for _, t := range snap.Upcoming {
		q.upcoming.Add(t)
	}
	for _, t := range snap.Previous {
		q.previous.Add(t)
	}
	return nil
}

func (q *JSONQueue) flush() error {
	snap := jsonQueueSnapshot{
		Current:  q.GetCurrent(),
		Upcoming: q.GetTracks(),
		Previous: q.GetPrevious(),
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return errCatastrophic(ErrGeneral, "", err, "encode queue file: %v", err)
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errCatastrophic(ErrGeneral, "", err, "write queue temp file: %v", err)
	}
	return os.Rename(tmp, q.path)
}

// Every mutating method delegates to MemoryQueue then flushes to disk.

func (q *JSONQueue) SetCurrent(t *Track) error {
	if err := q.MemoryQueue.SetCurrent(t); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) AddPrevious(t *Track) error {
	if err := q.MemoryQueue.AddPrevious(t); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) SetPrevious(tracks []*Track) error {
	if err := q.MemoryQueue.SetPrevious(tracks); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) PopPrevious() (*Track, error) {
	t, err := q.MemoryQueue.PopPrevious()
	if err != nil {
		return nil, err
	}
	return t, q.flush()
}

func (q *JSONQueue) ClearPrevious() error {
	if err := q.MemoryQueue.ClearPrevious(); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) Add(tracks []*Track, offset int) error {
	if err := q.MemoryQueue.Add(tracks, offset); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) Remove(start, end int) error {
	if err := q.MemoryQueue.Remove(start, end); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) Clear() error {
	if err := q.MemoryQueue.Clear(); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) Dequeue() (*Track, error) {
	t, err := q.MemoryQueue.Dequeue()
	if err != nil {
		return nil, err
	}
	return t, q.flush()
}

func (q *JSONQueue) EnqueueFront(t *Track) error {
	if err := q.MemoryQueue.EnqueueFront(t); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) ModifyAt(start, deleteCount int, items ...*Track) error {
	if err := q.MemoryQueue.ModifyAt(start, deleteCount, items...); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) Shuffle() error {
	if err := q.MemoryQueue.Shuffle(); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) UserBlockShuffle() error {
	if err := q.MemoryQueue.UserBlockShuffle(); err != nil {
		return err
	}
	return q.flush()
}

func (q *JSONQueue) RoundRobinShuffle() error {
	if err := q.MemoryQueue.RoundRobinShuffle(); err != nil {
		return err
	}
	return q.flush()
}
