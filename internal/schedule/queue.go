package schedule

import (
	"container/heap"
	"sync"
	"time"
)

// Entry is one scheduled rule in the queue.
type Entry struct {
	RuleID  int64
	NextRun time.Time
	index   int
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].NextRun.Equal(h[j].NextRun) {
		return h[i].RuleID < h[j].RuleID
	}
	return h[i].NextRun.Before(h[j].NextRun)
}
func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is a min-heap of rules keyed by next run time. A zero NextRun sorts
// first and is always due. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items entryHeap
	byID  map[int64]*Entry
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{byID: map[int64]*Entry{}}
}

// Set inserts a rule or moves it to a new run time.
func (q *Queue) Set(ruleID int64, nextRun time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.byID[ruleID]; ok {
		e.NextRun = nextRun
		heap.Fix(&q.items, e.index)
		return
	}
	e := &Entry{RuleID: ruleID, NextRun: nextRun}
	heap.Push(&q.items, e)
	q.byID[ruleID] = e
}

// Remove drops a rule. Removing an unknown rule is a no-op.
func (q *Queue) Remove(ruleID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[ruleID]
	if !ok {
		return
	}
	heap.Remove(&q.items, e.index)
	delete(q.byID, ruleID)
}

// PopDue removes and returns every rule whose next run is strictly before now,
// earliest first.
func (q *Queue) PopDue(now time.Time) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Entry
	for q.items.Len() > 0 {
		top := q.items[0]
		if !top.NextRun.Before(now) {
			break
		}
		heap.Pop(&q.items)
		delete(q.byID, top.RuleID)
		due = append(due, Entry{RuleID: top.RuleID, NextRun: top.NextRun})
	}
	return due
}

// Peek returns the earliest entry without removing it.
func (q *Queue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return Entry{}, false
	}
	top := q.items[0]
	return Entry{RuleID: top.RuleID, NextRun: top.NextRun}, true
}

// Len returns the number of scheduled rules.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
