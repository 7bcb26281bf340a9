package store

import (
	"sort"
	"sync"
	"time"

	"orderup-go/event"
	"orderup-go/round"
	"orderup-go/score"
)

// Store 维护最近若干回合的结算记录，仅在内存中。
// 写入发生在引擎事件循环里，读取来自 HTTP 等其他 goroutine。
type Store struct {
	limit int
	now   func() time.Time

	mu      sync.RWMutex
	current int
	started time.Time
	open    bool // 已开局、尚未结算
	records []RoundRecord // 按回合顺序，最旧在前
}

// RoundRecord 一回合的结算结果
type RoundRecord struct {
	Round     int           `json:"round"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Summary   score.Summary `json:"-"`
}

// New 创建记录最近 limit 回合的 Store，limit<=0 时取 20。
func New(limit int) *Store {
	if limit <= 0 {
		limit = 20
	}
	return &Store{
		limit:   limit,
		now:     time.Now,
		records: make([]RoundRecord, 0, limit),
	}
}

// Attach 订阅 hub 上的开局和结算事件
func (s *Store) Attach(hub *event.Hub) event.Subscription {
	return hub.Tap(func(env event.Envelope) {
		switch e := env.Payload.(type) {
		case round.StartedEvent:
			s.Open(e.Round)
		case score.SummaryEvent:
			s.Record(e.Summary)
		}
	})
}

// Open 标记回合开始；同一回合内重开会刷新开始时间
func (s *Store) Open(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = round
	s.started = s.now()
	s.open = true
}

// Record 为进行中的回合追加结算并关闭它，超过容量时丢弃最旧的。
// 没有进行中的回合时（未开局就结束，或结算后再次结束）不记录，返回 false。
func (s *Store) Record(sum score.Summary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	s.open = false
	rec := RoundRecord{Round: s.current, StartedAt: s.started, EndedAt: s.now(), Summary: sum}
	if len(s.records) == s.limit {
		copy(s.records, s.records[1:])
		s.records = s.records[:len(s.records)-1]
	}
	s.records = append(s.records, rec)
	return true
}

// Recent 最近 n 条记录，最新在前；n<=0 返回全部
func (s *Store) Recent(n int) []RoundRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.records) {
		n = len(s.records)
	}
	out := make([]RoundRecord, 0, n)
	for i := len(s.records) - 1; i >= len(s.records)-n; i-- {
		out = append(out, s.records[i])
	}
	return out
}

// Best 得分最高的回合，同分取较早的
func (s *Store) Best() (RoundRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return RoundRecord{}, false
	}
	sorted := make([]RoundRecord, len(s.records))
	copy(sorted, s.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Summary.Score > sorted[j].Summary.Score
	})
	return sorted[0], true
}

// Len 当前记录数
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
