package store

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"orderup-go/event"
	"orderup-go/game"
	"orderup-go/order"
	"orderup-go/round"
	"orderup-go/score"
)

func TestStoreRecordsRoundsFromHub(t *testing.T) {
	hub := event.NewHub()
	st := New(2)
	clock := time.Unix(1_700_000_000, 0)
	st.now = func() time.Time { return clock }
	sub := st.Attach(hub)

	started := event.NewTopic[round.StartedEvent](hub, round.KindStarted)
	summary := event.NewTopic[score.SummaryEvent](hub, score.KindSummary)

	for i, pts := range []int{50, 125, 75} {
		started.Publish(round.StartedEvent{Round: i + 1, Duration: time.Minute})
		clock = clock.Add(time.Minute)
		summary.Publish(score.SummaryEvent{Summary: score.Summary{Score: pts}})
	}

	if st.Len() != 2 {
		t.Fatalf("expected capacity-bound 2 records, got %d", st.Len())
	}
	recent := st.Recent(0)
	if recent[0].Round != 3 || recent[1].Round != 2 {
		t.Fatalf("expected newest first [3 2], got [%d %d]", recent[0].Round, recent[1].Round)
	}
	if d := recent[0].EndedAt.Sub(recent[0].StartedAt); d != time.Minute {
		t.Fatalf("unexpected round span %s", d)
	}
	if got := st.Recent(1); len(got) != 1 || got[0].Summary.Score != 75 {
		t.Fatalf("unexpected Recent(1): %+v", got)
	}

	best, ok := st.Best()
	if !ok || best.Round != 2 || best.Summary.Score != 125 {
		t.Fatalf("unexpected best round: %+v", best)
	}

	hub.Untap(sub)
	summary.Publish(score.SummaryEvent{Summary: score.Summary{Score: 1}})
	if st.Len() != 2 {
		t.Fatalf("detached store still recording")
	}
}

// TestStoreSkipsRoundsNeverPlayed 只有开局过的回合才进入历史
func TestStoreSkipsRoundsNeverPlayed(t *testing.T) {
	products := []order.Product{{ID: "p", Name: "P", Category: order.CategoryFood, Rarity: order.RarityCommon, SpawnWeight: 1, Available: true}}
	defs := []order.Definition{{ID: "s", Type: order.TypeStandard, Difficulty: order.DifficultyEasy,
		RequiredProducts: []string{"p"}, BasePoints: 10, PriorityLevel: 1}}
	cat, err := order.NewCatalog(products, defs)
	if err != nil {
		t.Fatal(err)
	}

	hub := event.NewHub()
	st := New(0)
	st.Attach(hub)
	s, err := game.New(game.DefaultConfig(), cat, game.WithHub(hub), game.WithRand(rand.New(rand.NewPCG(1, 1))))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.EndRound() // 等待中直接结束
	if st.Len() != 0 {
		t.Fatalf("end while waiting recorded %d rounds", st.Len())
	}

	s.StartRound()
	s.EndRound()
	s.EndRound() // 结算后再次结束
	if st.Len() != 1 {
		t.Fatalf("expected 1 played round in history, got %d", st.Len())
	}
	if got := st.Recent(0)[0].Round; got != 1 {
		t.Fatalf("expected round 1, got %d", got)
	}

	s.StartRound()
	s.EndRound()
	if st.Len() != 2 || st.Recent(1)[0].Round != 2 {
		t.Fatalf("second round not recorded: %+v", st.Recent(0))
	}
}

func TestStoreRecordWithoutOpenRound(t *testing.T) {
	st := New(0)
	if st.Record(score.Summary{Score: 10}) {
		t.Fatalf("record accepted without an open round")
	}
	st.Open(1)
	if !st.Record(score.Summary{Score: 10}) {
		t.Fatalf("record rejected for open round")
	}
	if st.Record(score.Summary{Score: 10}) {
		t.Fatalf("round recorded twice")
	}
}

func TestStoreBestEmpty(t *testing.T) {
	if _, ok := New(0).Best(); ok {
		t.Fatalf("empty store has no best round")
	}
}

// TestStore_ConcurrentReadWrite 并发读写不应出现数据竞争
func TestStore_ConcurrentReadWrite(t *testing.T) {
	st := New(10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			st.Open(i + 1)
			st.Record(score.Summary{Score: i})
		}
	}()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = st.Recent(5)
				_, _ = st.Best()
			}
		}()
	}
	wg.Wait()

	if st.Len() != 10 {
		t.Fatalf("expected 10 records, got %d", st.Len())
	}
	if got := st.Recent(1)[0].Summary.Score; got != 199 {
		t.Fatalf("expected last record 199, got %d", got)
	}
}
