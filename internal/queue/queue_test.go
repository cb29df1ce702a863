package queue

import (
	"testing"

	"github.com/halcyonlabs/kaleido/internal/media"
)

func track(id string) media.Item {
	return media.NewTrack(id, "title-"+id, "artist", 0, media.OwnedLocator(id+".mp3"))
}

func tracks(ids ...string) []media.Item {
	out := make([]media.Item, len(ids))
	for i, id := range ids {
		out[i] = track(id)
	}
	return out
}

// --- SetCurrent / SetQueue ---

func TestSetCurrentAppendsUnknownItem(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b"))
	q.SetCurrent(track("c"))

	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3 (unknown item appended)", q.Len())
	}
	cur, ok := q.Current()
	if !ok || cur.ID != "c" {
		t.Errorf("Current = %v/%v, want c", cur.ID, ok)
	}
}

func TestSetCurrentExistingItemDoesNotDuplicate(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("b"))

	if q.Len() != 3 {
		t.Errorf("Len = %d, want 3 (existing item not re-appended)", q.Len())
	}
	if cur, _ := q.Current(); cur.ID != "b" {
		t.Errorf("Current = %q, want b", cur.ID)
	}
}

func TestSetQueueDropsDuplicateIDs(t *testing.T) {
	q := New()
	q.SetQueue([]media.Item{track("a"), track("b"), track("a")})
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2 (first occurrence wins)", q.Len())
	}
	items := q.Items()
	if items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("Items = %v, want [a b]", items)
	}
}

func TestSetQueueLeavesCurrentDangling(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("b"))

	// New list no longer contains b: the ID must stay dangling, not be reset.
	q.SetQueue(tracks("x", "y", "z"))

	if q.CurrentID() != "b" {
		t.Errorf("CurrentID = %q, want dangling b", q.CurrentID())
	}
	if _, ok := q.Current(); ok {
		t.Error("Current() should report no resolvable selection")
	}

	// Lazy resolution: Next jumps to the first item of the new list.
	cur, ok := q.Next()
	if !ok || cur.ID != "x" {
		t.Errorf("Next after dangle = %v/%v, want x", cur.ID, ok)
	}
}

func TestDanglingCurrentPreviousJumpsToLast(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b"))
	q.SetCurrent(track("b"))
	q.SetQueue(tracks("x", "y", "z"))

	cur, ok := q.Previous()
	if !ok || cur.ID != "z" {
		t.Errorf("Previous after dangle = %v/%v, want z", cur.ID, ok)
	}
}

// --- Next / Previous, linear mode ---

func TestNextLinear(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("b"))

	cur, ok := q.Next()
	if !ok || cur.ID != "c" {
		t.Errorf("Next = %v/%v, want c", cur.ID, ok)
	}

	// repeat = none: Next at the last index stays on the edge item.
	cur, ok = q.Next()
	if !ok || cur.ID != "c" {
		t.Errorf("Next at edge = %v/%v, want c (no-op)", cur.ID, ok)
	}
}

func TestPreviousLinearClampsAtFirst(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("a"))

	cur, ok := q.Previous()
	if !ok || cur.ID != "a" {
		t.Errorf("Previous at edge = %v/%v, want a (no-op)", cur.ID, ok)
	}
}

func TestNextRepeatAllWraps(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("c"))
	q.SetRepeat(RepeatAll)

	cur, ok := q.Next()
	if !ok || cur.ID != "a" {
		t.Errorf("Next with repeat=all from last = %v/%v, want a", cur.ID, ok)
	}
}

func TestPreviousRepeatAllWraps(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("a"))
	q.SetRepeat(RepeatAll)

	cur, ok := q.Previous()
	if !ok || cur.ID != "c" {
		t.Errorf("Previous with repeat=all from first = %v/%v, want c", cur.ID, ok)
	}
}

func TestNextOnEmptyQueueIsNoOp(t *testing.T) {
	q := New()
	if _, ok := q.Next(); ok {
		t.Error("Next on empty queue should report false")
	}
	if _, ok := q.Previous(); ok {
		t.Error("Previous on empty queue should report false")
	}
}

func TestNextWithoutSelectionIsNoOp(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b"))
	if _, ok := q.Next(); ok {
		t.Error("Next without a current item should report false")
	}
	if q.CurrentID() != "" {
		t.Errorf("CurrentID = %q, want empty", q.CurrentID())
	}
}

// --- Shuffle ---

func TestShuffleNeverReselectsCurrent(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c", "d"))
	q.SetCurrent(track("b"))
	q.ToggleShuffle()

	for i := 0; i < 500; i++ {
		before := q.CurrentID()
		cur, ok := q.Next()
		if !ok {
			t.Fatal("shuffle Next reported false")
		}
		if cur.ID == before {
			t.Fatalf("shuffle Next reselected current item %q on iteration %d", before, i)
		}
	}
}

func TestShuffleSingleItemStays(t *testing.T) {
	q := New()
	q.SetQueue(tracks("only"))
	q.SetCurrent(track("only"))
	q.ToggleShuffle()

	cur, ok := q.Next()
	if !ok || cur.ID != "only" {
		t.Errorf("shuffle Next on length-1 queue = %v/%v, want only", cur.ID, ok)
	}
}

func TestShuffleIsUniformOverOthers(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("a"))
	q.ToggleShuffle()

	// Deterministic picks: intn(2) cycling 0,1 must land on both non-current
	// indices regardless of where current sits.
	picks := []int{0, 1}
	i := 0
	q.intn = func(n int) int {
		v := picks[i%len(picks)] % n
		i++
		return v
	}

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		q.SetCurrent(track("a"))
		cur, _ := q.Next()
		seen[cur.ID] = true
	}
	if !seen["b"] || !seen["c"] {
		t.Errorf("shuffle from a reached %v, want both b and c", seen)
	}
}

// --- Repeat cycling ---

func TestCycleRepeat(t *testing.T) {
	q := New()
	want := []Repeat{RepeatOne, RepeatAll, RepeatNone, RepeatOne}
	for i, w := range want {
		if got := q.CycleRepeat(); got != w {
			t.Errorf("CycleRepeat #%d = %v, want %v", i, got, w)
		}
	}
}

func TestRepeatString(t *testing.T) {
	tests := []struct {
		r    Repeat
		want string
	}{
		{RepeatNone, "none"},
		{RepeatOne, "one"},
		{RepeatAll, "all"},
		{Repeat(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.r), got, tt.want)
		}
	}
}

// --- Remove / Clear ---

func TestRemoveKeepsCurrentPlaying(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c"))
	q.SetCurrent(track("b"))
	q.Remove("b")

	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
	// The selection keeps pointing at the removed item.
	if q.CurrentID() != "b" {
		t.Errorf("CurrentID = %q, want b (removal must not change playback)", q.CurrentID())
	}

	// Navigation resolves to the first item.
	cur, ok := q.Next()
	if !ok || cur.ID != "a" {
		t.Errorf("Next after removal = %v/%v, want a", cur.ID, ok)
	}
}

func TestRemoveUnknownIDIsNoOp(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b"))
	q.Remove("zzz")
	if q.Len() != 2 {
		t.Errorf("Len = %d, want 2", q.Len())
	}
}

func TestClearKeepsSelection(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b"))
	q.SetCurrent(track("a"))
	q.Clear()

	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
	if q.CurrentID() != "a" {
		t.Errorf("CurrentID = %q, want a (clear must not stop playback)", q.CurrentID())
	}
	// Empty queue: navigation is a no-op even with a dangling selection.
	if _, ok := q.Next(); ok {
		t.Error("Next on cleared queue should report false")
	}
}

// --- Membership invariant ---

func TestNavigationAlwaysLandsOnMember(t *testing.T) {
	q := New()
	q.SetQueue(tracks("a", "b", "c", "d", "e"))
	q.SetCurrent(track("c"))

	ops := []func() (media.Item, bool){q.Next, q.Previous, q.Next, q.Next, q.Previous}
	for round := 0; round < 3; round++ {
		if round == 1 {
			q.ToggleShuffle()
		}
		if round == 2 {
			q.SetRepeat(RepeatAll)
		}
		for i, op := range ops {
			cur, ok := op()
			if !ok {
				t.Fatalf("round %d op %d reported false", round, i)
			}
			found := false
			for _, it := range q.Items() {
				if it.ID == cur.ID {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("round %d op %d landed on %q which is not a queue member", round, i, cur.ID)
			}
		}
	}
}
