package diff

import (
	"testing"

	"threadpromo/internal/model"
)

func rec(id string, count int) model.ThreadRecord {
	return model.ThreadRecord{URL: "https://f/bbs/thread/" + id + "/", ID: id, Title: "t" + id, ActivityCount: count}
}

func TestSelectDedupesRepeatedThreads(t *testing.T) {
	in := []model.ThreadRecord{rec("1", 300), rec("2", 200), rec("1", 310), rec("2", 200)}
	got := Select(in, nil, Policy{MinNewThreadActivity: 100, TopN: 20})
	if len(got) != 2 { t.Fatalf("expected 2 unique candidates, got %d", len(got)) }
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c.URL] { t.Fatalf("url %s selected twice", c.URL) }
		seen[c.URL] = true
	}
	if got[0].ActivityCount != 300 { t.Fatalf("first encounter should win, got %d", got[0].ActivityCount) }
}

func TestNewThreadThreshold(t *testing.T) {
	p := Policy{MinNewThreadActivity: 100, TopN: 20}
	if got := Select([]model.ThreadRecord{rec("1", 99)}, nil, p); len(got) != 0 {
		t.Fatalf("99 must not be eligible")
	}
	got := Select([]model.ThreadRecord{rec("1", 100)}, nil, p)
	if len(got) != 1 || got[0].Diff != 100 || got[0].Known { t.Fatalf("100 should be eligible with raw diff, got %+v", got) }
}

func TestKnownThreadNeedsNewActivity(t *testing.T) {
	hist := map[string]model.HistoryEntry{
		rec("1", 0).URL: {URL: rec("1", 0).URL, LastCount: 100},
		rec("2", 0).URL: {URL: rec("2", 0).URL, LastCount: 40},
	}
	got := Select([]model.ThreadRecord{rec("1", 100), rec("2", 45)}, hist, Policy{MinNewThreadActivity: 100, TopN: 20})
	if len(got) != 1 { t.Fatalf("expected only thread 2, got %+v", got) }
	// known threads are not held to the new-thread threshold
	if got[0].ID != "2" || got[0].Diff != 5 || !got[0].Known { t.Fatalf("unexpected %+v", got[0]) }
}

func TestStableOrderAndTopN(t *testing.T) {
	in := []model.ThreadRecord{rec("a", 150), rec("b", 300), rec("c", 150), rec("d", 120), rec("e", 150)}
	got := Select(in, nil, Policy{MinNewThreadActivity: 100, TopN: 3})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) { t.Fatalf("expected %d, got %d", len(want), len(got)) }
	for i, id := range want {
		if got[i].ID != id { t.Fatalf("position %d: want %s got %s", i, id, got[i].ID) }
	}
}

func TestObserved(t *testing.T) {
	obs := Observed([]model.ThreadRecord{rec("1", 10), rec("1", 99), rec("2", 5)})
	if obs[rec("1", 0).URL] != 10 || obs[rec("2", 0).URL] != 5 { t.Fatalf("unexpected %v", obs) }
}
