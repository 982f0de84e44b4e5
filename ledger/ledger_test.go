package ledger

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRecordMatch_EqualRatings(t *testing.T) {
	// Both players start at 1200, K=32: expected score 0.5 each, so the
	// winner gains exactly 16 and the loser drops exactly 16.
	l := New()
	newW, newL, delta := l.RecordMatch("alice", "bob", 32)

	if !almostEqual(delta, 16.0) {
		t.Errorf("delta: expected 16.0, got %v", delta)
	}
	if !almostEqual(newW, 1216.0) {
		t.Errorf("winner rating: expected 1216.0, got %v", newW)
	}
	if !almostEqual(newL, 1184.0) {
		t.Errorf("loser rating: expected 1184.0, got %v", newL)
	}
}

func TestRecordMatch_Underdog(t *testing.T) {
	// A at 1200 beats B at 1400 with K=32: E(A) = 1/(1+10^0.5) ≈ 0.2403,
	// so A gains ≈ 24.31.
	l := New()
	l.players["A"] = &Player{Name: "A", Rating: 1200}
	l.players["B"] = &Player{Name: "B", Rating: 1400}

	newA, newB, delta := l.RecordMatch("A", "B", 32)

	wantDelta := 32 * (1 - 1/(1+math.Pow(10, 0.5)))
	if !almostEqual(delta, wantDelta) {
		t.Errorf("delta: expected %v, got %v", wantDelta, delta)
	}
	if math.Abs(delta-24.31) > 0.01 {
		t.Errorf("delta: expected ≈24.31, got %v", delta)
	}
	if !almostEqual(newA, 1200+wantDelta) {
		t.Errorf("new rating A: expected %v, got %v", 1200+wantDelta, newA)
	}
	if !almostEqual(newB, 1400-wantDelta) {
		t.Errorf("new rating B: expected %v, got %v", 1400-wantDelta, newB)
	}
}

func TestRecordMatch_ZeroSum(t *testing.T) {
	l := New()
	pairs := [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "b"}, {"b", "a"}}
	for i, p := range pairs {
		k := 8 + 8*i
		before := totalRating(l, p[0], p[1])
		newW, newL, _ := l.RecordMatch(p[0], p[1], k)
		if !almostEqual(newW+newL, before) {
			t.Errorf("match %d: ratings not zero-sum: %v + %v != %v", i, newW, newL, before)
		}
	}
}

// totalRating sums the current ratings of the named players, counting
// not-yet-created players at the initial rating.
func totalRating(l *Ledger, names ...string) float64 {
	var sum float64
	for _, n := range names {
		if p, ok := l.players[n]; ok {
			sum += p.Rating
		} else {
			sum += InitialRating
		}
	}
	return sum
}

func TestCounters(t *testing.T) {
	l := New()
	l.RecordMatch("a", "b", 32)
	l.RecordMatch("a", "c", 32)
	l.RecordMatch("b", "a", 32)

	for _, p := range l.players {
		if p.Games != p.Wins+p.Losses {
			t.Errorf("player %s: games=%d is not wins=%d + losses=%d", p.Name, p.Games, p.Wins, p.Losses)
		}
	}
	a := l.players["a"]
	if a.Wins != 2 || a.Losses != 1 || a.Games != 3 {
		t.Errorf("player a: expected 2W/1L/3G, got %dW/%dL/%dG", a.Wins, a.Losses, a.Games)
	}
}

func TestImplicitCreation(t *testing.T) {
	l := New()
	l.RecordMatch("new1", "new2", 16)

	if l.Len() != 2 {
		t.Fatalf("expected 2 players, got %d", l.Len())
	}
	for _, rec := range l.Matches() {
		if _, ok := l.players[rec.Winner]; !ok {
			t.Errorf("match references unknown winner %q", rec.Winner)
		}
		if _, ok := l.players[rec.Loser]; !ok {
			t.Errorf("match references unknown loser %q", rec.Loser)
		}
	}
}

func TestMatchesMostRecentFirst(t *testing.T) {
	l := New()
	times := []time.Time{
		time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	i := 0
	l.now = func() time.Time { t := times[i]; i++; return t }

	l.RecordMatch("a", "b", 32)
	l.RecordMatch("b", "a", 24)
	l.RecordMatch("a", "b", 16)

	got := l.Matches()
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	if got[0].KFactor != 16 || got[2].KFactor != 32 {
		t.Errorf("matches not most-recent-first: K order %d,%d,%d", got[0].KFactor, got[1].KFactor, got[2].KFactor)
	}
	if !got[0].RecordedAt.After(got[1].RecordedAt) || !got[1].RecordedAt.After(got[2].RecordedAt) {
		t.Error("timestamps not descending")
	}
}

func TestRowsSortOrder(t *testing.T) {
	l := New()
	l.players["high"] = &Player{Name: "high", Rating: 1400, Wins: 1, Losses: 0, Games: 1}
	l.players["midA"] = &Player{Name: "midA", Rating: 1200, Wins: 3, Losses: 1, Games: 4}
	l.players["midB"] = &Player{Name: "midB", Rating: 1200, Wins: 2, Losses: 1, Games: 3}
	l.players["midC"] = &Player{Name: "midC", Rating: 1200, Wins: 2, Losses: 3, Games: 5}
	l.players["low"] = &Player{Name: "low", Rating: 1000, Wins: 0, Losses: 2, Games: 2}

	rows := l.Rows()
	want := []string{"high", "midA", "midB", "midC", "low"}
	for i, name := range want {
		if rows[i].Name != name {
			t.Fatalf("row %d: expected %s, got %s (full order: %v)", i, name, rows[i].Name, rowNames(rows))
		}
	}

	// Pairwise property from the ordering rule.
	for i := 0; i < len(rows)-1; i++ {
		x, y := rows[i], rows[i+1]
		ok := x.Rating > y.Rating ||
			(x.Rating == y.Rating && x.Wins > y.Wins) ||
			(x.Rating == y.Rating && x.Wins == y.Wins && x.Losses <= y.Losses)
		if !ok {
			t.Errorf("rows %d/%d violate sort order: %+v before %+v", i, i+1, x, y)
		}
	}
}

func rowNames(rows []Row) []string {
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	return names
}

func TestRowsValuesAndRounding(t *testing.T) {
	l := New()
	l.RecordMatch("a", "b", 32)
	l.RecordMatch("a", "b", 32)
	l.RecordMatch("b", "a", 32)

	rows := l.Rows()
	for _, r := range rows {
		if r.Rating != round1(r.Rating) {
			t.Errorf("rating not rounded to 1dp: %v", r.Rating)
		}
		if r.WinRate != round1(r.WinRate) {
			t.Errorf("win rate not rounded to 1dp: %v", r.WinRate)
		}
	}
	var a Row
	for _, r := range rows {
		if r.Name == "a" {
			a = r
		}
	}
	if a.Games != 3 {
		t.Fatalf("player a: expected 3 games, got %d", a.Games)
	}
	if math.Abs(a.WinRate-66.7) > 1e-9 {
		t.Errorf("player a: expected win rate 66.7, got %v", a.WinRate)
	}
}

func TestRowsIdempotentRead(t *testing.T) {
	l := New()
	l.RecordMatch("a", "b", 32)
	l.RecordMatch("c", "a", 40)

	first := l.Rows()
	for n := 0; n < 5; n++ {
		again := l.Rows()
		if len(again) != len(first) {
			t.Fatalf("read %d: length changed from %d to %d", n, len(first), len(again))
		}
		for i := range first {
			if again[i] != first[i] {
				t.Errorf("read %d row %d: %+v != %+v", n, i, again[i], first[i])
			}
		}
	}
}

func TestReset(t *testing.T) {
	l := New()
	l.RecordMatch("a", "b", 32)
	l.Reset()

	if len(l.Rows()) != 0 {
		t.Errorf("expected empty leaderboard after reset, got %d rows", len(l.Rows()))
	}
	if len(l.Matches()) != 0 {
		t.Errorf("expected empty match log after reset, got %d", len(l.Matches()))
	}

	// Reset is idempotent.
	l.Reset()
	if len(l.Rows()) != 0 {
		t.Error("second reset changed state")
	}

	// Players come back at the initial rating.
	newW, newL, _ := l.RecordMatch("a", "b", 32)
	if !almostEqual(newW, InitialRating+16) || !almostEqual(newL, InitialRating-16) {
		t.Errorf("post-reset match not from initial ratings: got %v / %v", newW, newL)
	}
}

func TestExpectedScore(t *testing.T) {
	if e := expectedScore(1200, 1200); !almostEqual(e, 0.5) {
		t.Errorf("equal ratings: expected 0.5, got %v", e)
	}
	e := expectedScore(1200, 1400)
	if math.Abs(e-0.2403) > 0.0001 {
		t.Errorf("1200 vs 1400: expected ≈0.2403, got %v", e)
	}
	// Complementary pair sums to 1.
	if s := expectedScore(1200, 1400) + expectedScore(1400, 1200); !almostEqual(s, 1.0) {
		t.Errorf("expected scores should sum to 1, got %v", s)
	}
}
