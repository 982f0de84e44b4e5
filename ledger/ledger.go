// Package ledger keeps player ratings and the match log for one scoreboard.
// A Ledger is owned by exactly one session; it does no locking and no I/O.
package ledger

import (
	"math"
	"sort"
	"time"
)

// InitialRating is assigned to every player on first appearance.
const InitialRating = 1200.0

// Player holds one player's rating and win/loss counters.
// Games is always Wins + Losses.
type Player struct {
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Games  int     `json:"games"`
}

// MatchRecord is one recorded result. Records are immutable once appended.
// RatingDelta is the number of points the winner gained (the loser lost the
// same amount).
type MatchRecord struct {
	RecordedAt  time.Time `json:"recorded_at"`
	Winner      string    `json:"winner"`
	Loser       string    `json:"loser"`
	KFactor     int       `json:"k_factor"`
	RatingDelta float64   `json:"rating_delta"`
}

// Row is one leaderboard line, ready for display. Rating and WinRate are
// rounded to one decimal.
type Row struct {
	Name    string  `json:"name"`
	Rating  float64 `json:"rating"`
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`
}

// Ledger is the player registry plus the match log, most recent match first.
// All state lives in memory for the lifetime of the owning session.
type Ledger struct {
	players map[string]*Player
	matches []MatchRecord
	now     func() time.Time
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		players: make(map[string]*Player),
		now:     time.Now,
	}
}

// expectedScore is the logistic Elo expectation of a beating b.
func expectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// getOrCreate returns the named player, creating it at the initial rating
// with zero counters on first reference.
func (l *Ledger) getOrCreate(name string) *Player {
	p, ok := l.players[name]
	if !ok {
		p = &Player{Name: name, Rating: InitialRating}
		l.players[name] = p
	}
	return p
}

// RecordMatch applies one result: the winner gains k*(1-E) rating points and
// the loser loses exactly as many, counters are bumped, and an immutable
// record is prepended to the match log. Unknown names are created on the
// spot at the initial rating.
//
// The caller guarantees winner != loser, both names non-empty and trimmed,
// and k > 0; RecordMatch does not validate and cannot fail.
func (l *Ledger) RecordMatch(winner, loser string, k int) (newWinner, newLoser, delta float64) {
	w := l.getOrCreate(winner)
	lo := l.getOrCreate(loser)

	e := expectedScore(w.Rating, lo.Rating)
	delta = float64(k) * (1 - e)

	w.Rating += delta
	lo.Rating -= delta

	w.Wins++
	w.Games++
	lo.Losses++
	lo.Games++

	rec := MatchRecord{
		RecordedAt:  l.now(),
		Winner:      winner,
		Loser:       loser,
		KFactor:     k,
		RatingDelta: delta,
	}
	l.matches = append([]MatchRecord{rec}, l.matches...)

	return w.Rating, lo.Rating, delta
}

// Rows derives the leaderboard: one row per player, sorted by rating
// descending, then wins descending, then losses ascending. Fully tied rows
// fall back to name order so repeated calls agree.
func (l *Ledger) Rows() []Row {
	rows := make([]Row, 0, len(l.players))
	for _, p := range l.players {
		var rate float64
		if p.Games > 0 {
			rate = float64(p.Wins) / float64(p.Games) * 100.0
		}
		rows = append(rows, Row{
			Name:    p.Name,
			Rating:  round1(p.Rating),
			Games:   p.Games,
			Wins:    p.Wins,
			Losses:  p.Losses,
			WinRate: round1(rate),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		return a.Name < b.Name
	})
	return rows
}

// Matches returns a copy of the match log, most recent first.
func (l *Ledger) Matches() []MatchRecord {
	out := make([]MatchRecord, len(l.matches))
	copy(out, l.matches)
	return out
}

// Names returns all known player names in sorted order.
func (l *Ledger) Names() []string {
	names := make([]string, 0, len(l.players))
	for name := range l.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered players.
func (l *Ledger) Len() int {
	return len(l.players)
}

// Reset drops every player and match. Calling it on an empty ledger is a
// no-op.
func (l *Ledger) Reset() {
	l.players = make(map[string]*Player)
	l.matches = nil
}
