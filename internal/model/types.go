package model

import "time"

// ThreadRecord is one forum thread as seen on a listing page.
type ThreadRecord struct {
	URL           string
	ID            string
	Title         string
	ActivityCount int
}

// HistoryEntry is the last recorded activity for a promoted thread.
type HistoryEntry struct {
	URL       string
	LastCount int
	LastSeen  time.Time
}

// Risk is the normalized verdict of the risk classifier.
// The zero value is RiskUnknown so an unset verdict never passes the gate.
type Risk int

const (
	RiskUnknown Risk = iota
	RiskLow
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Decision is the accept/reject outcome of a classified candidate.
type Decision int

const (
	Reject Decision = iota
	Accept
)

func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "reject"
}

// Candidate is a thread under consideration in the current run.
type Candidate struct {
	ThreadRecord
	Diff     int
	Known    bool // thread already had a history entry
	Risk     Risk
	Verdict  string
	Decision Decision
}

// Slot is one of the two daily posting windows.
type Slot int

const (
	Morning Slot = iota
	Afternoon
)

// SlotsPerDay is the fixed calendar capacity per date.
const SlotsPerDay = 2

func (s Slot) String() string {
	if s == Afternoon {
		return "afternoon"
	}
	return "morning"
}

// ParseSlot maps a stored slot label back to a Slot.
func ParseSlot(s string) (Slot, bool) {
	switch s {
	case "morning":
		return Morning, true
	case "afternoon":
		return Afternoon, true
	}
	return Morning, false
}

// PostStatus tracks a queue row through the downstream poster.
type PostStatus string

const (
	StatusPending PostStatus = "Pending"
	StatusPosted  PostStatus = "Posted"
	StatusError   PostStatus = "Error"
)

// ScheduledPost is one row of the posting queue.
type ScheduledPost struct {
	Date     time.Time
	Slot     Slot
	Time     string // HH:MM in the configured timezone
	Text     string
	Status   PostStatus
	URL      string
	ThreadID string
}

// DateLabel is the queue's date column format.
const DateLabel = "2006/01/02"
