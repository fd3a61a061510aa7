package mirror

import (
	"errors"
	"fmt"
	"time"

	"github.com/joshp123/agrobot/internal/robot"
)

// Phase is the controller's sync state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSyncing
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSyncing:
		return "syncing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for _, candidate := range []Phase{PhaseIdle, PhaseSyncing, PhaseReady, PhaseFailed} {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// NoticeKind says how a surfaced error must be presented.
type NoticeKind string

const (
	// NoticeBanner is layered over the last good view and can be dismissed.
	NoticeBanner NoticeKind = "banner"
	// NoticeBlocking replaces the view; only a successful retry clears it.
	NoticeBlocking NoticeKind = "blocking"
)

// Notice is an error surfaced to the presentation layer.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (n Notice) Dismissible() bool {
	return n.Kind == NoticeBanner
}

// View is an immutable snapshot of everything a presentation adapter needs.
type View struct {
	State      robot.State `json:"state"`
	Phase      Phase       `json:"phase"`
	Stale      bool        `json:"stale"`
	HasData    bool        `json:"hasData"`
	Notice     *Notice     `json:"notice,omitempty"`
	Generation uint64      `json:"generation"`
}

// Snapshot is the document presentation adapters publish: the view with
// every derived robot field precomputed.
type Snapshot struct {
	Phase      Phase         `json:"phase"`
	Stale      bool          `json:"stale"`
	HasData    bool          `json:"hasData"`
	Notice     *Notice       `json:"notice,omitempty"`
	Generation uint64        `json:"generation"`
	Robot      robot.Summary `json:"robot"`
}

func (v View) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		Phase:      v.Phase,
		Stale:      v.Stale,
		HasData:    v.HasData,
		Notice:     v.Notice,
		Generation: v.Generation,
		Robot:      robot.Summarize(v.State, now),
	}
}

// ErrStopped is returned once the controller has been torn down.
var ErrStopped = errors.New("controller stopped")

// StaleDataError marks a failed sync while earlier data is still shown.
type StaleDataError struct {
	Err error
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("showing last known data: %v", e.Err)
}

func (e *StaleDataError) Unwrap() error {
	return e.Err
}
