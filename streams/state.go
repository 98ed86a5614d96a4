package streams

import (
	"slices"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Store TTL sentinels, matching Redis TTL replies.
const (
	TTLPersistent time.Duration = -1
	TTLMissing    time.Duration = -2
)

// Persisted hash fields.
const (
	FieldStatus    = "status"
	FieldStartedAt = "started_at"
	FieldEndedAt   = "ended_at"
)

// TimeLayout is ISO-8601 UTC with milliseconds.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// StreamState is the projection of one room.
type StreamState struct {
	StreamID     string     `json:"streamId"`
	Status       Status     `json:"status"`
	Participants []string   `json:"participants"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

// Meta holds the scalar fields to upsert. Zero values are left untouched.
type Meta struct {
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
}

// Update is a change notification. A nil State means the stream is gone.
type Update struct {
	StreamID string       `json:"streamId"`
	State    *StreamState `json:"state,omitempty"`
}

func (u Update) Deleted() bool {
	return u.State == nil
}

// Summary is the list view of an active stream.
type Summary struct {
	StreamID         string    `json:"streamId"`
	ParticipantCount int       `json:"participantCount"`
	StartedAt        time.Time `json:"startedAt"`
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Fields renders meta as hash fields, excluding started_at which is write-once.
func (m Meta) Fields() map[string]any {
	fields := map[string]any{}
	if m.Status != "" {
		fields[FieldStatus] = string(m.Status)
	}
	if !m.EndedAt.IsZero() {
		fields[FieldEndedAt] = FormatTime(m.EndedAt)
	}
	return fields
}

// NewState merges a meta hash and participant members. It returns nil when meta
// has no status. Unparseable timestamps are left zero.
func NewState(streamID string, meta map[string]string, members []string) *StreamState {
	status, ok := meta[FieldStatus]
	if !ok || status == "" {
		return nil
	}

	participants := slices.Clone(members)
	if participants == nil {
		participants = []string{}
	}
	slices.Sort(participants)

	state := &StreamState{
		StreamID:     streamID,
		Status:       Status(status),
		Participants: participants,
	}
	if t, ok := ParseTime(meta[FieldStartedAt]); ok {
		state.StartedAt = t
	}
	if t, ok := ParseTime(meta[FieldEndedAt]); ok {
		state.EndedAt = &t
	}
	return state
}

func (s *StreamState) Active() bool {
	return s != nil && s.Status == StatusActive
}

func (s *StreamState) Finished() bool {
	return s != nil && s.Status == StatusFinished
}

// Idle reports an active stream with no participants.
func (s *StreamState) Idle() bool {
	return s.Active() && len(s.Participants) == 0
}

func (s *StreamState) Has(identity string) bool {
	return s != nil && slices.Contains(s.Participants, identity)
}

func (s *StreamState) Summary() Summary {
	return Summary{
		StreamID:         s.StreamID,
		ParticipantCount: len(s.Participants),
		StartedAt:        s.StartedAt,
	}
}

// Age is the time since StartedAt, or zero when StartedAt is unknown.
func (s *StreamState) Age(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
