package types

import "time"

// SessionState is the lifecycle position of the single persisted session.
type SessionState string

const (
	StateJoining SessionState = "JOINING"
	StateActive  SessionState = "ACTIVE"
	StateEnding  SessionState = "ENDING"
	StateEnded   SessionState = "ENDED"
)

// Session is the one call/channel attempt this device may hold at a time.
// It is written to the store with state JOINING before any network action,
// so a killed process can find and re-verify it on the next start.
type Session struct {
	ChannelID   string       `json:"channel_id"`
	AccessToken string       `json:"access_token"`
	LocalUID    string       `json:"local_uid"`
	RemoteName  string       `json:"remote_name"`
	RemotePhoto string       `json:"remote_photo,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	State       SessionState `json:"state"`
}

// JoinRequest is a validated, fresh push payload ready for the session
// service. Producing one is the ingress validator's only job.
type JoinRequest struct {
	ChannelID   string
	AccessToken string
	LocalUID    string
	RemoteName  string
	RemotePhoto string
	SentAt      time.Time
}

// Session builds the persisted record for this request.
func (r JoinRequest) Session(now time.Time) *Session {
	return &Session{
		ChannelID:   r.ChannelID,
		AccessToken: r.AccessToken,
		LocalUID:    r.LocalUID,
		RemoteName:  r.RemoteName,
		RemotePhoto: r.RemotePhoto,
		CreatedAt:   now.UTC(),
		State:       StateJoining,
	}
}
