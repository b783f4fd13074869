package signal

import "github.com/avelis/chatio/internal/domain"

// Outgoing frames reused across handlers. One-off response shapes stay as
// inline structs next to the handler that emits them.

type noticeFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type leftFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

type messageFrame struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type rosterFrame struct {
	Type  string        `json:"type"`
	Users domain.Roster `json:"users"`
}
