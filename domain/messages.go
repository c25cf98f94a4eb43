package domain

import (
	"time"

	"github.com/satriahrh/ami/domain/entities"
)

// ChatResult is what a caller receives for one completed turn
type ChatResult struct {
	Reply        entities.StructuredReply `json:"reply"`
	SessionID    string                   `json:"session_id"`
	Timestamp    time.Time                `json:"timestamp"`
	HistoryCount int                      `json:"history_count"`
	// Audio is the WAV rendering of the reply, empty when the model sent no audio
	Audio []byte `json:"-"`
}

// HasAudio reports whether the turn produced an audio container
func (r *ChatResult) HasAudio() bool {
	return len(r.Audio) > 0
}

// ChatHistoryPage is one page of persisted turns
type ChatHistoryPage struct {
	Records []*entities.ChatRecord `json:"records"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
	Total   int64                  `json:"total"`
}
