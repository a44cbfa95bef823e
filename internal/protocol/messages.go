package protocol

import "time"

// GenerationRecorded announces a synthesis result entering the history log.
type GenerationRecorded struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Language  string    `json:"language"`
	Duration  float64   `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkPublished announces a history item promoted to the gallery.
type WorkPublished struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Duration  float64   `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
}

// SpeakerChanged announces a custom speaker registered with or removed from
// the backend.
type SpeakerChanged struct {
	SpeakerID string    `json:"speaker_id"`
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectGenerationRecorded = "studio.generation.recorded"
	SubjectWorkPublished      = "studio.work.published"
	SubjectSpeakerCreated     = "studio.speaker.created"
	SubjectSpeakerDeleted     = "studio.speaker.deleted"
)
