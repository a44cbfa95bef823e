package tts

import (
	"errors"
	"strings"
)

// Validation failures, one per missing-field case so the UI can render a
// specific message next to the offending control.
var (
	ErrUnknownMode       = errors.New("unknown synthesis mode")
	ErrEmptyText         = errors.New("text must not be empty")
	ErrNoVoiceSelected   = errors.New("no voice selected: provide a speaker id or a reference audio with transcript")
	ErrNoReferenceAudio  = errors.New("reference audio is required for cross-lingual synthesis")
	ErrSpeakerIDRequired = errors.New("a registered speaker id is required for instruct synthesis")
)

// instructSentinel terminates every instruction string handed to the backend.
const instructSentinel = "<|endofprompt|>"

// defaultInstructions are substituted when the caller supplies no instruction
// text in instruct2 mode, keyed by language code.
var defaultInstructions = map[string]string{
	"zh": "用自然流畅的语气朗读这段文字" + instructSentinel,
	"en": "Read this passage in a natural, expressive voice" + instructSentinel,
	"jp": "自然で滑らかな口調でこの文章を読んでください" + instructSentinel,
	"ko": "자연스럽고 매끄러운 어조로 이 글을 읽어 주세요" + instructSentinel,
}

const genericInstruction = "Speak naturally and clearly" + instructSentinel

// DefaultInstruction returns the canned delivery instruction for a language,
// falling back to a generic one for unmapped codes.
func DefaultInstruction(language string) string {
	if instruction, ok := defaultInstructions[language]; ok {
		return instruction
	}
	return genericInstruction
}

// Payload is the flat wire shape the backend's /tts endpoint accepts. Only the
// subset of optional fields appropriate for the mode is populated.
type Payload struct {
	Mode         string  `json:"mode"`
	Text         string  `json:"text"`
	Speed        float64 `json:"speed"`
	Seed         int     `json:"seed"`
	SpeakerID    string  `json:"speaker_id,omitempty"`
	PromptText   string  `json:"prompt_text,omitempty"`
	PromptAudio  string  `json:"prompt_audio,omitempty"`
	InstructText string  `json:"instruct_text,omitempty"`
}

// Build validates a request against its mode's required fields and shapes the
// backend payload. It never touches the network; callers dispatch the result
// themselves.
func Build(req Request) (Payload, error) {
	if !req.Mode.Valid() {
		return Payload{}, ErrUnknownMode
	}
	if strings.TrimSpace(req.Text) == "" {
		return Payload{}, ErrEmptyText
	}

	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	payload := Payload{
		Mode:  string(req.Mode),
		Text:  req.Text,
		Speed: speed,
		Seed:  req.Seed,
	}

	switch req.Mode {
	case ModeZeroShot:
		// A registered speaker wins over an inline reference pair.
		if req.SpeakerID != "" {
			payload.SpeakerID = req.SpeakerID
			break
		}
		if req.PromptAudio == "" || strings.TrimSpace(req.PromptText) == "" {
			return Payload{}, ErrNoVoiceSelected
		}
		payload.PromptText = req.PromptText
		payload.PromptAudio = req.PromptAudio
	case ModeCrossLingual:
		// Target language is ambient configuration, not part of the payload.
		if req.PromptAudio == "" {
			return Payload{}, ErrNoReferenceAudio
		}
		payload.PromptAudio = req.PromptAudio
	case ModeInstruct2:
		if req.SpeakerID == "" {
			return Payload{}, ErrSpeakerIDRequired
		}
		payload.SpeakerID = req.SpeakerID
		instruction := strings.TrimSpace(req.InstructText)
		if instruction == "" {
			instruction = DefaultInstruction(req.Language)
		}
		payload.InstructText = instruction
	}

	return payload, nil
}
