package tts

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildZeroShotPrefersSpeakerID(t *testing.T) {
	payload, err := Build(Request{
		Text:        "hello there",
		Mode:        ModeZeroShot,
		SpeakerID:   "narrator",
		PromptText:  "should be dropped",
		PromptAudio: "AAAA",
		Seed:        42,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.SpeakerID != "narrator" {
		t.Fatalf("expected speaker id, got %q", payload.SpeakerID)
	}
	if payload.PromptText != "" || payload.PromptAudio != "" {
		t.Fatalf("reference fields must be omitted when a speaker id is set")
	}
	if payload.Seed != 42 {
		t.Fatalf("expected seed 42, got %d", payload.Seed)
	}
}

func TestBuildZeroShotReferencePair(t *testing.T) {
	payload, err := Build(Request{
		Text:        "hello",
		Mode:        ModeZeroShot,
		PromptText:  "reference transcript",
		PromptAudio: "AAAA",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.PromptText != "reference transcript" || payload.PromptAudio != "AAAA" {
		t.Fatalf("expected reference pair in payload, got %+v", payload)
	}
}

func TestBuildZeroShotNoVoice(t *testing.T) {
	_, err := Build(Request{Text: "hello", Mode: ModeZeroShot})
	if !errors.Is(err, ErrNoVoiceSelected) {
		t.Fatalf("expected ErrNoVoiceSelected, got %v", err)
	}
}

func TestBuildEmptyText(t *testing.T) {
	_, err := Build(Request{Text: "   ", Mode: ModeZeroShot, SpeakerID: "x"})
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestBuildCrossLingualRequiresAudio(t *testing.T) {
	_, err := Build(Request{Text: "hola", Mode: ModeCrossLingual})
	if !errors.Is(err, ErrNoReferenceAudio) {
		t.Fatalf("expected ErrNoReferenceAudio, got %v", err)
	}

	payload, err := Build(Request{Text: "hola", Mode: ModeCrossLingual, PromptAudio: "AAAA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.PromptAudio != "AAAA" || payload.PromptText != "" {
		t.Fatalf("cross-lingual payload should carry audio only, got %+v", payload)
	}
}

func TestBuildInstructDefaults(t *testing.T) {
	payload, err := Build(Request{
		Text:      "story time",
		Mode:      ModeInstruct2,
		Language:  "zh",
		SpeakerID: "narrator",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.InstructText != DefaultInstruction("zh") {
		t.Fatalf("expected canned zh instruction, got %q", payload.InstructText)
	}
	if !strings.HasSuffix(payload.InstructText, "<|endofprompt|>") {
		t.Fatalf("instruction must end with the sentinel, got %q", payload.InstructText)
	}
}

func TestBuildInstructFallbackLanguage(t *testing.T) {
	payload, err := Build(Request{Text: "x", Mode: ModeInstruct2, Language: "fr", SpeakerID: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(payload.InstructText, "<|endofprompt|>") {
		t.Fatalf("fallback instruction must end with the sentinel")
	}
}

func TestBuildInstructRequiresSpeaker(t *testing.T) {
	_, err := Build(Request{Text: "x", Mode: ModeInstruct2})
	if !errors.Is(err, ErrSpeakerIDRequired) {
		t.Fatalf("expected ErrSpeakerIDRequired, got %v", err)
	}
}

func TestBuildDefaultsSpeed(t *testing.T) {
	payload, err := Build(Request{Text: "x", Mode: ModeZeroShot, SpeakerID: "s"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Speed != 1.0 {
		t.Fatalf("expected default speed 1.0, got %v", payload.Speed)
	}
}

func TestBuildUnknownMode(t *testing.T) {
	_, err := Build(Request{Text: "x", Mode: Mode("sft")})
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
