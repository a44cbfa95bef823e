package tts

// Mode selects the synthesis strategy the backend runs.
type Mode string

const (
	ModeZeroShot     Mode = "zero_shot"
	ModeCrossLingual Mode = "cross_lingual"
	ModeInstruct2    Mode = "instruct2"
)

// Valid reports whether m names a known synthesis mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeZeroShot, ModeCrossLingual, ModeInstruct2:
		return true
	}
	return false
}

// Request is a generation intent as the workspace expresses it. Exactly which
// fields are required depends on the mode; see Build.
type Request struct {
	Text         string
	Mode         Mode
	Language     string
	Speed        float64
	Seed         int
	PromptText   string
	PromptAudio  string
	SpeakerID    string
	InstructText string
}

// Result is the normalized synthesis outcome.
type Result struct {
	AudioData  string
	SampleRate int
	Duration   float64
	Mode       Mode
}
