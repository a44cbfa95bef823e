// Package catalog holds the static preset voice catalog bundled with the
// studio. Entries require per-installation configuration (reference audio and
// transcript) before they can drive synthesis.
package catalog

// PresetVoice is one bundled catalog entry.
type PresetVoice struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"imageUrl"`
	Language    string   `json:"language"`
	PromptText  string   `json:"promptText"`
}

// Language describes a synthesis target language offered by the workspace.
type Language struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Supported bool   `json:"supported"`
	Primary   bool   `json:"primary"`
}

var presets = []PresetVoice{
	{
		ID:          "1",
		Title:       "Cyberpunk Narrator",
		Author:      "Neo_001",
		Description: "Deep, gritty male voice perfect for sci-fi narration.",
		Tags:        []string{"Sci-Fi", "Narration", "Deep"},
		Category:    "Narrator",
		ImageURL:    "https://picsum.photos/200/200?random=1",
		Language:    "en",
		PromptText:  "Welcome to the neon-lit streets of a dystopian future.",
	},
	{
		ID:          "2",
		Title:       "Soothing Anime Girl",
		Author:      "Sakura_Dev",
		Description: "Soft, high-pitched voice for anime-style dialogue.",
		Tags:        []string{"Anime", "Female", "Soft"},
		Category:    "Anime",
		ImageURL:    "https://picsum.photos/200/200?random=2",
		Language:    "jp",
		PromptText:  "こんにちは！今日もいい天気ですね。",
	},
	{
		ID:          "3",
		Title:       "Late Night FM Host",
		Author:      "JazzVibes",
		Description: "Smooth, calm, and professional radio host voice.",
		Tags:        []string{"Radio", "Male", "Calm"},
		Category:    "Radio",
		ImageURL:    "https://picsum.photos/200/200?random=3",
		Language:    "en",
		PromptText:  "Good evening, dear listeners. Welcome to our late night radio show.",
	},
	{
		ID:          "4",
		Title:       "Fantasy Dwarf",
		Author:      "RPG_Master",
		Description: "Rough, Scottish-accented voice for fantasy games.",
		Tags:        []string{"Game", "Fantasy", "Accent"},
		Category:    "Game",
		ImageURL:    "https://picsum.photos/200/200?random=4",
		Language:    "en",
		PromptText:  "By the beard of my ancestors! This is a mighty adventure!",
	},
	{
		ID:          "5",
		Title:       "News Anchor",
		Author:      "DailyBrief",
		Description: "Neutral, clear, and fast-paced standard American accent.",
		Tags:        []string{"News", "Professional", "Neutral"},
		Category:    "News",
		ImageURL:    "https://picsum.photos/200/200?random=5",
		Language:    "en",
		PromptText:  "Breaking news from around the world. Here is your morning briefing.",
	},
}

var languages = []Language{
	{Label: "Chinese (中文)", Value: "zh", Supported: true, Primary: true},
	{Label: "English", Value: "en", Supported: true, Primary: true},
	{Label: "Japanese (日本語)", Value: "jp", Supported: true},
	{Label: "Korean (한국어)", Value: "ko", Supported: true},
}

// Presets returns the bundled voice catalog in display order.
func Presets() []PresetVoice {
	out := make([]PresetVoice, len(presets))
	copy(out, presets)
	return out
}

// Preset looks up one catalog entry by id.
func Preset(id string) (PresetVoice, bool) {
	for _, p := range presets {
		if p.ID == id {
			return p, true
		}
	}
	return PresetVoice{}, false
}

// Languages returns the synthesis languages the workspace offers.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}
