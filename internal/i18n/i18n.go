// Package i18n resolves localized display strings for the workspace, falling
// back to the caller-supplied default when a locale has no translation.
package i18n

import (
	"embed"
	"encoding/json"
	"log/slog"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFiles embed.FS

// Translator localizes workspace strings for one configured locale.
type Translator struct {
	localizer *goi18n.Localizer
}

func New(locale string, log *slog.Logger) *Translator {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, name := range []string{"locales/en.json", "locales/zh.json"} {
		data, err := localeFiles.ReadFile(name)
		if err != nil {
			log.Warn("missing embedded locale file", slog.String("file", name))
			continue
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			log.Warn("could not parse locale file",
				slog.String("file", name),
				slog.String("error", err.Error()))
		}
	}

	return &Translator{localizer: goi18n.NewLocalizer(bundle, locale, "en")}
}

// PresetTitle resolves the localized title for a catalog voice, returning the
// catalog's default title when no translation exists.
func (t *Translator) PresetTitle(id, fallback string) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{MessageID: "preset." + id + ".title"})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}

// T resolves an arbitrary message id with a fallback.
func (t *Translator) T(messageID, fallback string) string {
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{MessageID: messageID})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}
