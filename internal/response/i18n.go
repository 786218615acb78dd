package response

import (
	"embed"
	"encoding/json"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
)

// loadBundle builds the message bundle. English comes from GetMessage; other languages
// are read from the embedded locale files.
func loadBundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := localeFS.ReadFile("locales/" + e.Name())
			if err != nil {
				continue
			}
			bundle.MustParseMessageFileBytes(data, e.Name())
		}
	})
	return bundle
}

// LocalizedMessage returns the message for code in the best language of an Accept-Language
// header, falling back to English.
func LocalizedMessage(acceptLanguage string, code ErrCode) string {
	english := GetMessage(code)
	if acceptLanguage == "" {
		return english
	}

	loc := i18n.NewLocalizer(loadBundle(), acceptLanguage)
	msg, err := loc.Localize(&i18n.LocalizeConfig{
		DefaultMessage: &i18n.Message{ID: string(code), Other: english},
	})
	if err != nil {
		return english
	}
	return msg
}
