// Package locales holds the bot's message catalog.
package locales

import (
	"embed"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// DefaultLanguage is used when nothing else is configured.
const DefaultLanguage = "en"

//go:embed *.json
var localeFS embed.FS

var (
	mu              sync.RWMutex
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Init loads the embedded message files and sets the default language.
// It may be called again to switch the default.
func Init(defaultLangCode string) {
	tag, err := language.Parse(defaultLangCode)
	if err != nil {
		log.Printf("WARN: Failed to parse default language code '%s': %v. Falling back to English.", defaultLangCode, err)
		tag = language.English
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir(".")
	if err != nil {
		log.Fatalf("Failed to read embedded locales directory: %v", err)
	}

	loadedFiles := 0
	for _, file := range entries {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := b.LoadMessageFileFS(localeFS, file.Name()); err != nil {
			log.Printf("WARN: Failed to load message file '%s': %v", file.Name(), err)
			continue
		}
		loadedFiles++
	}
	if loadedFiles == 0 {
		log.Fatalf("No message files loaded from locales/")
	}

	mu.Lock()
	bundle = b
	defaultLanguage = tag
	mu.Unlock()
	log.Printf("i18n bundle initialized with %d file(s). Default language: %s", loadedFiles, tag.String())
}

func currentBundle() *i18n.Bundle {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		log.Panicln("Attempted to use i18n bundle before initialization.")
	}
	return bundle
}

// GetDefaultLanguageTag returns the configured default language tag.
func GetDefaultLanguageTag() language.Tag {
	currentBundle()
	mu.RLock()
	defer mu.RUnlock()
	return defaultLanguage
}

// NewLocalizer creates a localizer for the given language preferences,
// falling back to the default language.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	b := currentBundle()
	return i18n.NewLocalizer(b, append(langPrefs, GetDefaultLanguageTag().String())...)
}

// GetMessage localizes msgID. A missing translation falls back to English
// and finally to the ID itself.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}, pluralCount *int) string {
	config := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}
	if pluralCount != nil {
		config.PluralCount = *pluralCount
	}

	localizedMsg, err := localizer.Localize(config)
	if err == nil {
		return localizedMsg
	}
	log.Printf("ERROR: Failed to localize message ID '%s': %v. Falling back to English.", msgID, err)

	englishLocalizer := i18n.NewLocalizer(currentBundle(), language.English.String())
	if fallbackMsg, fallbackErr := englishLocalizer.Localize(config); fallbackErr == nil {
		return fallbackMsg
	}
	log.Printf("ERROR: Failed to localize message ID '%s' in English fallback as well. Returning ID.", msgID)
	return msgID
}
