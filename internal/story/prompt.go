package story

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrMissingTranslation means a gender, relation, or age value has no
// translation in the requested language.
var ErrMissingTranslation = errors.New("missing translation")

// Placeholders recognized in prompt templates.
const (
	PlaceholderDescription    = "%storydescription%"
	PlaceholderCharacterName  = "%maincharactername%"
	PlaceholderCharacterSex   = "%maincharactergender%"
	PlaceholderCharacterAge   = "%maincharacterage%"
	PlaceholderAuthor         = "%author%"
	PlaceholderTemplate       = "%storytemplate%"
	PlaceholderSideCharacters = "%sidecharactersprompt%"
	PlaceholderSuggestion     = "%suggestion%"
)

// Character is a story character as the prompt sees it.
type Character struct {
	ID           int64
	Name         string
	GenderType   string
	RelationType string
}

// Translation is one translated enum value.
type Translation struct {
	Value       string
	Translation string
	Prompt      string
}

// Translations looks up translations by value. The first row for a
// value wins.
type Translations struct {
	byValue map[string]Translation
}

// NewTranslations indexes rows by value.
func NewTranslations(rows []Translation) Translations {
	m := make(map[string]Translation, len(rows))
	for _, r := range rows {
		if _, ok := m[r.Value]; !ok {
			m[r.Value] = r
		}
	}
	return Translations{byValue: m}
}

// Prompt returns the prompt phrasing of value.
func (t Translations) Prompt(value string) (string, error) {
	tr, ok := t.byValue[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingTranslation, value)
	}
	return tr.Prompt, nil
}

// Label returns the display translation of value.
func (t Translations) Label(value string) (string, error) {
	tr, ok := t.byValue[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingTranslation, value)
	}
	return tr.Translation, nil
}

// NewStoryInput is everything BuildNewPrompt substitutes into the
// story template.
type NewStoryInput struct {
	// Template is the user prompt template for the language.
	Template    string
	Description string
	Main        Character
	AgeID       int64
	Author      string
	// StoryTemplate is the plot template for the type and age.
	StoryTemplate string

	// SideCharacterPrompt introduces the side-character list.
	SideCharacterPrompt string
	// SideCharacters is the pool the selection is drawn from.
	SideCharacters []Character
	SelectedSide   []int64

	Translations Translations
}

// BuildNewPrompt renders the user prompt for a new story. Each
// placeholder is replaced at its first occurrence only, except the
// main character name, which is replaced everywhere. Placeholders that
// do not appear are ignored and unknown ones are left verbatim.
func BuildNewPrompt(in NewStoryInput) (string, error) {
	gender, err := in.Translations.Prompt(in.Main.GenderType)
	if err != nil {
		return "", fmt.Errorf("main character gender: %w", err)
	}
	age, err := in.Translations.Label(strconv.FormatInt(in.AgeID, 10))
	if err != nil {
		return "", fmt.Errorf("main character age: %w", err)
	}
	side, err := SideCharacterPhrase(in.SideCharacterPrompt, in.SideCharacters, in.SelectedSide, in.Translations)
	if err != nil {
		return "", err
	}

	p := in.Template
	p = strings.Replace(p, PlaceholderDescription, in.Description, 1)
	p = strings.ReplaceAll(p, PlaceholderCharacterName, in.Main.Name)
	p = strings.Replace(p, PlaceholderCharacterSex, gender, 1)
	p = strings.Replace(p, PlaceholderCharacterAge, age, 1)
	p = strings.Replace(p, PlaceholderAuthor, in.Author, 1)
	p = strings.Replace(p, PlaceholderTemplate, in.StoryTemplate, 1)
	p = strings.Replace(p, PlaceholderSideCharacters, side, 1)
	return p, nil
}

// BuildContinuePrompt renders the continuation prompt around the title
// of the chosen suggestion.
func BuildContinuePrompt(template, suggestion string) string {
	return strings.Replace(template, PlaceholderSuggestion, suggestion, 1)
}

// SideCharacterPhrase renders the selected side characters as
// "<intro> name gender relation, name gender relation". Characters are
// listed in pool order. An empty selection, or one matching nobody in
// the pool, yields "".
func SideCharacterPhrase(intro string, pool []Character, selected []int64, tr Translations) (string, error) {
	if len(selected) == 0 {
		return "", nil
	}

	var parts []string
	for _, c := range pool {
		if !slices.Contains(selected, c.ID) {
			continue
		}
		var gender, relation string
		var err error
		if c.GenderType != "" {
			if gender, err = tr.Prompt(c.GenderType); err != nil {
				return "", fmt.Errorf("side character %d gender: %w", c.ID, err)
			}
		}
		if c.RelationType != "" {
			if relation, err = tr.Prompt(c.RelationType); err != nil {
				return "", fmt.Errorf("side character %d relation: %w", c.ID, err)
			}
		}
		parts = append(parts, c.Name+" "+gender+" "+relation)
	}
	if len(parts) == 0 {
		return "", nil
	}
	return intro + " " + strings.Join(parts, ", "), nil
}
