package story

import (
	"errors"
	"testing"
)

func testTranslations() Translations {
	return NewTranslations([]Translation{
		{Value: "female", Translation: "weiblich", Prompt: "a girl"},
		{Value: "male", Translation: "männlich", Prompt: "a boy"},
		{Value: "friend", Translation: "Freund", Prompt: "who is a friend"},
		{Value: "sister", Translation: "Schwester", Prompt: "who is the sister"},
		{Value: "3", Translation: "6 years", Prompt: "six"},
		{Value: "female", Translation: "duplicate", Prompt: "ignored"},
	})
}

func TestBuildNewPrompt(t *testing.T) {
	in := NewStoryInput{
		Template: "Write %storydescription% about %maincharactername%, %maincharactergender% aged " +
			"%maincharacterage%, in the style of %author%. %maincharactername% follows " +
			"%storytemplate%. %sidecharactersprompt% %unknown% %author%",
		Description:   "a bedtime story",
		Main:          Character{ID: 1, Name: "Mia", GenderType: "female"},
		AgeID:         3,
		Author:        "Astrid",
		StoryTemplate: "the hero's journey",

		SideCharacterPrompt: "Also featuring:",
		SideCharacters: []Character{
			{ID: 7, Name: "Tom", GenderType: "male", RelationType: "friend"},
			{ID: 8, Name: "Lea", GenderType: "female", RelationType: "sister"},
			{ID: 9, Name: "Max", GenderType: "male", RelationType: "friend"},
		},
		SelectedSide: []int64{8, 7},
		Translations: testTranslations(),
	}

	got, err := BuildNewPrompt(in)
	if err != nil {
		t.Fatalf("BuildNewPrompt: %v", err)
	}
	want := "Write a bedtime story about Mia, a girl aged 6 years, in the style of Astrid. " +
		"Mia follows the hero's journey. Also featuring: Tom a boy who is a friend, " +
		"Lea a girl who is the sister %unknown% %author%"
	if got != want {
		t.Errorf("BuildNewPrompt =\n%q\nwant\n%q", got, want)
	}
}

func TestBuildNewPrompt_MissingTranslation(t *testing.T) {
	base := NewStoryInput{
		Template:     "%maincharactergender%",
		Main:         Character{Name: "Mia", GenderType: "female"},
		AgeID:        3,
		Translations: testTranslations(),
	}

	noGender := base
	noGender.Main.GenderType = "dragon"
	if _, err := BuildNewPrompt(noGender); !errors.Is(err, ErrMissingTranslation) {
		t.Errorf("unknown gender error = %v, want ErrMissingTranslation", err)
	}

	noAge := base
	noAge.AgeID = 99
	if _, err := BuildNewPrompt(noAge); !errors.Is(err, ErrMissingTranslation) {
		t.Errorf("unknown age error = %v, want ErrMissingTranslation", err)
	}

	badSide := base
	badSide.SideCharacters = []Character{{ID: 7, Name: "Tom", RelationType: "rival"}}
	badSide.SelectedSide = []int64{7}
	if _, err := BuildNewPrompt(badSide); !errors.Is(err, ErrMissingTranslation) {
		t.Errorf("unknown relation error = %v, want ErrMissingTranslation", err)
	}
}

func TestSideCharacterPhrase(t *testing.T) {
	pool := []Character{
		{ID: 1, Name: "Tom", GenderType: "male", RelationType: "friend"},
		{ID: 2, Name: "Rex"},
	}
	tr := testTranslations()

	tests := []struct {
		name     string
		selected []int64
		want     string
	}{
		{"none selected", nil, ""},
		{"selection not in pool", []int64{42}, ""},
		{"one", []int64{1}, "With: Tom a boy who is a friend"},
		{"untyped character", []int64{2}, "With: Rex  "},
		{"pool order", []int64{2, 1}, "With: Tom a boy who is a friend, Rex  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SideCharacterPhrase("With:", pool, tt.selected, tr)
			if err != nil {
				t.Fatalf("SideCharacterPhrase: %v", err)
			}
			if got != tt.want {
				t.Errorf("SideCharacterPhrase = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildContinuePrompt(t *testing.T) {
	got := BuildContinuePrompt("Continue with %suggestion%. Not %suggestion%.", "The Cave")
	want := "Continue with The Cave. Not %suggestion%."
	if got != want {
		t.Errorf("BuildContinuePrompt = %q, want %q", got, want)
	}
	if got := BuildContinuePrompt("No placeholder", "x"); got != "No placeholder" {
		t.Errorf("BuildContinuePrompt without placeholder = %q", got)
	}
}

func TestTranslations_FirstWins(t *testing.T) {
	tr := testTranslations()
	got, err := tr.Label("female")
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if got != "weiblich" {
		t.Errorf("Label(female) = %q, want weiblich", got)
	}
}
