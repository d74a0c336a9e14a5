package store

// Character is a row of the characters table. Users create a main
// character and any number of side characters.
type Character struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	GenderType   string `json:"gender_type"`
	RelationType string `json:"relation_type"`
	AgeID        int64  `json:"age_id"`
}

// StoryDescription describes a story type in one language.
type StoryDescription struct {
	ID            int64  `json:"id"`
	StoriesTypeID int64  `json:"stories_type_id"`
	Language      string `json:"language"`
	Description   string `json:"description"`
}

// AgeAuthor is a row of view_ages_stories_authors: an author whose
// style suits readers of the given age.
type AgeAuthor struct {
	AgeID           int64  `json:"age_id"`
	StoriesAuthorID int64  `json:"stories_authors_id"`
	Author          string `json:"author"`
}

// StoriesAuthor is a row of stories_authors.
type StoriesAuthor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Prompts holds the prompt templates for one language.
type Prompts struct {
	Language            string `json:"language"`
	StoryUser           string `json:"story_user"`
	StorySystem         string `json:"story_system"`
	SuggestionUser      string `json:"suggestion_user"`
	SuggestionSystem    string `json:"suggestion_system"`
	ContinueUser        string `json:"continue_user"`
	SideCharacterPrompt string `json:"sidecharacter_prompt"`
}

// StoryTemplate is the plot template for a story type, age, and language.
type StoryTemplate struct {
	StoriesTypeID int64  `json:"stories_type_id"`
	AgeID         int64  `json:"age_id"`
	Language      string `json:"language"`
	Template      string `json:"template"`
}

// Translation maps an enum value (gender, relation, age id) to its
// display label and its prompt phrasing in one language.
type Translation struct {
	Language    string `json:"language"`
	Value       string `json:"value"`
	Translation string `json:"translation"`
	Prompt      string `json:"prompt"`
}

// StoryType is a row of stories_types.
type StoryType struct {
	ID      int64  `json:"id"`
	ImageID *int64 `json:"image_id"`
}

// Age is a row of ages.
type Age struct {
	ID int64 `json:"id"`
}

// Story is a row of stories.
type Story struct {
	ID              int64   `json:"id"`
	UserID          string  `json:"user_id"`
	Title           string  `json:"title"`
	Text            string  `json:"text"`
	Fav             bool    `json:"fav"`
	ThreadID        int64   `json:"thread_id"`
	StoriesTypeID   int64   `json:"stories_type_id"`
	ImageID         int64   `json:"image_id"`
	StoriesAuthorID int64   `json:"stories_author_id"`
	WordCount       int     `json:"word_count"`
	CharacterCount  int     `json:"character_count"`
	Prompt          string  `json:"prompt"`
	MainCharacterID int64   `json:"maincharacter_id"`
	SuggestionID    *int64  `json:"suggestion_id"`
	AIModel         string  `json:"ai_model"`
	ParentID        *int64  `json:"parent_id"`
	Relation        string  `json:"relation"`
	AudioURL        *string `json:"audio_url"`
}

// NewStory is the insert shape for a generated story.
type NewStory struct {
	UserID          string `json:"user_id"`
	Title           string `json:"title"`
	Text            string `json:"text"`
	Fav             bool   `json:"fav"`
	ThreadID        int64  `json:"thread_id"`
	StoriesTypeID   int64  `json:"stories_type_id"`
	ImageID         int64  `json:"image_id"`
	StoriesAuthorID int64  `json:"stories_author_id"`
	WordCount       int    `json:"word_count"`
	CharacterCount  int    `json:"character_count"`
	Prompt          string `json:"prompt"`
	MainCharacterID int64  `json:"maincharacter_id"`
	SuggestionID    *int64 `json:"suggestion_id"`
	AIModel         string `json:"ai_model"`
}

// Relation values linking a story to its parent.
const (
	RelationMain = "main"
	RelationSide = "side"
)

// DefaultImageID is used when a story type has no image.
const DefaultImageID int64 = 21

// Suggestion is a row of suggestions.
type Suggestion struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	StoryID int64  `json:"story_id"`
	UserID  string `json:"user_id"`
	Used    bool   `json:"used"`
}

// NewSuggestion is the insert shape for a suggestion.
type NewSuggestion struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	StoryID int64  `json:"story_id"`
	UserID  string `json:"user_id"`
}

// Thread is a row of threads: the local handle of a remote
// conversation thread.
type Thread struct {
	ID     int64  `json:"id"`
	Thread string `json:"thread"`
	UserID string `json:"user_id"`
}

// Credit is a row of credits; ID is the user id.
type Credit struct {
	ID     string `json:"id"`
	Credit int64  `json:"credit"`
}
