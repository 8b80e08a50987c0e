package jikan

type AnimeResponse struct {
	Data Anime `json:"data"`
}

type AnimeListResponse struct {
	Pagination Pagination `json:"pagination"`
	Data       []Anime    `json:"data"`
}

type Pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
	CurrentPage     int  `json:"current_page"`
}

type Anime struct {
	MalID         int             `json:"mal_id"`
	URL           string          `json:"url,omitempty"`
	Images        Images          `json:"images"`
	Title         string          `json:"title"`
	TitleEnglish  *string         `json:"title_english"`
	TitleJapanese *string         `json:"title_japanese"`
	Type          *string         `json:"type"`
	Source        *string         `json:"source"`
	Episodes      *int            `json:"episodes"`
	Status        string          `json:"status"`
	Airing        bool            `json:"airing"`
	Aired         *Aired          `json:"aired,omitempty"`
	Duration      *string         `json:"duration"`
	Rating        *string         `json:"rating"`
	Score         *float64        `json:"score"`
	ScoredBy      *int            `json:"scored_by"`
	Rank          *int            `json:"rank"`
	Synopsis      *string         `json:"synopsis"`
	Season        *string         `json:"season"`
	Year          *int            `json:"year"`
	Producers     []NamedResource `json:"producers,omitempty"`
	Studios       []NamedResource `json:"studios,omitempty"`
	Genres        []NamedResource `json:"genres,omitempty"`
	Themes        []NamedResource `json:"themes,omitempty"`
}

type Images struct {
	JPG  ImageURLs `json:"jpg"`
	WebP ImageURLs `json:"webp"`
}

type ImageURLs struct {
	ImageURL      string  `json:"image_url"`
	SmallImageURL *string `json:"small_image_url"`
	LargeImageURL *string `json:"large_image_url"`
}

type Aired struct {
	From   *string `json:"from"`
	To     *string `json:"to"`
	String *string `json:"string"`
}

type NamedResource struct {
	MalID int    `json:"mal_id"`
	Name  string `json:"name"`
}
