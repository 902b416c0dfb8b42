package domain

// ProductSnippet is a best-effort record of a scraped product. Any field may
// be empty; Error is set instead of the other fields when the fetch failed.
type ProductSnippet struct {
	SourceURL    string `json:"url"`
	Title        string `json:"title,omitempty"`
	Price        string `json:"price,omitempty"`
	Availability string `json:"availability,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Fact is one entry of the static fact sheet.
type Fact struct {
	Topic string `json:"topic"`
	Text  string `json:"text"`
}

// EnrichmentContext is the external context gathered for one message.
// SearchResults is nil when no search ran or the search failed.
type EnrichmentContext struct {
	ScrapedProducts []ProductSnippet `json:"scraped_products,omitempty"`
	SearchURL       string           `json:"search_url,omitempty"`
	SearchResults   []ProductSnippet `json:"search_results,omitempty"`
	SearchError     string           `json:"search_error,omitempty"`
	StaticFacts     []Fact           `json:"static_facts,omitempty"`
}

func (c EnrichmentContext) IsEmpty() bool {
	return len(c.ScrapedProducts) == 0 && len(c.SearchResults) == 0 && len(c.StaticFacts) == 0
}
