package searchapplications

import "passport-tracker/internal/search"

type Input struct {
	Status string `json:"status,omitempty"`
	// From and To bound the submission date; YYYY-MM-DD or RFC 3339.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
	Size int    `json:"size,omitempty"`
}

type Output struct {
	Applications []search.Document `json:"applications"`
	TotalHits    int64             `json:"totalHits"`
	Took         int64             `json:"took"`
}
