package domain

// Source attributes part of a retrieval context to one article.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RetrievalResult is the outcome of a top-K similarity search.
// When OK is false the index held no sufficiently similar chunk and the
// caller must decline to answer rather than guess.
type RetrievalResult struct {
	OK       bool
	TopScore float64
	Context  string
	Sources  []Source
}

// Refusal is the negative retrieval result.
func Refusal() RetrievalResult {
	return RetrievalResult{OK: false}
}
