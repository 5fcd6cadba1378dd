package domain

// ParsedArticle is the cleaned form of a single knowledge-base page.
// BodyText is plain text with markup, navigation and boilerplate removed.
type ParsedArticle struct {
	Title    string
	BodyText string
}
