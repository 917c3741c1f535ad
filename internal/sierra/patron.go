package sierra

import "strings"

const linkPathSeparatorConstant = "/"

// Patron is a patron entry returned by patrons/query.
type Patron struct {
	Link string `json:"link"`
}

// ID returns the patron record number, the last path segment of the link.
func (patron Patron) ID() string {
	return PatronIDFromLink(patron.Link)
}

// PatronIDFromLink extracts the final path segment of a patron self link.
func PatronIDFromLink(link string) string {
	separatorIndex := strings.LastIndex(link, linkPathSeparatorConstant)
	if separatorIndex < 0 {
		return link
	}
	return link[separatorIndex+1:]
}

// QueryResult is the decoded patrons/query response.
type QueryResult struct {
	Total   int
	Entries []Patron
}

// PatronTypePatch is the body of a patron update that changes the patron type.
type PatronTypePatch struct {
	PatronType int `json:"patronType"`
}
