// Package render implements the deterministic, byte-stable transform from a
// remote issue payload to the two markdown artifacts the filesystem serves:
// the main issue body and its comments sidecar.
package render

import "encoding/json"

// Identity is a remote-service account reference.
type Identity struct {
	AccountID    string
	DisplayName  string
	EmailAddress string
}

// Attachment is a filename/id pair surfaced as a bullet under Implementation
// Notes.
type Attachment struct {
	ID       string
	Filename string
}

// Comment is one comment entry on an issue.
type Comment struct {
	ID                string
	AuthorDisplayName string
	Body              json.RawMessage
	Created           string
}

// IssueData is the full remote payload for one issue, as assembled by the
// jira client from its REST responses.
type IssueData struct {
	Key       string
	Project   string
	Summary   string
	Status    string
	Type      string
	Priority  string
	Assignee  string
	Reporter  string
	Labels    []string
	Created   string
	Updated   string
	DueAt     string
	Parent    string
	Epic      string
	Blocks    []string
	BlockedBy []string
	RelatesTo []string
	SourceURL string

	Description json.RawMessage
	Attachments []Attachment
	Comments    []Comment
}
