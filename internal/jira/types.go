package jira

import "encoding/json"

// IssueRef is a lightweight (key, updated) listing entry returned by
// SearchIssueRefsForQuery.
type IssueRef struct {
	Key     string
	Updated *string
}

// JiraIdentity is a user or account reference, partially populated
// depending on which endpoint returned it.
type JiraIdentity struct {
	AccountID    string
	DisplayName  string
	EmailAddress string
}

// IssueComment is one comment attached to an issue.
type IssueComment struct {
	ID                string
	AuthorDisplayName string
	Body              json.RawMessage
	Created           string
}

// Attachment is a filename/id pair surfaced under Implementation Notes.
type Attachment struct {
	ID       string
	Filename string
}

// IssueData is the full remote payload shape produced by GetIssue and
// SearchIssuesBulk: everything the renderer (C4) needs to build both the
// main markdown file and the comments sidecar.
type IssueData struct {
	Key      string
	Project  string
	Summary  string
	Status   string
	Type     string
	Priority string

	Assignee *JiraIdentity
	Reporter *JiraIdentity

	Labels []string

	Created *string
	Updated *string
	DueAt   *string

	Parent *string
	Epic   *string

	Blocks     []string
	BlockedBy  []string
	RelatesTo  []string

	Description json.RawMessage

	SourceURL string

	Attachments []Attachment
	Comments    []IssueComment
}
