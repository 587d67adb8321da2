package jira

import "encoding/json"

// Wire-shaped decode structs for the REST v3 search/issue/myself/project
// endpoints. Field names follow Jira's actual JSON, not Go convention.

type searchResponse struct {
	Total         *int          `json:"total"`
	IsLast        *bool         `json:"isLast"`
	NextPageToken *string       `json:"nextPageToken"`
	Issues        []searchIssue `json:"issues"`
	Values        []searchIssue `json:"values"`
}

func (r *searchResponse) takeIssues() []searchIssue {
	if len(r.Issues) > 0 {
		return r.Issues
	}
	return r.Values
}

type searchIssue struct {
	Key    string       `json:"key"`
	Fields issueFields  `json:"fields"`
}

// issueFields covers both the lightweight refs-only response (just
// "updated") and the full bulk/single-issue response.
type issueFields struct {
	Summary     *string          `json:"summary"`
	Status      *statusObj       `json:"status"`
	IssueType   *issueTypeObj    `json:"issuetype"`
	Priority    *priorityObj     `json:"priority"`
	Assignee    *userObj         `json:"assignee"`
	Reporter    *userObj         `json:"reporter"`
	Labels      []string         `json:"labels"`
	Created     *string          `json:"created"`
	Updated     *string          `json:"updated"`
	DueDate     *string          `json:"duedate"`
	Parent      *parentObj       `json:"parent"`
	Epic        *epicObj         `json:"epic"`
	IssueLinks  []issueLinkObj   `json:"issuelinks"`
	Description json.RawMessage  `json:"description"`
	Comment     *commentContainer `json:"comment"`
	Project     *projectRefObj   `json:"project"`
	Attachment  []attachmentObj  `json:"attachment"`
}

type attachmentObj struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type statusObj struct {
	Name string `json:"name"`
}

type issueTypeObj struct {
	Name string `json:"name"`
}

type priorityObj struct {
	Name string `json:"name"`
}

type userObj struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

type parentObj struct {
	Key string `json:"key"`
}

type epicObj struct {
	Key string `json:"key"`
}

type projectRefObj struct {
	Key string `json:"key"`
}

type issueLinkObj struct {
	Type         issueLinkTypeObj `json:"type"`
	OutwardIssue *linkedIssueObj  `json:"outwardIssue"`
	InwardIssue  *linkedIssueObj  `json:"inwardIssue"`
}

type issueLinkTypeObj struct {
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

type linkedIssueObj struct {
	Key string `json:"key"`
}

type commentContainer struct {
	Comments []commentObj `json:"comments"`
}

type commentObj struct {
	ID      string          `json:"id"`
	Author  *userObj        `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
}

type issueResponse struct {
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields issueFields `json:"fields"`
}

type myselfResponse struct {
	AccountID    string `json:"accountId"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

type projectSearchResponse struct {
	Values []projectInfo `json:"values"`
}

type projectInfo struct {
	Key string `json:"key"`
}

func identityFromUser(u *userObj) *JiraIdentity {
	if u == nil {
		return nil
	}
	return &JiraIdentity{AccountID: u.AccountID, DisplayName: u.DisplayName, EmailAddress: u.EmailAddress}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func issueDataFromFields(key, sourceURL string, f issueFields) IssueData {
	data := IssueData{
		Key:         key,
		Summary:     strOrEmpty(f.Summary),
		Created:     f.Created,
		Updated:     f.Updated,
		DueAt:       f.DueDate,
		Description: f.Description,
		SourceURL:   sourceURL,
		Labels:      append([]string(nil), f.Labels...),
	}
	if f.Status != nil {
		data.Status = f.Status.Name
	}
	if f.IssueType != nil {
		data.Type = f.IssueType.Name
	}
	if f.Priority != nil {
		data.Priority = f.Priority.Name
	}
	if f.Project != nil {
		data.Project = f.Project.Key
	}
	data.Assignee = identityFromUser(f.Assignee)
	data.Reporter = identityFromUser(f.Reporter)
	if f.Parent != nil {
		k := f.Parent.Key
		data.Parent = &k
	}
	if f.Epic != nil {
		k := f.Epic.Key
		data.Epic = &k
	}

	data.Blocks, data.BlockedBy, data.RelatesTo = categorizeLinks(f.IssueLinks)

	if len(f.Attachment) > 0 {
		data.Attachments = make([]Attachment, 0, len(f.Attachment))
		for _, a := range f.Attachment {
			data.Attachments = append(data.Attachments, Attachment{ID: a.ID, Filename: a.Filename})
		}
	}

	if f.Comment != nil {
		data.Comments = make([]IssueComment, 0, len(f.Comment.Comments))
		for _, c := range f.Comment.Comments {
			author := ""
			if c.Author != nil {
				author = c.Author.DisplayName
			}
			data.Comments = append(data.Comments, IssueComment{
				ID:                c.ID,
				AuthorDisplayName: author,
				Body:              c.Body,
				Created:           c.Created,
			})
		}
	}

	return data
}
