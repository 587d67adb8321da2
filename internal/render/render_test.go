package render

import (
	"encoding/json"
	"strings"
	"testing"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestRenderIssueSchemaV2Layout(t *testing.T) {
	description := mustJSON(t, map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": "- [ ] do thing"},
				},
			},
		},
	})
	commentBody := mustJSON(t, map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{
				"type": "paragraph",
				"content": []any{
					map[string]any{"type": "text", "text": "Looks good"},
				},
			},
		},
	})

	issue := IssueData{
		Key:       "ST-100",
		Project:   "ST",
		Type:      "Story",
		Summary:   "Sync now on mount",
		Status:    "In Progress",
		Priority:  "High",
		Assignee:  "Ada",
		Reporter:  "Bob",
		Labels:    []string{"sync"},
		Created:   "2026-02-21T00:00:00.000+0000",
		Updated:   "2026-02-21T01:00:00.000+0000",
		SourceURL: "https://example.atlassian.net/browse/ST-100",
		Attachments: []Attachment{
			{ID: "1", Filename: "notes.txt"},
		},
		Description: description,
		Comments: []Comment{
			{ID: "10", AuthorDisplayName: "Chad", Body: commentBody, Created: "2026-02-21T02:00:00.000+0000"},
		},
	}

	rendered := string(RenderIssue(issue))
	for _, want := range []string{
		"id: ST-100",
		"status: in_progress",
		"## Acceptance Criteria",
		"- [ ] do thing",
		"## Comments",
		"ST-100.comments.md",
		"attachment: notes.txt (1)",
	} {
		if !strings.Contains(rendered, want) {
			t.Errorf("rendered output missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	issue := IssueData{Key: "A-1", Project: "A", SourceURL: "https://x"}
	a := RenderIssue(issue)
	b := RenderIssue(issue)
	if string(a) != string(b) {
		t.Fatal("render is not deterministic for identical input")
	}
}

func TestRenderCommentsEmpty(t *testing.T) {
	out := string(RenderComments(IssueData{Key: "A-1"}))
	if !strings.Contains(out, "# A-1 comments") || !strings.Contains(out, "(no comments)") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCanonicalStatusSynonyms(t *testing.T) {
	cases := map[string]string{
		"Closed":     "done",
		"resolved":   "done",
		"Review":     "in_review",
		"qa":         "in_review",
		"Doing":      "in_progress",
		"active":     "in_progress",
		"Blocked":    "blocked",
		"whatever":   "todo",
		"":           "todo",
	}
	for in, want := range cases {
		if got := canonicalStatus(in); got != want {
			t.Errorf("canonicalStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalPriority(t *testing.T) {
	cases := map[string]string{
		"Highest": "p0",
		"blocker": "p0",
		"High":    "p1",
		"Medium":  "p2",
		"Low":     "p3",
		"other":   "p4",
	}
	for in, want := range cases {
		if got := canonicalPriority(in); got != want {
			t.Errorf("canonicalPriority(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactSecrets(t *testing.T) {
	in := "Authorization: Bearer abcdEFGH12345678 token=supersecretvalue12 plain-32-char-opaque-token-aaaaaaaa"
	out := RedactSecrets(in)
	if strings.Contains(out, "abcdEFGH12345678") {
		t.Error("bearer token not redacted")
	}
	if strings.Contains(out, "supersecretvalue12") {
		t.Error("key=value credential not redacted")
	}
	if strings.Contains(out, "plain-32-char-opaque-token-aaaaaaaa") {
		t.Error("long opaque token not redacted")
	}
}

func TestNormalizeISOUTCThreeLayouts(t *testing.T) {
	cases := []string{
		"2026-02-21T01:00:00Z",
		"2026-02-21T01:00:00.000+0000",
		"2026-02-21T01:00:00+0000",
	}
	for _, in := range cases {
		got := normalizeISOUTC(in)
		if got == nil || *got != "2026-02-21T01:00:00Z" {
			t.Errorf("normalizeISOUTC(%q) = %v", in, got)
		}
	}
	if normalizeISOUTC("") != nil {
		t.Error("expected nil for empty input")
	}
	if normalizeISOUTC("not-a-date") != nil {
		t.Error("expected nil for unparsable input")
	}
}

func TestSplitAcceptanceCriteriaNoneFound(t *testing.T) {
	criteria, notes := splitAcceptanceCriteria("just some notes\nmore notes")
	if len(criteria) != 0 {
		t.Fatalf("expected no criteria, got %v", criteria)
	}
	if notes == "" {
		t.Fatal("expected notes to be preserved")
	}
}

func TestAdfMentionAndEmoji(t *testing.T) {
	doc := mustJSON(t, map[string]any{
		"type": "doc",
		"content": []any{
			map[string]any{"type": "mention", "attrs": map[string]any{"displayName": "ada"}},
			map[string]any{"type": "emoji", "attrs": map[string]any{"shortName": ":+1:"}},
		},
	})
	out := adfToMarkdown(doc)
	if !strings.Contains(out, "@ada") {
		t.Errorf("expected mention rendering, got %q", out)
	}
	if !strings.Contains(out, ":+1:") {
		t.Errorf("expected emoji rendering, got %q", out)
	}
}
