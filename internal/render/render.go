package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RenderIssue produces the deterministic main markdown view of an issue:
// a fixed-order front-matter block followed by Summary, Acceptance
// Criteria, Implementation Notes, Test Evidence, and Comments sections.
func RenderIssue(issue IssueData) []byte {
	summary := redactSecrets(orDefault(issue.Summary, "(no summary)"))
	status := canonicalStatus(issue.Status)
	issueType := canonicalType(issue.Type)
	priority := canonicalPriority(issue.Priority)
	assignee := redactSecrets(orDefault(issue.Assignee, "unassigned"))
	reporter := redactSecrets(orDefault(issue.Reporter, "unknown"))

	labels := make([]string, len(issue.Labels))
	for i, l := range issue.Labels {
		labels[i] = redactSecrets(l)
	}

	createdAt := normalizeISOUTC(issue.Created)
	updatedAt := normalizeISOUTC(issue.Updated)
	dueAt := normalizeISOUTC(issue.DueAt)

	description := adfToMarkdown(issue.Description)
	criteria, notes := splitAcceptanceCriteria(description)

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", issue.Key)
	fmt.Fprintf(&b, "project: %s\n", issue.Project)
	fmt.Fprintf(&b, "type: %s\n", issueType)
	fmt.Fprintf(&b, "status: %s\n", status)
	fmt.Fprintf(&b, "priority: %s\n", priority)
	fmt.Fprintf(&b, "assignee: %s\n", yamlQuote(assignee))
	fmt.Fprintf(&b, "reporter: %s\n", yamlQuote(reporter))
	fmt.Fprintf(&b, "labels: %s\n", yamlArray(labels))
	fmt.Fprintf(&b, "created_at: %s\n", yamlOpt(createdAt))
	fmt.Fprintf(&b, "updated_at: %s\n", yamlOpt(updatedAt))
	fmt.Fprintf(&b, "parent: %s\n", yamlOpt(strPtr(issue.Parent)))
	fmt.Fprintf(&b, "epic: %s\n", yamlOpt(strPtr(issue.Epic)))
	fmt.Fprintf(&b, "blocks: %s\n", yamlArray(issue.Blocks))
	fmt.Fprintf(&b, "blocked_by: %s\n", yamlArray(issue.BlockedBy))
	fmt.Fprintf(&b, "relates_to: %s\n", yamlArray(issue.RelatesTo))
	fmt.Fprintf(&b, "due_at: %s\n", yamlOpt(dueAt))
	b.WriteString("version: 2\n")
	fmt.Fprintf(&b, "source_url: %s\n", yamlQuote(issue.SourceURL))
	b.WriteString("---\n\n")

	b.WriteString("## Summary\n\n")
	b.WriteString(summary)
	b.WriteString("\n\n")

	b.WriteString("## Acceptance Criteria\n\n")
	if len(criteria) == 0 {
		b.WriteString("- [ ] TBD\n\n")
	} else {
		for _, line := range criteria {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Implementation Notes\n\n")
	trimmedNotes := strings.TrimSpace(notes)
	if trimmedNotes == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(trimmedNotes)
		b.WriteString("\n")
	}
	if len(issue.Attachments) > 0 {
		b.WriteString("\n")
		for _, a := range issue.Attachments {
			fmt.Fprintf(&b, "- attachment: %s (%s)\n", redactSecrets(a.Filename), a.ID)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Test Evidence\n\n")
	b.WriteString("(none yet)\n\n")

	b.WriteString("## Comments\n\n")
	fmt.Fprintf(&b, "%d comment(s). See `%s.comments.md`.\n", len(issue.Comments), issue.Key)

	return []byte(redactSecrets(b.String()))
}

// RenderComments produces the deterministic comments sidecar.
func RenderComments(issue IssueData) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s comments\n\n", issue.Key)
	if len(issue.Comments) == 0 {
		b.WriteString("(no comments)\n")
		return []byte(b.String())
	}

	for idx, comment := range issue.Comments {
		author := redactSecrets(orDefault(comment.AuthorDisplayName, "unknown"))
		created := "unknown"
		if n := normalizeISOUTC(comment.Created); n != nil {
			created = *n
		}
		body := adfToMarkdown(comment.Body)

		fmt.Fprintf(&b, "## %d\n\n", idx+1)
		fmt.Fprintf(&b, "- id: %s\n", comment.ID)
		fmt.Fprintf(&b, "- author: %s\n", author)
		fmt.Fprintf(&b, "- created_at: %s\n\n", created)

		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			b.WriteString("(empty comment)\n\n")
		} else {
			b.WriteString(trimmed)
			b.WriteString("\n\n")
		}
	}

	return []byte(b.String())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func splitAcceptanceCriteria(markdown string) (criteria []string, notes string) {
	var notesLines []string
	for _, rawLine := range strings.Split(markdown, "\n") {
		line := strings.TrimRight(rawLine, " \t\r")
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "- [ ]") || strings.HasPrefix(lower, "- [x]") {
			criteria = append(criteria, line)
		} else {
			notesLines = append(notesLines, line)
		}
	}
	return criteria, strings.TrimSpace(strings.Join(notesLines, "\n"))
}

func canonicalStatus(raw string) string {
	switch strings.ToLower(raw) {
	case "done", "closed", "resolved":
		return "done"
	case "in review", "review", "qa":
		return "in_review"
	case "blocked":
		return "blocked"
	case "in progress", "doing", "active":
		return "in_progress"
	default:
		return "todo"
	}
}

func canonicalType(raw string) string {
	switch strings.ToLower(raw) {
	case "epic":
		return "epic"
	case "story":
		return "story"
	case "bug":
		return "bug"
	case "sub-task", "subtask":
		return "subtask"
	default:
		return "task"
	}
}

func canonicalPriority(raw string) string {
	switch strings.ToLower(raw) {
	case "highest", "blocker":
		return "p0"
	case "high":
		return "p1"
	case "medium":
		return "p2"
	case "low":
		return "p3"
	default:
		return "p4"
	}
}

func yamlOpt(v *string) string {
	if v == nil {
		return "null"
	}
	return yamlQuote(*v)
}

func yamlArray(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = yamlQuote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func yamlQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
}

// normalizeISOUTC parses raw as RFC-3339 or one of two strftime-shaped
// layouts, converts to UTC, and emits "2006-01-02T15:04:05Z". Returns nil
// when raw is empty or unparsable by any of the three layouts.
func normalizeISOUTC(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			out := ts.UTC().Format("2006-01-02T15:04:05Z")
			return &out
		}
	}
	return nil
}

// adfToMarkdown converts an Atlassian-Document-Format-shaped JSON tree into
// markdown text. Unrecognized shapes degrade gracefully to their content.
func adfToMarkdown(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return redactSecrets(strings.TrimSpace(adfToMarkdownInner(v)))
}

func adfToMarkdownInner(value any) string {
	switch val := value.(type) {
	case string:
		return val
	case []any:
		var parts []string
		for _, item := range val {
			s := adfToMarkdownInner(item)
			if strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		return adfObjectToMarkdown(val)
	default:
		return ""
	}
}

func adfObjectToMarkdown(m map[string]any) string {
	nodeType, _ := m["type"].(string)

	switch nodeType {
	case "text":
		text, _ := m["text"].(string)
		if link := extractMarkLink(m["marks"]); link != "" && text != "" {
			return fmt.Sprintf("[%s](%s)", text, link)
		}
		return text
	case "hardBreak":
		return "\n"
	case "paragraph", "heading":
		content := adfContent(m)
		return strings.TrimSpace(content) + "\n"
	case "mention":
		attrs, _ := m["attrs"].(map[string]any)
		display := "unknown"
		if attrs != nil {
			if t, ok := attrs["text"].(string); ok && t != "" {
				display = t
			} else if dn, ok := attrs["displayName"].(string); ok && dn != "" {
				display = dn
			}
		}
		if strings.HasPrefix(display, "@") {
			return display
		}
		return "@" + display
	case "emoji":
		attrs, _ := m["attrs"].(map[string]any)
		if attrs != nil {
			if sn, ok := attrs["shortName"].(string); ok && sn != "" {
				return sn
			}
			if t, ok := attrs["text"].(string); ok && t != "" {
				return t
			}
		}
		return ":emoji:"
	case "inlineCard", "blockCard":
		attrs, _ := m["attrs"].(map[string]any)
		url := ""
		if attrs != nil {
			if u, ok := attrs["url"].(string); ok {
				url = u
			}
		}
		if url == "" {
			return ""
		}
		return fmt.Sprintf("[%s](%s)", url, url)
	case "media", "file":
		return ""
	default:
		if content, ok := m["content"]; ok {
			return adfToMarkdownInner(content)
		}
		if text, ok := m["text"]; ok {
			return adfToMarkdownInner(text)
		}
		return ""
	}
}

func adfContent(m map[string]any) string {
	content, ok := m["content"]
	if !ok {
		return ""
	}
	return adfToMarkdownInner(content)
}

func extractMarkLink(marks any) string {
	list, ok := marks.([]any)
	if !ok {
		return ""
	}
	for _, mark := range list {
		markObj, ok := mark.(map[string]any)
		if !ok {
			continue
		}
		kind, _ := markObj["type"].(string)
		if kind != "link" {
			continue
		}
		attrs, ok := markObj["attrs"].(map[string]any)
		if !ok {
			continue
		}
		if href, ok := attrs["href"].(string); ok {
			return href
		}
	}
	return ""
}
