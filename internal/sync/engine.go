// Package sync implements the sync engine (C5): one pass per workspace
// that fetches a single page of issues from the remote client, merges or
// replaces the workspace's cached listing, renders and persists the
// issues it can afford within budget, and advances the workspace's cursor.
package sync

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kcartwright/jirafs/internal/cache"
	"github.com/kcartwright/jirafs/internal/config"
	"github.com/kcartwright/jirafs/internal/jira"
	"github.com/kcartwright/jirafs/internal/logging"
	"github.com/kcartwright/jirafs/internal/render"
	"github.com/kcartwright/jirafs/internal/store"
)

// Result is what SyncAll returns: how many issues were fully cached, how
// many workspaces produced an empty page, and any per-workspace failures.
type Result struct {
	Cached  int
	Skipped int
	Errors  []string
}

const bulkPageCap = 100

// SyncAll runs one sync pass over every configured workspace in name order.
// C2 must be backed by a persistent store; otherwise it returns immediately
// with a single error entry and does no work.
func SyncAll(ctx context.Context, client *jira.Client, c *cache.Cache, st *store.Store, workspaces map[string]config.WorkspaceConfig, budget int, forceFull bool) Result {
	if st == nil {
		return Result{Errors: []string{"sync requires a persistent store; none configured"}}
	}

	names := make([]string, 0, len(workspaces))
	for name := range workspaces {
		names = append(names, name)
	}
	sort.Strings(names)

	result := Result{}

	for _, name := range names {
		if result.Cached >= budget {
			break
		}

		ws := workspaces[name]
		if err := syncWorkspace(ctx, client, c, st, name, ws.Query, budget, forceFull, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("workspace %s: %v", name, err))
		}
	}

	return result
}

func syncWorkspace(ctx context.Context, client *jira.Client, c *cache.Cache, st *store.Store, name, baseQuery string, budget int, forceFull bool, result *Result) error {
	var cursor *string
	if !forceFull {
		got, err := st.GetSyncCursor(name)
		if err != nil {
			return fmt.Errorf("read cursor: %w", err)
		}
		cursor = got
	}

	jql := composeQuery(baseQuery, cursor)
	pageSize := budget
	if pageSize > bulkPageCap || pageSize <= 0 {
		pageSize = bulkPageCap
	}

	issues, _, _, err := client.SearchIssuesBulk(ctx, jql, pageSize, 0)
	if err != nil {
		return fmt.Errorf("search issues: %w", err)
	}

	latestRefs := make([]store.IssueRef, 0, len(issues))
	for _, issue := range issues {
		latestRefs = append(latestRefs, store.IssueRef{Key: issue.Key, Updated: issue.Updated})
	}

	if err := applyListing(c, name, cursor, latestRefs); err != nil {
		return fmt.Errorf("apply listing: %w", err)
	}

	if len(issues) == 0 {
		result.Skipped++
		return nil
	}

	remaining := budget - result.Cached
	if remaining < 0 {
		remaining = 0
	}
	take := len(issues)
	if take > remaining {
		take = remaining
	}
	toRender := issues[:take]

	if err := renderAndUpsert(c, toRender); err != nil {
		return fmt.Errorf("render and upsert: %w", err)
	}
	result.Cached += len(toRender)

	for _, issue := range issues {
		if issue.Updated != nil {
			if err := st.SetSyncCursor(name, *issue.Updated); err != nil {
				return fmt.Errorf("set cursor: %w", err)
			}
			break
		}
	}

	logging.Infof("sync workspace=%s fetched=%d rendered=%d", name, len(issues), len(toRender))
	return nil
}

func composeQuery(baseQuery string, cursor *string) string {
	if cursor == nil {
		return "(" + baseQuery + ")"
	}
	return fmt.Sprintf(`(%s) AND updated > "%s" ORDER BY updated DESC`, baseQuery, *cursor)
}

func applyListing(c *cache.Cache, workspace string, cursor *string, latestRefs []store.IssueRef) error {
	if cursor == nil {
		return c.UpsertWorkspaceIssues(workspace, latestRefs)
	}

	existing, err := c.ListWorkspaceIssueRefsFromPersistence(workspace)
	if err != nil {
		return err
	}
	merged := make(map[string]store.IssueRef, len(existing)+len(latestRefs))
	for _, ref := range existing {
		merged[ref.Key] = ref
	}
	for _, ref := range latestRefs {
		merged[ref.Key] = ref
	}

	out := make([]store.IssueRef, 0, len(merged))
	for _, ref := range merged {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return c.UpsertWorkspaceIssues(workspace, out)
}

func renderAndUpsert(c *cache.Cache, issues []jira.IssueData) error {
	mainRows := make([]cache.IssueRow, len(issues))
	sidecarRows := make([]cache.SidecarRow, len(issues))

	g := new(errgroup.Group)
	for i, issue := range issues {
		i, issue := i, issue
		g.Go(func() error {
			rendered := toRenderData(issue)
			mainRows[i] = cache.IssueRow{Key: issue.Key, Markdown: render.RenderIssue(rendered), Updated: issue.Updated}
			sidecarRows[i] = cache.SidecarRow{Key: issue.Key, CommentsMD: render.RenderComments(rendered), Updated: issue.Updated}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.UpsertIssuesBatch(mainRows); err != nil {
		return err
	}
	return c.UpsertIssueSidecarsBatch(sidecarRows)
}

func toRenderData(issue jira.IssueData) render.IssueData {
	data := render.IssueData{
		Key:         issue.Key,
		Project:     issue.Project,
		Summary:     issue.Summary,
		Status:      issue.Status,
		Type:        issue.Type,
		Priority:    issue.Priority,
		Labels:      issue.Labels,
		Created:     derefOr(issue.Created),
		Updated:     derefOr(issue.Updated),
		DueAt:       derefOr(issue.DueAt),
		Parent:      derefOr(issue.Parent),
		Epic:        derefOr(issue.Epic),
		Blocks:      issue.Blocks,
		BlockedBy:   issue.BlockedBy,
		RelatesTo:   issue.RelatesTo,
		Description: issue.Description,
		SourceURL:   issue.SourceURL,
	}
	if issue.Assignee != nil {
		data.Assignee = issue.Assignee.DisplayName
	}
	if issue.Reporter != nil {
		data.Reporter = issue.Reporter.DisplayName
	}
	data.Attachments = make([]render.Attachment, len(issue.Attachments))
	for i, a := range issue.Attachments {
		data.Attachments[i] = render.Attachment{ID: a.ID, Filename: a.Filename}
	}
	data.Comments = make([]render.Comment, len(issue.Comments))
	for i, comment := range issue.Comments {
		data.Comments[i] = render.Comment{
			ID:                comment.ID,
			AuthorDisplayName: comment.AuthorDisplayName,
			Body:              comment.Body,
			Created:           comment.Created,
		}
	}
	return data
}

func derefOr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
