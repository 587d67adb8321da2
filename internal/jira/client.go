// Package jira is the bounded-concurrency, retrying REST client for the
// remote issue tracker (C3): pagination, retry-with-backoff, base-URL
// normalization, and link categorization live here.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kcartwright/jirafs/internal/logging"
	"github.com/kcartwright/jirafs/internal/metrics"
)

const maxResultsPerPage = 50

// Client is a blocking HTTP client keyed by (base_url, email, token).
type Client struct {
	BaseURL string
	Email   string
	Token   string

	http       *http.Client
	maxRetries int
	limiter    *limiter
	metrics    *metrics.Metrics
}

// NewClient builds a Client with its own private metrics sink.
func NewClient(baseURL, email, token string) (*Client, error) {
	return NewClientWithMetrics(baseURL, email, token, metrics.New())
}

// NewClientWithMetrics builds a Client that reports to a shared Metrics
// instance, normalizing baseURL and validating it is a usable absolute URL.
func NewClientWithMetrics(baseURL, email, token string, m *metrics.Metrics) (*Client, error) {
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:    normalized,
		Email:      email,
		Token:      token,
		http:       &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		limiter:    newLimiter(4),
		metrics:    m,
	}, nil
}

// normalizeBaseURL collapses the common copy-paste typos seen in real
// workspace configs (missing colon, doubled scheme) before handing the
// result to url.Parse, and strips any trailing slash.
func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}

	candidate := trimmed

	switch {
	case strings.HasPrefix(candidate, "https://https//"):
		candidate = "https://" + strings.TrimPrefix(candidate, "https://https//")
	case strings.HasPrefix(candidate, "http://http//"):
		candidate = "http://" + strings.TrimPrefix(candidate, "http://http//")
	}

	switch {
	case strings.HasPrefix(candidate, "https//"):
		candidate = "https://" + strings.TrimPrefix(candidate, "https//")
	case strings.HasPrefix(candidate, "http//"):
		candidate = "http://" + strings.TrimPrefix(candidate, "http//")
	case !strings.HasPrefix(candidate, "https://") && !strings.HasPrefix(candidate, "http://"):
		candidate = "https://" + candidate
	}

	parsed, err := url.Parse(candidate)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

// requestWithRetry acquires a limiter permit once for the whole call, then
// retries the built request up to maxRetries times on a retryable status.
// Transport-level errors return immediately without retry.
func (c *Client) requestWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, []byte, error) {
	release := c.limiter.acquire()
	defer release()

	var resp *http.Response
	var body []byte

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, nil, &TransportError{Err: err}
		}
		req = req.WithContext(ctx)
		req.SetBasicAuth(c.Email, c.Token)
		requestID := uuid.NewString()
		req.Header.Set("X-Request-Id", requestID)
		req.Header.Set("Accept", "application/json")

		c.metrics.IncAPIRequest()
		resp, err = c.http.Do(req)
		if err != nil {
			logging.Warnf("jira request transport error on attempt %d: %v", attempt+1, err)
			return nil, nil, &TransportError{Err: err}
		}

		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, nil, &TransportError{Err: err}
		}

		if !isRetryable(resp.StatusCode) || attempt == c.maxRetries {
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				logging.Warnf("jira request completed with status %d after %d attempt(s) request_id=%s",
					resp.StatusCode, attempt+1, requestID)
			}
			return resp, body, nil
		}

		wait := retryAfterOrBackoff(resp, attempt)
		logging.Debugf("jira retryable status %d attempt %d waiting %s request_id=%s",
			resp.StatusCode, attempt+1, wait, requestID)
		c.metrics.IncRetry()
		time.Sleep(wait)
	}

	return resp, body, nil
}

func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func retryAfterOrBackoff(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.ParseInt(header, 10, 64); err == nil && seconds >= 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second
		}
	}
	capped := attempt
	if capped > 4 {
		capped = 4
	}
	return time.Duration(1<<uint(capped)) * time.Second
}

func httpErrorFor(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
}

// SearchIssueRefsForQuery paginates a JQL query, returning only (key,
// updated) pairs. Handles both nextPageToken and startAt/total pagination
// within one loop.
func (c *Client) SearchIssueRefsForQuery(ctx context.Context, jql string) ([]IssueRef, error) {
	if !strings.Contains(strings.ToUpper(jql), "ORDER BY") {
		jql = jql + " ORDER BY key ASC"
	}

	var all []IssueRef
	startAt := 0
	var nextPageToken string

	for {
		path := c.BaseURL + "/rest/api/3/search/jql"
		tokenSnapshot := nextPageToken
		startAtSnapshot := startAt
		resp, body, err := c.requestWithRetry(ctx, func() (*http.Request, error) {
			req, err := http.NewRequest(http.MethodGet, path, nil)
			if err != nil {
				return nil, err
			}
			q := url.Values{}
			q.Set("jql", jql)
			q.Set("fields", "updated")
			q.Set("maxResults", strconv.Itoa(maxResultsPerPage))
			if tokenSnapshot != "" {
				q.Set("nextPageToken", tokenSnapshot)
			} else {
				q.Set("startAt", strconv.Itoa(startAtSnapshot))
			}
			req.URL.RawQuery = q.Encode()
			return req, nil
		})
		if err != nil {
			return nil, err
		}
		if httpErr := httpErrorFor(resp, body); httpErr != nil {
			return nil, httpErr
		}

		var payload searchResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			short := truncateBody(string(body))
			logging.Warnf("failed decoding jira search response: %s", short)
			return nil, &DecodeError{Err: err, Body: short}
		}

		pageIssues := payload.takeIssues()
		logging.Debugf("jira search page_count=%d start_at=%d next_page_token_present=%v",
			len(pageIssues), startAtSnapshot, payload.NextPageToken != nil && *payload.NextPageToken != "")

		for _, issue := range pageIssues {
			all = append(all, IssueRef{Key: issue.Key, Updated: issue.Fields.Updated})
		}

		if payload.NextPageToken != nil {
			token := *payload.NextPageToken
			if token == "" || (payload.IsLast != nil && *payload.IsLast) {
				break
			}
			nextPageToken = token
			continue
		}

		startAt += len(pageIssues)
		if payload.Total != nil {
			if startAt >= *payload.Total {
				break
			}
			continue
		}

		if (payload.IsLast == nil || *payload.IsLast) || len(pageIssues) == 0 {
			break
		}
	}

	if len(all) == 0 {
		logging.Warnf("jira query %q returned zero issues; verify project key and Browse Project permission", jql)
	}

	return all, nil
}

// SearchIssuesBulk fetches one page of a query, starting at startAt, with
// full issue payloads.
// pageSize is clamped by the caller to <= 100; pagination beyond the first
// page is the caller's responsibility to drive via repeated calls against
// an advancing cursor, matching the sync engine's one-page-per-call budget.
func (c *Client) SearchIssuesBulk(ctx context.Context, jql string, pageSize, startAt int) ([]IssueData, *string, bool, error) {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	path := c.BaseURL + "/rest/api/3/search/jql"
	resp, body, err := c.requestWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("fields", "summary,status,issuetype,priority,assignee,reporter,labels,created,updated,duedate,parent,epic,issuelinks,description,comment,project,attachment")
		q.Set("maxResults", strconv.Itoa(pageSize))
		q.Set("startAt", strconv.Itoa(startAt))
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	if httpErr := httpErrorFor(resp, body); httpErr != nil {
		return nil, nil, false, httpErr
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		short := truncateBody(string(body))
		logging.Warnf("failed decoding jira bulk search response: %s", short)
		return nil, nil, false, &DecodeError{Err: err, Body: short}
	}

	pageIssues := payload.takeIssues()
	out := make([]IssueData, 0, len(pageIssues))
	for _, issue := range pageIssues {
		sourceURL := c.BaseURL + "/browse/" + issue.Key
		out = append(out, issueDataFromFields(issue.Key, sourceURL, issue.Fields))
	}

	isLast := len(pageIssues) < pageSize
	if payload.Total != nil {
		isLast = startAt+len(pageIssues) >= *payload.Total
	}
	if payload.IsLast != nil {
		isLast = *payload.IsLast
	}

	return out, payload.NextPageToken, isLast, nil
}

// GetIssue fetches one issue's full payload by key.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*IssueData, error) {
	path := c.BaseURL + "/rest/api/3/issue/" + issueKey
	resp, body, err := c.requestWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("fields", "summary,status,issuetype,priority,assignee,reporter,labels,created,updated,duedate,parent,epic,issuelinks,description,comment,project,attachment")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if httpErr := httpErrorFor(resp, body); httpErr != nil {
		return nil, httpErr
	}

	var payload issueResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Err: err, Body: truncateBody(string(body))}
	}

	data := issueDataFromFields(payload.Key, c.BaseURL+"/browse/"+payload.Key, payload.Fields)
	return &data, nil
}

// GetMyself probes the identity behind the configured credentials.
func (c *Client) GetMyself(ctx context.Context) (*JiraIdentity, error) {
	path := c.BaseURL + "/rest/api/3/myself"
	resp, body, err := c.requestWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, path, nil)
	})
	if err != nil {
		return nil, err
	}
	if httpErr := httpErrorFor(resp, body); httpErr != nil {
		return nil, httpErr
	}

	var payload myselfResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Err: err, Body: truncateBody(string(body))}
	}

	return &JiraIdentity{
		AccountID:    payload.AccountID,
		DisplayName:  payload.DisplayName,
		EmailAddress: payload.EmailAddress,
	}, nil
}

// ListVisibleProjects returns the project keys visible to the configured
// credentials.
func (c *Client) ListVisibleProjects(ctx context.Context) ([]string, error) {
	path := c.BaseURL + "/rest/api/3/project/search"
	resp, body, err := c.requestWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		q := url.Values{}
		q.Set("maxResults", "100")
		req.URL.RawQuery = q.Encode()
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if httpErr := httpErrorFor(resp, body); httpErr != nil {
		return nil, httpErr
	}

	var payload projectSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &DecodeError{Err: err, Body: truncateBody(string(body))}
	}

	keys := make([]string, 0, len(payload.Values))
	for _, p := range payload.Values {
		keys = append(keys, p.Key)
	}
	return keys, nil
}
