package jira

import (
	"sort"
	"strings"
)

// categorizeLinks sorts each issuelinks entry into blocks/blocked_by/
// relates_to: an outward link whose relation word contains "block"
// contributes to blocks, otherwise to relates_to; an inward link
// similarly contributes to blocked_by or relates_to. All three results are
// sorted and deduplicated.
func categorizeLinks(links []issueLinkObj) (blocks, blockedBy, relatesTo []string) {
	blocksSet := map[string]struct{}{}
	blockedBySet := map[string]struct{}{}
	relatesSet := map[string]struct{}{}

	for _, link := range links {
		if link.OutwardIssue != nil {
			if strings.Contains(strings.ToLower(link.Type.Outward), "block") {
				blocksSet[link.OutwardIssue.Key] = struct{}{}
			} else {
				relatesSet[link.OutwardIssue.Key] = struct{}{}
			}
		}
		if link.InwardIssue != nil {
			if strings.Contains(strings.ToLower(link.Type.Inward), "block") {
				blockedBySet[link.InwardIssue.Key] = struct{}{}
			} else {
				relatesSet[link.InwardIssue.Key] = struct{}{}
			}
		}
	}

	return sortedKeys(blocksSet), sortedKeys(blockedBySet), sortedKeys(relatesSet)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
