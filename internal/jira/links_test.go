package jira

import "testing"

func TestCategorizeLinksSplitsBlocksFromRelates(t *testing.T) {
	links := []issueLinkObj{
		{
			Type:         issueLinkTypeObj{Outward: "blocks", Inward: "is blocked by"},
			OutwardIssue: &linkedIssueObj{Key: "PROJ-2"},
		},
		{
			Type:        issueLinkTypeObj{Outward: "blocks", Inward: "is blocked by"},
			InwardIssue: &linkedIssueObj{Key: "PROJ-3"},
		},
		{
			Type:         issueLinkTypeObj{Outward: "relates to", Inward: "relates to"},
			OutwardIssue: &linkedIssueObj{Key: "PROJ-4"},
		},
		{
			Type:         issueLinkTypeObj{Outward: "blocks", Inward: "is blocked by"},
			OutwardIssue: &linkedIssueObj{Key: "PROJ-2"},
		},
	}

	blocks, blockedBy, relatesTo := categorizeLinks(links)

	if len(blocks) != 1 || blocks[0] != "PROJ-2" {
		t.Fatalf("expected deduped blocks=[PROJ-2], got %v", blocks)
	}
	if len(blockedBy) != 1 || blockedBy[0] != "PROJ-3" {
		t.Fatalf("expected blocked_by=[PROJ-3], got %v", blockedBy)
	}
	if len(relatesTo) != 1 || relatesTo[0] != "PROJ-4" {
		t.Fatalf("expected relates_to=[PROJ-4], got %v", relatesTo)
	}
}

func TestCategorizeLinksSortsResults(t *testing.T) {
	links := []issueLinkObj{
		{Type: issueLinkTypeObj{Outward: "blocks"}, OutwardIssue: &linkedIssueObj{Key: "PROJ-9"}},
		{Type: issueLinkTypeObj{Outward: "blocks"}, OutwardIssue: &linkedIssueObj{Key: "PROJ-1"}},
	}
	blocks, _, _ := categorizeLinks(links)
	if len(blocks) != 2 || blocks[0] != "PROJ-1" || blocks[1] != "PROJ-9" {
		t.Fatalf("expected sorted [PROJ-1 PROJ-9], got %v", blocks)
	}
}
