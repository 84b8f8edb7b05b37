package llm

import (
	"strings"
	"testing"
)

func TestTrimToBudgetKeepsAllWhenUnderBudget(t *testing.T) {
	msgs := []Message{
		UserText("hello"),
		AssistantText("hi there"),
		UserText("how are you"),
	}
	got := TrimToBudget(msgs, 10000)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages got %d", len(got))
	}
}

func TestTrimToBudgetDropsOldestFirst(t *testing.T) {
	long := strings.Repeat("lorem ipsum ", 200) // ~600 tokens
	msgs := []Message{
		{Role: RoleUser, Text: long + "first"},
		{Role: RoleAssistant, Text: long + "second"},
		{Role: RoleUser, Text: long + "third"},
		{Role: RoleAssistant, Text: long + "fourth"},
		{Role: RoleUser, Text: "latest question"},
	}
	got := TrimToBudget(msgs, 1400)

	if len(got) == 0 || len(got) >= len(msgs) {
		t.Fatalf("expected a strict prefix drop, got %d of %d", len(got), len(msgs))
	}
	// Oldest turns go first: the retained slice must be a suffix.
	if got[len(got)-1].Text != "latest question" {
		t.Fatalf("most recent turn lost: %q", got[len(got)-1].Text)
	}
	for i := range got {
		if got[i].Text != msgs[len(msgs)-len(got)+i].Text {
			t.Fatalf("trim is not a suffix at %d", i)
		}
	}
}

func TestTrimToBudgetAlwaysRetainsLatestUserTurn(t *testing.T) {
	huge := strings.Repeat("x", 40000) // way past any budget
	msgs := []Message{
		AssistantText("older"),
		{Role: RoleUser, Text: huge},
		{Role: RoleAssistant, Text: "trailing assistant turn"},
	}
	got := TrimToBudget(msgs, 100)

	found := false
	for _, m := range got {
		if m.Role == RoleUser && m.Text == huge {
			found = true
		}
	}
	if !found {
		t.Fatal("latest user turn must survive trimming")
	}
}

func TestEstimateTokensChargesAttachments(t *testing.T) {
	plain := EstimateTokens(Message{Role: RoleUser, Text: "hi"})
	withFile := EstimateTokens(Message{
		Role:        RoleUser,
		Text:        "hi",
		Attachments: []Attachment{{Path: "a.png", Kind: AttachmentImage, Format: "png"}},
	})
	if withFile <= plain {
		t.Fatalf("attachment should cost tokens: %d <= %d", withFile, plain)
	}
}
