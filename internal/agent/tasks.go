package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mindvault/internal/llm"
	"mindvault/internal/store"
)

// corpusBudget caps how much note text a thin task feeds the model.
const corpusBudget = 24 * 1024

// RegisterBuiltinTasks registers the daemon's maintenance tasks in
// their fixed order.
func RegisterBuiltinTasks(s *Scheduler, learning *Task) {
	s.Register(&Task{
		Name:        "auto-tagging",
		Description: "Suggest and apply tags for untagged pages",
		Run:         runAutoTagging,
	})
	s.Register(&Task{
		Name:        "cross-reference",
		Description: "Find connections between pages",
		Run:         runCrossReference,
	})
	s.Register(&Task{
		Name:        "daily-briefing",
		Description: "Write a daily journal briefing of recent activity",
		HourOfDay:   true,
		Run:         runDailyBriefing,
	})
	if learning != nil {
		s.Register(learning)
	}
}

// runAutoTagging asks the model for tags for untagged pages and writes
// them back.
func runAutoTagging(ctx context.Context, env *Context) (string, error) {
	pages, err := env.Notes.ListPages(env.VaultID())
	if err != nil {
		return "", err
	}

	var untagged []*store.Page
	for i := range pages {
		if len(pages[i].Tags) == 0 && !pages[i].IsJournal {
			untagged = append(untagged, &pages[i])
		}
	}
	if len(untagged) == 0 {
		return "no untagged pages", nil
	}

	client, err := env.LLM(ctx)
	if err != nil {
		return "", err
	}

	tagged := 0
	for _, page := range untagged {
		blocks, err := env.Notes.PageBlocks(page.ID)
		if err != nil {
			return "", err
		}
		var body strings.Builder
		for _, b := range blocks {
			body.WriteString(b.Content + "\n")
		}

		prompt := fmt.Sprintf(
			"Suggest up to 5 short topic tags for this note. Reply with a comma-separated list only.\n\nTitle: %s\n\n%s",
			page.Title, truncateText(body.String(), 4096))
		resp, err := client.CompleteWithOptions(ctx, llm.Request{
			Prompt: prompt, Temperature: 0.2, MaxTokens: 128,
		})
		if err != nil {
			// One page failing does not stop the pass.
			env.Events.Zap().Sugar().Warnf("tag suggestion failed for %q: %v", page.Title, err)
			continue
		}

		tags := parseTagList(resp)
		if len(tags) == 0 {
			continue
		}
		page.Tags = tags
		if err := env.Notes.UpdatePage(page); err != nil {
			return "", err
		}
		tagged++
	}
	return fmt.Sprintf("tagged %d of %d untagged pages", tagged, len(untagged)), nil
}

// runCrossReference asks the model for connections across the corpus
// and stores them on a dedicated page.
func runCrossReference(ctx context.Context, env *Context) (string, error) {
	corpus, err := env.BuildCorpus(corpusBudget)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(corpus) == "" {
		return "no notes to cross-reference", nil
	}

	client, err := env.LLM(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.CompleteWithOptions(ctx, llm.Request{
		System:      "You connect ideas across a personal knowledge base.",
		Prompt:      "List the strongest topical connections between these notes, one per line, as 'A <-> B: reason'.\n\n" + corpus,
		Temperature: 0.5,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}

	var blocks []store.Block
	for i, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line == "" {
			continue
		}
		blocks = append(blocks, store.Block{
			ID:      uuid.NewString(),
			Type:    store.BlockBullet,
			Content: line,
			SortKey: fmt.Sprintf("a%06d", i),
		})
	}
	if len(blocks) == 0 {
		return "no connections found", nil
	}

	page := &store.Page{
		ID:      uuid.NewString(),
		VaultID: env.VaultID(),
		Title:   "Cross-references " + time.Now().Format("2006-01-02 15:04"),
		Tags:    []string{"auto-generated", "cross-reference"},
	}
	if err := env.Notes.CreatePage(page, withPage(page.ID, blocks)); err != nil {
		return "", err
	}
	return fmt.Sprintf("recorded %d connections", len(blocks)), nil
}

// runDailyBriefing writes a journal page summarizing the vault.
func runDailyBriefing(ctx context.Context, env *Context) (string, error) {
	corpus, err := env.BuildCorpus(corpusBudget)
	if err != nil {
		return "", err
	}

	client, err := env.LLM(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.CompleteWithOptions(ctx, llm.Request{
		System:      "You write concise morning briefings over a personal knowledge base.",
		Prompt:      "Write a short briefing: key themes, open threads, and one suggestion for today.\n\n" + corpus,
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	if err != nil {
		return "", err
	}

	var blocks []store.Block
	for i, para := range strings.Split(resp, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		blocks = append(blocks, store.Block{
			ID:      uuid.NewString(),
			Type:    store.BlockParagraph,
			Content: para,
			SortKey: fmt.Sprintf("a%06d", i),
		})
	}

	page := &store.Page{
		ID:        uuid.NewString(),
		VaultID:   env.VaultID(),
		Title:     "Briefing " + time.Now().Format("2006-01-02"),
		IsJournal: true,
		Tags:      []string{"auto-generated", "briefing"},
	}
	if err := env.Notes.CreatePage(page, withPage(page.ID, blocks)); err != nil {
		return "", err
	}
	return fmt.Sprintf("briefing written with %d sections", len(blocks)), nil
}

// parseTagList extracts clean tags from a comma-separated model reply.
func parseTagList(resp string) []string {
	resp = strings.TrimSpace(resp)
	if idx := strings.Index(resp, "\n"); idx >= 0 {
		resp = resp[:idx]
	}
	var tags []string
	for _, t := range strings.Split(resp, ",") {
		t = strings.ToLower(strings.Trim(strings.TrimSpace(t), "#.\"'`"))
		if t == "" || len(t) > 40 {
			continue
		}
		tags = append(tags, t)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n[truncated]"
}

func withPage(pageID string, blocks []store.Block) []store.Block {
	for i := range blocks {
		blocks[i].PageID = pageID
	}
	return blocks
}
