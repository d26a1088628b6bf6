// Package agent contains the daemon's core: the shared task context,
// the serial task scheduler, and the built-in maintenance tasks that
// run against the knowledge base.
package agent

import (
	"context"
	"fmt"
	"strings"

	"mindvault/internal/config"
	"mindvault/internal/llm"
	"mindvault/internal/logging"
	"mindvault/internal/permissions"
	"mindvault/internal/sandbox"
	"mindvault/internal/store"
)

// NotesStore is the slice of the data-access façade the built-in tasks
// use. *store.Store satisfies it.
type NotesStore interface {
	ListPages(vaultID string) ([]store.Page, error)
	GetPage(id string) (*store.Page, error)
	PageBlocks(pageID string) ([]store.Block, error)
	CreatePage(p *store.Page, blocks []store.Block) error
	UpdatePage(p *store.Page) error
}

// StatusSink persists the daemon status row. *store.Store satisfies it.
type StatusSink interface {
	UpsertStatus(st store.DaemonStatus) error
}

// ResolveLLM yields the language-model client for one task run.
type ResolveLLM func(ctx context.Context) (llm.Client, error)

// Context is the explicitly constructed dependency bundle passed by
// reference into every task and layer. There are no ambient singletons.
type Context struct {
	Config   config.Config
	Settings *config.Settings
	Events   *logging.EventLogger
	Notes    NotesStore
	Status   StatusSink
	Gate     *permissions.Gate
	FS       *sandbox.FS
	Syncer   *sandbox.Syncer
	LLM      ResolveLLM
}

// VaultID returns the vault this daemon instance works against.
func (c *Context) VaultID() string { return c.Config.VaultID }

// BuildCorpus renders the vault's pages into one prompt-sized text
// body: title, tags, then block contents. Output is capped at maxBytes
// with a truncation marker.
func (c *Context) BuildCorpus(maxBytes int) (string, error) {
	pages, err := c.Notes.ListPages(c.VaultID())
	if err != nil {
		return "", fmt.Errorf("failed to load corpus: %w", err)
	}

	var b strings.Builder
	for i := range pages {
		page := &pages[i]
		b.WriteString("## " + page.Title + "\n")
		if len(page.Tags) > 0 {
			b.WriteString("tags: " + strings.Join(page.Tags, ", ") + "\n")
		}
		blocks, err := c.Notes.PageBlocks(page.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load blocks for %q: %w", page.Title, err)
		}
		for _, blk := range blocks {
			if strings.TrimSpace(blk.Content) == "" {
				continue
			}
			b.WriteString(blk.Content + "\n")
		}
		b.WriteString("\n")
		if maxBytes > 0 && b.Len() > maxBytes {
			break
		}
	}

	corpus := b.String()
	if maxBytes > 0 && len(corpus) > maxBytes {
		corpus = corpus[:maxBytes] + "\n[corpus truncated]"
	}
	return corpus, nil
}
