package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mindvault/internal/logging"
	"mindvault/internal/store"
)

// NotesStore is the slice of the data-access façade the sync layer
// needs. *store.Store satisfies it.
type NotesStore interface {
	ListPages(vaultID string) ([]store.Page, error)
	GetPage(id string) (*store.Page, error)
	PageBlocks(pageID string) ([]store.Block, error)
	CreatePage(p *store.Page, blocks []store.Block) error
	UpdatePage(p *store.Page) error
	ReplaceBlocks(pageID string, blocks []store.Block) error
}

// ExportResult counts an export run.
type ExportResult struct {
	Exported int `json:"exported"`
}

// ImportResult counts an import run.
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
}

// Syncer converts pages to markdown files and back.
type Syncer struct {
	fs      *FS
	notes   NotesStore
	events  *logging.EventLogger
	vaultID string
}

// NewSyncer builds the page ⇄ file sync layer.
func NewSyncer(fs *FS, notes NotesStore, events *logging.EventLogger, vaultID string) *Syncer {
	return &Syncer{fs: fs, notes: notes, events: events, vaultID: vaultID}
}

// Export walks every page in the vault and writes one markdown file per
// page into subdir under the sandbox root.
func (s *Syncer) Export(subdir string) (ExportResult, error) {
	var result ExportResult
	pages, err := s.notes.ListPages(s.vaultID)
	if err != nil {
		return result, fmt.Errorf("failed to list pages: %w", err)
	}
	if err := s.fs.EnsureDir(subdir); err != nil {
		return result, err
	}

	used := make(map[string]bool)
	for i := range pages {
		page := &pages[i]
		blocks, err := s.notes.PageBlocks(page.ID)
		if err != nil {
			return result, fmt.Errorf("failed to load blocks for %q: %w", page.Title, err)
		}

		name := sanitizeFilename(page.Title)
		if used[name] {
			suffix := page.ID
			if len(suffix) > 8 {
				suffix = suffix[:8]
			}
			name = name + "-" + suffix
		}
		used[name] = true

		content := renderPage(page, blocks)
		if err := s.fs.WriteFile(filepath.Join(subdir, name+".md"), []byte(content)); err != nil {
			return result, err
		}
		result.Exported++
	}

	s.events.Event(logging.EventSyncExport, "", map[string]any{"dir": subdir, "exported": result.Exported})
	return result, nil
}

// renderPage builds the file content: front matter, a title heading, and
// one markup fragment per block separated by blank lines.
func renderPage(page *store.Page, blocks []store.Block) string {
	fm := frontMatter{
		ID:         page.ID,
		Title:      page.Title,
		Created:    page.CreatedAt,
		Updated:    page.UpdatedAt,
		Journal:    page.IsJournal,
		Favorite:   page.IsFavorite,
		Pinned:     page.IsPinned,
		Tags:       page.Tags,
		Properties: page.Properties,
	}

	var b strings.Builder
	b.WriteString(serializeFrontMatter(fm))
	b.WriteString("\n# " + page.Title + "\n")
	for _, blk := range blocks {
		b.WriteString("\n" + blockToMarkdown(blk) + "\n")
	}
	return b.String()
}

// Import reads every markdown file in subdir and creates or updates the
// matching pages. A missing directory means nothing to import yet.
func (s *Syncer) Import(subdir string) (ImportResult, error) {
	var result ImportResult

	exists, err := s.fs.Exists(subdir)
	if err != nil {
		return result, err
	}
	if !exists {
		return result, nil
	}

	entries, err := s.fs.ListDir(subdir)
	if err != nil {
		return result, err
	}
	for _, entry := range entries {
		if entry.IsDirectory || !strings.HasSuffix(entry.Name, ".md") {
			continue
		}
		data, err := s.fs.ReadFile(filepath.Join(subdir, entry.Name))
		if err != nil {
			return result, err
		}
		updated, err := s.importFile(entry.Name, string(data))
		if err != nil {
			return result, fmt.Errorf("failed to import %s: %w", entry.Name, err)
		}
		if updated {
			result.Updated++
		} else {
			result.Imported++
		}
	}

	s.events.Event(logging.EventSyncImport, "", map[string]any{
		"dir": subdir, "imported": result.Imported, "updated": result.Updated,
	})
	return result, nil
}

// importFile parses one file and upserts the page. It reports whether an
// existing page was updated.
func (s *Syncer) importFile(filename, content string) (bool, error) {
	raw, body := splitFrontMatter(content)
	fm := parseFrontMatter(raw)

	title := fm.Title
	body, headingTitle := dropTitleHeading(body, title)
	if title == "" {
		title = headingTitle
	}
	if title == "" {
		title = strings.TrimSuffix(filename, ".md")
	}

	blocks := parseBody(body)

	var existing *store.Page
	if fm.ID != "" {
		p, err := s.notes.GetPage(fm.ID)
		if err != nil {
			return false, err
		}
		existing = p
	}

	if existing != nil {
		existing.Title = title
		existing.IsJournal = fm.Journal
		existing.IsFavorite = fm.Favorite
		existing.IsPinned = fm.Pinned
		existing.Tags = fm.Tags
		existing.Properties = fm.Properties
		if err := s.notes.UpdatePage(existing); err != nil {
			return false, err
		}
		if err := s.notes.ReplaceBlocks(existing.ID, withPageID(existing.ID, blocks)); err != nil {
			return false, err
		}
		return true, nil
	}

	id := fm.ID
	if id == "" {
		id = uuid.NewString()
	}
	page := &store.Page{
		ID:         id,
		VaultID:    s.vaultID,
		Title:      title,
		IsJournal:  fm.Journal,
		IsFavorite: fm.Favorite,
		IsPinned:   fm.Pinned,
		Tags:       fm.Tags,
		Properties: fm.Properties,
	}
	if err := s.notes.CreatePage(page, withPageID(id, blocks)); err != nil {
		return false, err
	}
	return false, nil
}

// dropTitleHeading removes a leading H1 that duplicates the front-matter
// title and returns the heading text either way.
func dropTitleHeading(body, title string) (rest, heading string) {
	trimmed := strings.TrimLeft(body, "\n")
	if !strings.HasPrefix(trimmed, "# ") {
		return body, ""
	}
	line := trimmed
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		line = trimmed[:idx]
		rest = trimmed[idx+1:]
	} else {
		rest = ""
	}
	heading = strings.TrimPrefix(line, "# ")
	if title != "" && heading != title {
		// Not the page title; keep the heading as content.
		return body, heading
	}
	return rest, heading
}

// parseBody splits the body on blank-line boundaries and classifies each
// fragment into a block.
func parseBody(body string) []store.Block {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var blocks []store.Block
	for _, fragment := range splitFragments(body) {
		indent, flat := fragmentIndent(fragment)
		blockType, content := classifyFragment(flat)
		if blockType == store.BlockParagraph && strings.TrimSpace(content) == "" {
			continue
		}
		blocks = append(blocks, store.Block{
			ID:      uuid.NewString(),
			Type:    blockType,
			Content: content,
			Indent:  indent,
			SortKey: sortKey(len(blocks)),
		})
	}
	return blocks
}

// splitFragments splits on blank lines, keeping fenced code fragments
// whole even when they contain blank lines.
func splitFragments(body string) []string {
	var fragments []string
	var current []string
	inFence := false
	flush := func() {
		if len(current) > 0 {
			fragments = append(fragments, strings.TrimRight(strings.Join(current, "\n"), " \t"))
			current = nil
		}
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimLeft(line, " "), "```") {
			current = append(current, line)
			if inFence {
				inFence = false
				flush()
			} else {
				inFence = true
			}
			continue
		}
		if !inFence && strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return fragments
}

func withPageID(pageID string, blocks []store.Block) []store.Block {
	for i := range blocks {
		blocks[i].PageID = pageID
	}
	return blocks
}
