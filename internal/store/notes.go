package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Block types understood by the markdown sync layer and the agent tasks.
const (
	BlockParagraph = "paragraph"
	BlockHeading1  = "heading1"
	BlockHeading2  = "heading2"
	BlockHeading3  = "heading3"
	BlockCode      = "code"
	BlockQuote     = "quote"
	BlockCallout   = "callout"
	BlockBullet    = "bullet"
	BlockNumbered  = "numbered"
	BlockTodo      = "todo"
	BlockDivider   = "divider"
	BlockImage     = "image"
	BlockToggle    = "toggle"
)

// Page is one note page. Tags and Properties are stored as JSON text.
type Page struct {
	ID         string
	VaultID    string
	Title      string
	IsJournal  bool
	IsFavorite bool
	IsPinned   bool
	Tags       []string
	Properties map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Block is one content block within a page. Blocks order by SortKey,
// which is lexicographically sortable.
type Block struct {
	ID        string
	PageID    string
	Type      string
	Content   string
	Indent    int
	SortKey   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListPages returns all pages in a vault ordered by title.
func (s *Store) ListPages(vaultID string) ([]Page, error) {
	rows, err := s.db.Query(`
		SELECT id, vault_id, title, is_journal, is_favorite, is_pinned, tags, properties, created_at, updated_at
		FROM pages WHERE vault_id = ? ORDER BY title`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetPage returns one page by ID, or nil when it does not exist.
func (s *Store) GetPage(id string) (*Page, error) {
	row := s.db.QueryRow(`
		SELECT id, vault_id, title, is_journal, is_favorite, is_pinned, tags, properties, created_at, updated_at
		FROM pages WHERE id = ?`, id)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePage inserts a page and its blocks in one transaction.
func (s *Store) CreatePage(p *Page, blocks []Block) error {
	tags, props := marshalPageMeta(p)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO pages (id, vault_id, title, is_journal, is_favorite, is_pinned, tags, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.VaultID, p.Title, p.IsJournal, p.IsFavorite, p.IsPinned, tags, props)
	if err != nil {
		return fmt.Errorf("failed to insert page %q: %w", p.Title, err)
	}
	for _, b := range blocks {
		if err := insertBlock(tx, p.ID, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpdatePage rewrites a page's metadata.
func (s *Store) UpdatePage(p *Page) error {
	tags, props := marshalPageMeta(p)
	res, err := s.db.Exec(`
		UPDATE pages SET title = ?, is_journal = ?, is_favorite = ?, is_pinned = ?,
			tags = ?, properties = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		p.Title, p.IsJournal, p.IsFavorite, p.IsPinned, tags, props, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update page %q: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("page %q not found", p.ID)
	}
	return nil
}

// PageBlocks returns a page's blocks in sort-key order.
func (s *Store) PageBlocks(pageID string) ([]Block, error) {
	rows, err := s.db.Query(`
		SELECT id, page_id, block_type, content, indent, sort_key, created_at, updated_at
		FROM blocks WHERE page_id = ? ORDER BY sort_key`, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		if err := rows.Scan(&b.ID, &b.PageID, &b.Type, &b.Content, &b.Indent, &b.SortKey, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ReplaceBlocks swaps a page's entire block list in one transaction.
func (s *Store) ReplaceBlocks(pageID string, blocks []Block) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blocks WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("failed to clear blocks for page %q: %w", pageID, err)
	}
	for _, b := range blocks {
		if err := insertBlock(tx, pageID, b); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE pages SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, pageID); err != nil {
		return fmt.Errorf("failed to touch page %q: %w", pageID, err)
	}
	return tx.Commit()
}

func insertBlock(tx *sql.Tx, pageID string, b Block) error {
	if b.Type == "" {
		b.Type = BlockParagraph
	}
	_, err := tx.Exec(`
		INSERT INTO blocks (id, page_id, block_type, content, indent, sort_key)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, pageID, b.Type, b.Content, b.Indent, b.SortKey)
	if err != nil {
		return fmt.Errorf("failed to insert block %q: %w", b.ID, err)
	}
	return nil
}

func marshalPageMeta(p *Page) (tags, props string) {
	tb, err := json.Marshal(p.Tags)
	if err != nil || p.Tags == nil {
		tb = []byte("[]")
	}
	pb, err := json.Marshal(p.Properties)
	if err != nil || p.Properties == nil {
		pb = []byte("{}")
	}
	return string(tb), string(pb)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(r rowScanner) (Page, error) {
	var p Page
	var tags, props string
	err := r.Scan(&p.ID, &p.VaultID, &p.Title, &p.IsJournal, &p.IsFavorite, &p.IsPinned,
		&tags, &props, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Page{}, err
	}
	// Malformed metadata degrades to empty rather than failing the read.
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		p.Tags = nil
	}
	if err := json.Unmarshal([]byte(props), &p.Properties); err != nil {
		p.Properties = nil
	}
	return p, nil
}
