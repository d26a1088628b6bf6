package sandbox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindvault/internal/logging"
	"mindvault/internal/store"
)

func newTestSyncer(t *testing.T, notes NotesStore) (*Syncer, *FS) {
	t.Helper()
	fs, _ := newTestFS(t, "file-access")
	return NewSyncer(fs, notes, logging.NewEventLogger(nil, nil), "default"), fs
}

func openNotesStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vault.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedPage(t *testing.T, s *store.Store, id, title string, tags []string, blocks []store.Block) {
	t.Helper()
	for i := range blocks {
		blocks[i].PageID = id
	}
	require.NoError(t, s.CreatePage(&store.Page{
		ID:      id,
		VaultID: "default",
		Title:   title,
		Tags:    tags,
	}, blocks))
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	src := openNotesStore(t)
	seedPage(t, src, "p-1", "Graph Theory", []string{"math", "reference"}, []store.Block{
		{ID: "b-1", Type: store.BlockHeading2, Content: "Basics", SortKey: "a000000"},
		{ID: "b-2", Type: store.BlockParagraph, Content: "A graph is a set of vertices and edges.", SortKey: "a000001"},
		{ID: "b-3", Type: store.BlockBullet, Content: "directed", SortKey: "a000002"},
		{ID: "b-4", Type: store.BlockTodo, Content: "[x] read Diestel ch. 1", SortKey: "a000003"},
		{ID: "b-5", Type: store.BlockCode, Content: "type Graph struct{}", SortKey: "a000004"},
	})
	seedPage(t, src, "p-2", "Reading List", []string{"books"}, []store.Block{
		{ID: "b-6", Type: store.BlockNumbered, Content: "Diestel", SortKey: "a000000"},
	})

	exporter, fs := newTestSyncer(t, src)
	exp, err := exporter.Export("export")
	require.NoError(t, err)
	assert.Equal(t, 2, exp.Exported)

	// Import the exported files into an empty vault sharing the same
	// sandbox directory.
	dst := openNotesStore(t)
	importer := NewSyncer(fs, dst, logging.NewEventLogger(nil, nil), "default")
	imp, err := importer.Import("export")
	require.NoError(t, err)
	assert.Equal(t, 2, imp.Imported)
	assert.Zero(t, imp.Updated)

	pages, err := dst.ListPages("default")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	for _, id := range []string{"p-1", "p-2"} {
		orig, err := src.GetPage(id)
		require.NoError(t, err)
		got, err := dst.GetPage(id)
		require.NoError(t, err)
		require.NotNil(t, got, id)
		assert.Equal(t, orig.Title, got.Title)
		assert.Equal(t, orig.Tags, got.Tags)
	}

	origBlocks, err := src.PageBlocks("p-1")
	require.NoError(t, err)
	gotBlocks, err := dst.PageBlocks("p-1")
	require.NoError(t, err)
	if diff := cmp.Diff(blockViews(origBlocks), blockViews(gotBlocks)); diff != "" {
		t.Errorf("imported blocks differ (-want +got):\n%s", diff)
	}
}

// blockViews projects blocks down to the fields the sync layer preserves.
func blockViews(blocks []store.Block) []struct{ Type, Content string } {
	out := make([]struct{ Type, Content string }, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, struct{ Type, Content string }{b.Type, b.Content})
	}
	return out
}

func TestImport_UpdatesExistingByID(t *testing.T) {
	t.Parallel()
	s := openNotesStore(t)
	seedPage(t, s, "p-1", "Old Title", []string{"old"}, []store.Block{
		{ID: "b-1", Type: store.BlockParagraph, Content: "stale", SortKey: "a000000"},
	})

	syncer, fs := newTestSyncer(t, s)
	file := "---\n" +
		"id: \"p-1\"\n" +
		"title: \"New Title\"\n" +
		"tags: [\"fresh\"]\n" +
		"---\n" +
		"# New Title\n\nupdated content\n"
	require.NoError(t, fs.WriteFile("notes/page.md", []byte(file)))

	result, err := syncer.Import("notes")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Imported)

	page, err := s.GetPage("p-1")
	require.NoError(t, err)
	assert.Equal(t, "New Title", page.Title)
	assert.Equal(t, []string{"fresh"}, page.Tags)

	blocks, err := s.PageBlocks("p-1")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "updated content", blocks[0].Content)
}

func TestImport_PlainMarkdownWithoutFrontMatter(t *testing.T) {
	t.Parallel()
	s := openNotesStore(t)
	syncer, fs := newTestSyncer(t, s)

	require.NoError(t, fs.WriteFile("notes/ideas.md", []byte("# Ideas\n\n- one\n- two\n")))
	result, err := syncer.Import("notes")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	pages, err := s.ListPages("default")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Ideas", pages[0].Title)
	assert.NotEmpty(t, pages[0].ID)
}

func TestImport_MissingDirIsNoop(t *testing.T) {
	t.Parallel()
	s := openNotesStore(t)
	syncer, _ := newTestSyncer(t, s)

	result, err := syncer.Import("never-created")
	require.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Zero(t, result.Updated)
}

func TestExport_DuplicateTitlesGetUniqueFiles(t *testing.T) {
	t.Parallel()
	s := openNotesStore(t)
	seedPage(t, s, "aaaaaaaa-1111", "Same Name", nil, nil)
	seedPage(t, s, "bbbbbbbb-2222", "Same Name", nil, nil)

	syncer, fs := newTestSyncer(t, s)
	result, err := syncer.Export("out")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Exported)

	entries, err := fs.ListDir("out")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	for _, n := range names {
		assert.True(t, strings.HasPrefix(n, "Same-Name"), n)
	}
	assert.NotEqual(t, names[0], names[1])
}

func TestDropTitleHeading(t *testing.T) {
	t.Parallel()

	rest, heading := dropTitleHeading("# Title\n\nbody", "Title")
	assert.Equal(t, "Title", heading)
	assert.Equal(t, "\nbody", rest)

	// A heading that is not the page title stays in the body.
	rest, heading = dropTitleHeading("# Other\n\nbody", "Title")
	assert.Equal(t, "Other", heading)
	assert.Contains(t, rest, "# Other")

	// No front-matter title: the heading becomes the title and is dropped.
	rest, heading = dropTitleHeading("# Inferred\n\nbody", "")
	assert.Equal(t, "Inferred", heading)
	assert.NotContains(t, rest, "# Inferred")
}
