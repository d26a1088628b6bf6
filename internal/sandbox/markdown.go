package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"mindvault/internal/store"
)

// blockToMarkdown maps one block to its markup fragment. Indentation is
// reproduced as two spaces per level.
func blockToMarkdown(b store.Block) string {
	indent := strings.Repeat("  ", b.Indent)
	switch b.Type {
	case store.BlockHeading1:
		return indent + "# " + b.Content
	case store.BlockHeading2:
		return indent + "## " + b.Content
	case store.BlockHeading3:
		return indent + "### " + b.Content
	case store.BlockCode:
		return indent + "```\n" + b.Content + "\n" + indent + "```"
	case store.BlockQuote:
		return indent + "> " + b.Content
	case store.BlockCallout:
		return indent + "> [!NOTE] " + b.Content
	case store.BlockBullet:
		return indent + "- " + b.Content
	case store.BlockNumbered:
		return indent + "1. " + b.Content
	case store.BlockTodo:
		if checked, rest := todoState(b.Content); checked {
			return indent + "- [x] " + rest
		} else {
			return indent + "- [ ] " + rest
		}
	case store.BlockDivider:
		return indent + "---"
	case store.BlockImage:
		return indent + "![](" + b.Content + ")"
	case store.BlockToggle:
		return indent + "- ▸ " + b.Content
	default:
		return indent + b.Content
	}
}

// todoState splits a stored todo content into its checked flag and text.
// Checked todos carry an "[x] " prefix in stored content.
func todoState(content string) (bool, string) {
	if rest, ok := strings.CutPrefix(content, "[x] "); ok {
		return true, rest
	}
	return false, content
}

// classifyFragment determines a block's type and content from the leading
// syntax of a markdown fragment. The fragment arrives with indentation
// already stripped.
func classifyFragment(fragment string) (blockType, content string) {
	switch {
	case strings.HasPrefix(fragment, "### "):
		return store.BlockHeading3, fragment[4:]
	case strings.HasPrefix(fragment, "## "):
		return store.BlockHeading2, fragment[3:]
	case strings.HasPrefix(fragment, "# "):
		return store.BlockHeading1, fragment[2:]
	case strings.HasPrefix(fragment, "```"):
		body := strings.TrimPrefix(fragment, "```")
		if idx := strings.Index(body, "\n"); idx >= 0 {
			body = body[idx+1:]
		} else {
			body = ""
		}
		body = strings.TrimSuffix(strings.TrimRight(body, " \t\n"), "```")
		return store.BlockCode, strings.TrimRight(body, "\n")
	case strings.HasPrefix(fragment, "> [!NOTE] "):
		return store.BlockCallout, fragment[len("> [!NOTE] "):]
	case strings.HasPrefix(fragment, "> "):
		return store.BlockQuote, fragment[2:]
	case strings.HasPrefix(fragment, "- [x] "):
		return store.BlockTodo, "[x] " + fragment[6:]
	case strings.HasPrefix(fragment, "- [ ] "):
		return store.BlockTodo, fragment[6:]
	case strings.HasPrefix(fragment, "- ▸ "):
		return store.BlockToggle, fragment[len("- ▸ "):]
	case strings.HasPrefix(fragment, "- "):
		return store.BlockBullet, fragment[2:]
	case numberedItemRe.MatchString(fragment):
		return store.BlockNumbered, numberedItemRe.ReplaceAllString(fragment, "")
	case fragment == "---" || fragment == "***":
		return store.BlockDivider, ""
	case strings.HasPrefix(fragment, "![](") && strings.HasSuffix(fragment, ")"):
		return store.BlockImage, fragment[4 : len(fragment)-1]
	default:
		return store.BlockParagraph, fragment
	}
}

var numberedItemRe = regexp.MustCompile(`^\d+[.)] `)

// fragmentIndent counts leading indentation in two-space levels and
// returns the de-indented fragment.
func fragmentIndent(fragment string) (int, string) {
	n := 0
	for strings.HasPrefix(fragment, "  ") {
		fragment = fragment[2:]
		n++
	}
	return n, fragment
}

// pathHostile matches characters that cannot appear in filenames.
var pathHostile = regexp.MustCompile(`[/\\:*?"<>|#%{}$!'@+=~` + "`" + `]`)

var whitespaceRun = regexp.MustCompile(`\s+`)

const maxFilenameLen = 64

// sanitizeFilename derives a safe filename stem from a page title.
func sanitizeFilename(title string) string {
	name := pathHostile.ReplaceAllString(title, "")
	name = whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "-")
	name = strings.Trim(name, "-.")
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
		name = strings.Trim(name, "-.")
	}
	if name == "" {
		return "untitled"
	}
	return name
}

// sortKey produces a lexicographically sortable order key for block n.
func sortKey(n int) string {
	return fmt.Sprintf("a%06d", n)
}
