package sandbox

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// frontMatter is the metadata block at the top of every exported file.
// Page properties are flattened under "prop." keys so the block stays a
// single level deep.
type frontMatter struct {
	ID         string
	Title      string
	Created    time.Time
	Updated    time.Time
	Journal    bool
	Favorite   bool
	Pinned     bool
	Tags       []string
	Properties map[string]string
}

const frontMatterDelim = "---"

// serializeFrontMatter renders the block with stable key order.
func serializeFrontMatter(fm frontMatter) string {
	var b strings.Builder
	b.WriteString(frontMatterDelim + "\n")
	fmt.Fprintf(&b, "id: %q\n", fm.ID)
	fmt.Fprintf(&b, "title: %q\n", fm.Title)
	fmt.Fprintf(&b, "created: %q\n", fm.Created.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "updated: %q\n", fm.Updated.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "journal: %t\n", fm.Journal)
	fmt.Fprintf(&b, "favorite: %t\n", fm.Favorite)
	fmt.Fprintf(&b, "pinned: %t\n", fm.Pinned)
	if len(fm.Tags) > 0 {
		quoted := make([]string, len(fm.Tags))
		for i, t := range fm.Tags {
			quoted[i] = fmt.Sprintf("%q", t)
		}
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(quoted, ", "))
	} else {
		b.WriteString("tags: []\n")
	}
	keys := make([]string, 0, len(fm.Properties))
	for k := range fm.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "prop.%s: %q\n", k, fm.Properties[k])
	}
	b.WriteString(frontMatterDelim + "\n")
	return b.String()
}

// splitFrontMatter separates the front-matter block from the body.
// A file without a front-matter block yields an empty raw block and the
// whole content as body.
func splitFrontMatter(content string) (raw, body string) {
	content = strings.TrimPrefix(content, "\ufeff")
	if !strings.HasPrefix(content, frontMatterDelim+"\n") {
		return "", content
	}
	rest := content[len(frontMatterDelim)+1:]
	idx := strings.Index(rest, "\n"+frontMatterDelim)
	if idx < 0 {
		return "", content
	}
	raw = rest[:idx]
	body = rest[idx+len(frontMatterDelim)+1:]
	body = strings.TrimPrefix(body, "\n")
	return raw, body
}

// parseFrontMatter parses the raw block. It tolerates quoted strings,
// bracketed arrays, and boolean literals; anything malformed degrades to
// an empty block rather than failing the file.
func parseFrontMatter(raw string) frontMatter {
	fm := frontMatter{Properties: map[string]string{}}
	if strings.TrimSpace(raw) == "" {
		return fm
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(raw), &fields); err != nil {
		return fm
	}
	for key, val := range fields {
		switch key {
		case "id":
			fm.ID = asString(val)
		case "title":
			fm.Title = asString(val)
		case "created":
			fm.Created = asTime(val)
		case "updated":
			fm.Updated = asTime(val)
		case "journal":
			fm.Journal = asBool(val)
		case "favorite":
			fm.Favorite = asBool(val)
		case "pinned":
			fm.Pinned = asBool(val)
		case "tags":
			fm.Tags = asStringList(val)
		default:
			if name, ok := strings.CutPrefix(key, "prop."); ok && name != "" {
				fm.Properties[name] = asString(val)
			}
		}
	}
	return fm
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func asStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, asString(it))
	}
	return out
}
