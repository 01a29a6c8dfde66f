package linkgraph

import (
	"crypto/sha1"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Scanner walks a notebook tree and parses Markdown notes into the
// linkgraph.Note shape: headings become Sections via gomarkdown's AST,
// the rendered HTML is sanitized with bluemonday before being walked
// with goquery to recover heading levels and word counts, and the
// targets of internal [[links]] are collected as stems, deduplicated,
// with self-links dropped; they are not checked against other notes.
type Scanner struct {
	NotebookRoot string
	Excludes     map[string]bool // lower-cased directory names to skip
}

// NewScanner returns a Scanner rooted at root with the given exclusion
// set (already normalized by the backend).
func NewScanner(root string, excludes map[string]bool) *Scanner {
	return &Scanner{NotebookRoot: root, Excludes: excludes}
}

var linkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)

// ScanFull walks the entire notebook tree.
func (s *Scanner) ScanFull() ([]*Note, error) {
	paths, err := s.listMarkdownFiles()
	if err != nil {
		return nil, err
	}
	return s.parseAll(paths)
}

// ScanPaths parses only the given notebook-relative paths.
func (s *Scanner) ScanPaths(paths []string) ([]*Note, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		abs = append(abs, filepath.Join(s.NotebookRoot, filepath.FromSlash(p)))
	}
	return s.parseAll(abs)
}

func (s *Scanner) listMarkdownFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.NotebookRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return fs.SkipDir
			}
			return err
		}
		base := strings.ToLower(d.Name())
		if d.IsDir() {
			if strings.HasPrefix(base, ".") && path != s.NotebookRoot {
				return fs.SkipDir
			}
			if s.Excludes[base] {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(base, ".md") || strings.HasSuffix(base, ".markdown") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scanner) parseAll(absPaths []string) ([]*Note, error) {
	notes := make([]*Note, 0, len(absPaths))
	for _, abs := range absPaths {
		raw, err := os.ReadFile(abs)
		if err != nil {
			if os.IsNotExist(err) {
				continue // observed through a file-delete event, not an error here
			}
			return nil, err
		}
		rel, err := filepath.Rel(s.NotebookRoot, abs)
		if err != nil {
			rel = abs
		}
		rel = filepath.ToSlash(rel)
		notes = append(notes, parseNote(rel, raw))
	}
	return notes, nil
}

func parseNote(relPath string, raw []byte) *Note {
	stem := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))

	extensions := parser.CommonExtensions
	p := parser.NewWithExtensions(extensions)
	htmlFlags := html.CommonFlags
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	rendered := markdown.ToHTML(raw, p, renderer)

	sanitized := bluemonday.UGCPolicy().SanitizeBytes(rendered)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(sanitized)))
	var sections []Section
	title := stem
	if err == nil {
		firstHeading := true
		doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
			level := int(sel.Get(0).Data[1] - '0')
			text := strings.TrimSpace(sel.Text())
			words := len(strings.Fields(text))
			sections = append(sections, Section{Level: level, Heading: text, WordCount: words})
			if firstHeading && level == 1 {
				title = text
				firstHeading = false
			}
		})
	}

	tags := extractTags(raw)
	linksOut := extractLinks(raw, stem)
	fingerprint := fingerprintOf(raw)

	return &Note{
		Stem: stem, Title: title, Path: relPath, Tags: tags,
		Sections: sections, LinksOut: linksOut, Fingerprint: fingerprint,
	}
}

var tagLinePattern = regexp.MustCompile(`(?m)^tags:\s*\[([^\]]*)\]`)

func extractTags(raw []byte) []string {
	m := tagLinePattern.FindSubmatch(raw)
	if m == nil {
		return nil
	}
	parts := strings.Split(string(m[1]), ",")
	seen := map[string]bool{}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		tag := strings.Trim(strings.TrimSpace(p), `"'`)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

func extractLinks(raw []byte, selfStem string) []string {
	matches := linkPattern.FindAllSubmatch(raw, -1)
	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		target := strings.TrimSpace(string(m[1]))
		if target == "" || target == selfStem || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}

func fingerprintOf(raw []byte) string {
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
