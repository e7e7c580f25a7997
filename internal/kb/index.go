package kb

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var wordPattern = regexp.MustCompile(`\w+`)

// Document is one knowledge-base file, loaded fresh per retrieval call
type Document struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// ScoredDocument is a Document with its lexical overlap score against a
// query. Higher scores rank first; ties keep directory enumeration order.
type ScoredDocument struct {
	Document
	Score int `json:"score"`
}

// Index retrieves knowledge-base documents by lexical word overlap. It holds
// only the directory path; documents are read at retrieval time so edits to
// the knowledge base take effect without a restart.
type Index struct {
	dir string
}

// NewIndex creates an index over the given directory. The directory does not
// have to exist; retrieval over a missing directory yields no matches.
func NewIndex(dir string) *Index {
	return &Index{dir: dir}
}

// Retrieve scores every .txt document in the knowledge-base directory by the
// number of lowercase word tokens it shares with the query and returns the
// topK best matches, best first. Documents sharing no tokens are excluded.
func (i *Index) Retrieve(query string, topK int) []ScoredDocument {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	entries, err := os.ReadDir(i.dir)
	if err != nil {
		// A missing knowledge base is not an error, just no context
		if !os.IsNotExist(err) {
			logrus.Warnf("Failed to read knowledge base directory %s: %v", i.dir, err)
		}
		return nil
	}

	var matches []ScoredDocument
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(i.dir, entry.Name()))
		if err != nil {
			logrus.Warnf("Failed to read knowledge base document %s: %v", entry.Name(), err)
			continue
		}

		text := string(data)
		score := overlap(queryTokens, tokenize(text))
		if score == 0 {
			continue
		}

		matches = append(matches, ScoredDocument{
			Document: Document{Source: entry.Name(), Text: text},
			Score:    score,
		})
	}

	// os.ReadDir returns entries sorted by name, so ties keep a stable,
	// reproducible order across calls
	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})

	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// tokenize splits text into a set of lowercase word tokens
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		tokens[w] = struct{}{}
	}
	return tokens
}

// overlap counts tokens present in both sets
func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
