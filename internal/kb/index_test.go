package kb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, dir, name, text string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644))
}

func TestRetrieveRanksByOverlap(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "billing.txt", "billing invoices and refund policy for subscriptions")
	writeDoc(t, dir, "login.txt", "password reset and login troubleshooting for account access")
	writeDoc(t, dir, "shipping.txt", "shipping times and carrier information")

	index := NewIndex(dir)
	matches := index.Retrieve("I cannot login to my account, need a password reset", 3)

	require.NotEmpty(t, matches)
	assert.Equal(t, "login.txt", matches[0].Source)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
	}
	// shipping shares no tokens with the query
	for _, m := range matches {
		assert.NotEqual(t, "shipping.txt", m.Source)
	}
}

func TestRetrieveTopK(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha beta gamma")
	writeDoc(t, dir, "b.txt", "alpha beta")
	writeDoc(t, dir, "c.txt", "alpha")

	index := NewIndex(dir)
	matches := index.Retrieve("alpha beta gamma", 2)

	require.Len(t, matches, 2)
	assert.Equal(t, "a.txt", matches[0].Source)
	assert.Equal(t, "b.txt", matches[1].Source)
}

func TestRetrieveDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "one.txt", "alpha beta")
	writeDoc(t, dir, "two.txt", "alpha gamma")
	writeDoc(t, dir, "three.txt", "alpha delta")

	index := NewIndex(dir)

	first := index.Retrieve("alpha", 3)
	require.Len(t, first, 3)

	// Repeated calls return the identical ordered sequence; equal scores
	// keep name order
	for i := 0; i < 5; i++ {
		again := index.Retrieve("alpha", 3)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "one.txt", first[0].Source)
	assert.Equal(t, "three.txt", first[1].Source)
	assert.Equal(t, "two.txt", first[2].Source)
}

func TestRetrieveEmptyQuery(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "alpha beta")

	index := NewIndex(dir)
	assert.Empty(t, index.Retrieve("", 3))
	assert.Empty(t, index.Retrieve("   ", 3))
}

func TestRetrieveMissingDirectory(t *testing.T) {
	index := NewIndex(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Empty(t, index.Retrieve("alpha", 3))
}

func TestRetrieveIgnoresNonTextFiles(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "doc.txt", "alpha beta")
	writeDoc(t, dir, "notes.md", "alpha beta")

	index := NewIndex(dir)
	matches := index.Retrieve("alpha", 5)

	require.Len(t, matches, 1)
	assert.Equal(t, "doc.txt", matches[0].Source)
}

func TestRetrieveCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", "ALPHA Beta")

	index := NewIndex(dir)
	matches := index.Retrieve("alpha BETA", 1)

	require.Len(t, matches, 1)
	assert.Equal(t, 2, matches[0].Score)
}
