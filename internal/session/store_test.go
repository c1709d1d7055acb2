package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	cookies := []playwright.Cookie{
		{Name: "sid", Value: "abc123", Domain: ".example.jp", Path: "/", Secure: true},
		{Name: "pref", Value: "ja", Domain: ".example.jp", Path: "/"},
	}

	store.Save("rapras", cookies)
	require.True(t, store.Exists("rapras"))

	loaded := store.Load("rapras")
	require.Len(t, loaded, 2)
	assert.Equal(t, "sid", loaded[0].Name)
	assert.Equal(t, "abc123", loaded[0].Value)
	assert.True(t, loaded[0].Secure)
}

func TestLoadMissingSessionReturnsNil(t *testing.T) {
	store := NewStore(t.TempDir())

	assert.False(t, store.Exists("yahoo"))
	assert.Nil(t, store.Load("yahoo"))
}

func TestLoadCorruptSessionReturnsNil(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := filepath.Join(dir, "yahoo_session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	assert.Nil(t, store.Load("yahoo"))
}

func TestSessionFilesAreIsolatedPerService(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Save("rapras", []playwright.Cookie{{Name: "a", Value: "1"}})
	store.Save("yahoo", []playwright.Cookie{{Name: "b", Value: "2"}})

	assert.Equal(t, "a", store.Load("rapras")[0].Name)
	assert.Equal(t, "b", store.Load("yahoo")[0].Name)
}

func TestDeleteRemovesSession(t *testing.T) {
	store := NewStore(t.TempDir())

	store.Save("rapras", []playwright.Cookie{{Name: "sid", Value: "x"}})
	require.True(t, store.Exists("rapras"))

	store.Delete("rapras")
	assert.False(t, store.Exists("rapras"))
	assert.Nil(t, store.Load("rapras"))
}

func TestDeleteMissingSessionIsQuiet(t *testing.T) {
	store := NewStore(t.TempDir())
	store.Delete("rapras")
	assert.False(t, store.Exists("rapras"))
}

func TestSaveIntoUnwritableDirIsBestEffort(t *testing.T) {
	store := NewStore(filepath.Join(string(os.PathSeparator), "proc", "no-such-dir"))
	store.Save("rapras", []playwright.Cookie{{Name: "sid", Value: "x"}})
	assert.False(t, store.Exists("rapras"))
}
