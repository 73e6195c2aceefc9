package moderation

import (
	"market-chat/errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDictionary_Embedded(t *testing.T) {
	req := require.New(t)

	dictionary, err := LoadDictionary("")

	req.NoError(err)
	req.ElementsMatch([]string{"en", "fr"}, dictionary.Languages)
	req.Contains(dictionary.Words, "merde")
}

func TestLoadDictionary_Directory(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, "es.txt"), []byte("estafa\r\n\r\nmierda\n"), 0o600))
	req.NoError(os.WriteFile(filepath.Join(dir, "de.txt"), []byte("betrug\nmierda\n"), 0o600))
	req.NoError(os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	dictionary, err := LoadDictionary(dir)

	req.NoError(err)
	req.Equal([]string{"betrug", "estafa", "mierda"}, dictionary.Words)
	req.ElementsMatch([]string{"es", "de"}, dictionary.Languages)
}

func TestLoadDictionary_Empty(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	req.NoError(os.WriteFile(filepath.Join(dir, "en.txt"), []byte("\n  \n"), 0o600))

	_, err := LoadDictionary(dir)

	req.ErrorIs(err, errors.ErrEmptyWords)
}
