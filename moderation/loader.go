package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"market-chat/errors"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed censored/*.txt
var embedded embed.FS

// Dictionary is the merged word list of every language file.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionary reads every "<lang>.txt" file in dir, one word per line.
// An empty dir falls back to the lists shipped with the binary.
func LoadDictionary(dir string) (*Dictionary, error) {
	if dir == "" {
		return load(embedded, "censored")
	}
	return load(os.DirFS(dir), ".")
}

func load(fsys fs.FS, dir string) (*Dictionary, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		// Scanner copes with both \n and \r\n endings
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}
	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return &Dictionary{Words: words, Languages: languages}, nil
}
