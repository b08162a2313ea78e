// Package store loads and saves the server's on-disk state: the nick
// history and the channel archive. Both are plain line oriented files.
package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pkdindustries/ircd/internal/core"
)

// LoadNicks reads a nick history file of "username:nick1,nick2" lines. A
// missing file yields an empty history. Malformed lines are skipped.
func LoadNicks(path string) (map[string][]string, error) {
	history := make(map[string][]string)
	if path == "" {
		return history, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return history, nil
		}
		return nil, fmt.Errorf("open nicks file: %w", err)
	}
	defer f.Close()

	log := core.WithFields("file", path)
	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		username, list, ok := strings.Cut(line, ":")
		if !ok || username == "" {
			log.Warnw("skipping malformed nick history line", "line", lineno)
			continue
		}
		var nicks []string
		for _, nick := range strings.Split(list, ",") {
			if nick = strings.TrimSpace(nick); nick != "" {
				nicks = append(nicks, nick)
			}
		}
		if len(nicks) == 0 {
			log.Debugw("username has no nicks", "username", username)
			continue
		}
		history[username] = append(history[username], nicks...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read nicks file: %w", err)
	}
	return history, nil
}

// SaveNicks writes the history sorted by username.
func SaveNicks(path string, history map[string][]string) error {
	usernames := make([]string, 0, len(history))
	for username := range history {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)

	var b strings.Builder
	for _, username := range usernames {
		if len(history[username]) == 0 {
			continue
		}
		b.WriteString(username)
		b.WriteByte(':')
		b.WriteString(strings.Join(history[username], ","))
		b.WriteByte('\n')
	}
	return writeFile(path, b.String())
}

// writeFile replaces path through a temporary file in the same directory.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
