package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"pkdindustries/ircd/internal/core"
	"pkdindustries/ircd/internal/irc"
)

var ErrBadRecord = errors.New("malformed channel record")

// ChannelRecord is the persisted form of a channel:
// "name created_at_epoch mode [:topic]".
type ChannelRecord struct {
	Name    string
	Created time.Time
	Mode    int
	Topic   string
}

func ParseChannelRecord(line string) (ChannelRecord, error) {
	head, topic, _ := strings.Cut(line, " :")
	fields := strings.Fields(head)
	if len(fields) != 3 {
		return ChannelRecord{}, ErrBadRecord
	}
	created, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return ChannelRecord{}, fmt.Errorf("%w: created_at: %v", ErrBadRecord, err)
	}
	mode, err := strconv.Atoi(fields[2])
	if err != nil {
		return ChannelRecord{}, fmt.Errorf("%w: mode: %v", ErrBadRecord, err)
	}
	return ChannelRecord{
		Name:    fields[0],
		Created: time.Unix(created, 0),
		Mode:    mode,
		Topic:   topic,
	}, nil
}

func (r ChannelRecord) String() string {
	s := fmt.Sprintf("%s %d %d", r.Name, r.Created.Unix(), r.Mode)
	if r.Topic != "" {
		s += " :" + r.Topic
	}
	return s
}

// Archive keeps the records of known channels, live or not, so that a
// channel keeps its creation time, modes and topic across being emptied,
// recreated and server restarts.
type Archive struct {
	path    string
	records map[string]ChannelRecord
}

// OpenArchive loads the channel file at path. A missing file yields an
// empty archive; an empty path gives an archive that is never saved.
func OpenArchive(path string) (*Archive, error) {
	a := &Archive{path: path, records: make(map[string]ChannelRecord)}
	if path == "" {
		return a, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("open channels file: %w", err)
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
		rec, err := ParseChannelRecord(line)
		if err != nil {
			log.Warnw("skipping channel record", "line", lineno, "error", err)
			continue
		}
		a.records[irc.Fold(rec.Name)] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read channels file: %w", err)
	}
	return a, nil
}

func (a *Archive) Lookup(name string) (ChannelRecord, bool) {
	rec, ok := a.records[irc.Fold(name)]
	return rec, ok
}

func (a *Archive) Put(rec ChannelRecord) {
	a.records[irc.Fold(rec.Name)] = rec
}

func (a *Archive) Len() int { return len(a.records) }

// Records returns every record sorted by name.
func (a *Archive) Records() []ChannelRecord {
	out := make([]ChannelRecord, 0, len(a.records))
	for _, rec := range a.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save rewrites the channel file.
func (a *Archive) Save() error {
	if a.path == "" {
		return nil
	}
	var b strings.Builder
	for _, rec := range a.Records() {
		b.WriteString(rec.String())
		b.WriteByte('\n')
	}
	return writeFile(a.path, b.String())
}
