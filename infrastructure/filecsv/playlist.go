package filecsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"video-gateway/infrastructure/logger"
)

// PlaylistEntry is one row of a playlist file: a video path or URL and an optional title.
type PlaylistEntry struct {
	URL   string
	Title string
}

func NewFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while open file")
		return nil, err
	}

	return file, nil
}

// ReadPlaylist reads a playlist file. Plain one-URL-per-line files are valid
// single-column CSV; lines starting with # are comments.
func ReadPlaylist(path string) ([]PlaylistEntry, error) {
	file, err := NewFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParsePlaylist(file)
}

func ParsePlaylist(r io.Reader) ([]PlaylistEntry, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []PlaylistEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse playlist: %w", err)
		}
		entry := PlaylistEntry{URL: strings.TrimSpace(record[0])}
		if entry.URL == "" || strings.EqualFold(entry.URL, "url") {
			continue
		}
		if len(record) > 1 {
			entry.Title = strings.TrimSpace(record[1])
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
