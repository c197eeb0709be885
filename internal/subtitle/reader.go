package subtitle

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

const formatSRT = "SRT"

// DefaultReader is the default subtitle file reader
type DefaultReader struct{}

// NewReader creates a new subtitle file reader
func NewReader() Reader {
	return &DefaultReader{}
}

// Read reads an SRT file from disk.
func (r *DefaultReader) Read(path string) (*File, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".srt") {
		return nil, fmt.Errorf("only SRT format subtitle files are supported: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("subtitle file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	entries, err := ParseSequence(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse subtitle file %s: %w", path, err)
	}

	return &File{
		Entries:  entries,
		Language: DetectLanguage(entries),
		Format:   formatSRT,
		Path:     path,
	}, nil
}

// ParseSequence parses SRT text into entries. Entry ids are reassigned
// to their 1-based position so they always match the source order.
func ParseSequence(raw string) ([]Entry, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var entries []Entry
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	current := Entry{}
	state := "index" // possible values: "index", "time", "text"
	var textLines []string
	lineNo := 0

	flush := func() {
		current.ID = len(entries) + 1
		current.Text = strings.Join(textLines, "\n")
		entries = append(entries, current)
		current = Entry{}
		textLines = nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t")

		switch state {
		case "index":
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := strconv.Atoi(strings.TrimSpace(line)); err != nil {
				continue // skip non-index lines
			}
			state = "time"

		case "time":
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !strings.Contains(line, "-->") {
				return nil, fmt.Errorf("invalid time format at line %d: %s", lineNo, line)
			}
			current.Timecode = strings.TrimSpace(line)
			state = "text"
			textLines = nil

		case "text":
			if strings.TrimSpace(line) == "" {
				flush()
				state = "index"
				continue
			}
			textLines = append(textLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan subtitle text: %w", err)
	}

	// handle last subtitle group
	if state == "text" {
		flush()
	}
	if state == "time" {
		return nil, fmt.Errorf("subtitle text ends before timing line")
	}

	return entries, nil
}

// DetectLanguage votes per entry and returns the most common language.
func DetectLanguage(entries []Entry) language.Tag {
	if len(entries) == 0 {
		return language.Und
	}

	langMap := make(map[string]int)
	for _, entry := range entries {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		lang := whatlanggo.DetectLang(entry.Text).Iso6391()
		if lang == "" {
			continue
		}
		langMap[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range langMap {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}
