package subtitle

import "golang.org/x/text/language"

// Reader is the interface for reading subtitle files
type Reader interface {
	Read(path string) (*File, error)
}

// Writer is the interface for writing subtitle files
type Writer interface {
	Write(path string, subtitle *File) error
}

// Entry is one timed text segment.
// ID is 1-based and equals the entry's position in the source sequence.
type Entry struct {
	ID       int    `json:"id"`
	Timecode string `json:"timecode"` // opaque, e.g. "00:02:16,612 --> 00:02:19,376"
	Text     string `json:"text"`
}

// File represents subtitle file
type File struct {
	Entries  []Entry
	Language language.Tag
	Format   string // e.g. SRT
	Path     string
}

// Texts returns the text of every entry in order.
func Texts(entries []Entry) []string {
	ret := make([]string, len(entries))
	for i, e := range entries {
		ret[i] = e.Text
	}
	return ret
}
