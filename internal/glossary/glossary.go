// Package glossary loads per-show term translations and picks the ones a
// subtitle file actually uses.
package glossary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Glossary maps source language terms to their fixed translation.
type Glossary map[string]string

type Term struct {
	Source string
	Target string
}

// Filename returns the glossary filename for a language pair, using base
// language codes: "glossary.en-de.json".
func Filename(source, target language.Tag) string {
	return "glossary." + baseCode(source) + "-" + baseCode(target) + ".json"
}

// Find walks up from startDir and returns the first glossary file for the
// language pair, or "" when there is none.
func Find(startDir string, source, target language.Tag) string {
	filename := Filename(source, target)
	currentDir := startDir

	for {
		candidate := filepath.Join(currentDir, filename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	return ""
}

// Load reads a glossary from a JSON object file.
func Load(path string) (Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var g Glossary
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary %s: %w", path, err)
	}
	return g, nil
}

// Match returns the terms that occur in any of texts, sorted by source.
// Matching is case-sensitive; glossaries are mostly proper nouns.
func Match(g Glossary, texts []string) []Term {
	var ret []Term
	for source, target := range g {
		if strings.TrimSpace(source) == "" {
			continue
		}
		for _, text := range texts {
			if strings.Contains(text, source) {
				ret = append(ret, Term{Source: source, Target: target})
				break
			}
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Source < ret[j].Source })
	return ret
}

// Instructions renders terms as an addition to the translation instructions.
func Instructions(terms []Term) string {
	if len(terms) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Always translate these terms as given:")
	for _, t := range terms {
		fmt.Fprintf(&sb, "\n- %s => %s", t.Source, t.Target)
	}
	return sb.String()
}

func baseCode(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
