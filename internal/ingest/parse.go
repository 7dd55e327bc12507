package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/chunker"
)

// ContentField labels the text of a Markdown file.
const ContentField = "content"

// document is the parsed form of one file.
type document struct {
	fields    []chunker.Field
	malformed int
}

// parseFile turns raw file content into labelled fields. Markdown becomes
// one content field of at most maxChars runes. JSON holds an object or an
// array of objects; JSONL holds one object per line, and lines that do not
// parse are counted and left out.
func parseFile(path string, raw []byte, fields []string, maxChars int) (*document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		text := chunker.Truncate(string(raw), maxChars)
		if strings.TrimSpace(text) == "" {
			return &document{}, nil
		}
		return &document{fields: []chunker.Field{{Label: ContentField, Text: text}}}, nil
	case ".jsonl":
		return parseJSONLines(raw, fields)
	default:
		return parseJSON(raw, fields)
	}
}

func parseJSON(raw []byte, fields []string) (*document, error) {
	var v any
	if err := decode(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	doc := &document{}
	switch t := v.(type) {
	case map[string]any:
		doc.fields = chunker.ExtractFields(t, fields)
	case []any:
		for _, item := range t {
			if record, ok := item.(map[string]any); ok {
				doc.fields = append(doc.fields, chunker.ExtractFields(record, fields)...)
			}
		}
	default:
		return nil, fmt.Errorf("invalid JSON: expected object or array, got %T", v)
	}
	return doc, nil
}

func parseJSONLines(raw []byte, fields []string) (*document, error) {
	doc := &document{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var record map[string]any
		if err := decode(line, &record); err != nil || record == nil {
			doc.malformed++
			continue
		}
		doc.fields = append(doc.fields, chunker.ExtractFields(record, fields)...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return doc, nil
}

func decode(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}
