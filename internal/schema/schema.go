// Package schema derives the parsed-event field list from a DDL declaration.
//
// A declaration is plain SQL where every column that the parser fills is
// marked with a trailing /*__PARSEDFIELD__*/ comment. The first token of each
// marked line is the field name; order of appearance is the field order.
package schema

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tinytelemetry/fdbtracer/internal/duckdb/migrate"
	"github.com/tinytelemetry/fdbtracer/internal/model"
)

// FieldMarker tags a declaration line as a parsed field.
const FieldMarker = "/*__PARSEDFIELD__*/"

// Parse reads a declaration and returns the schema it describes.
func Parse(r io.Reader) (*model.Schema, error) {
	var fields []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, FieldMarker) {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 || tokens[0] == FieldMarker {
			return nil, fmt.Errorf("schema: marked line has no field name: %q", strings.TrimSpace(line))
		}
		fields = append(fields, strings.TrimSuffix(tokens[0], ","))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("schema: read declaration: %w", err)
	}
	s, err := model.NewSchema(fields)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return s, nil
}

// Default parses the declaration embedded with the store migrations.
func Default() (*model.Schema, error) {
	data, err := migrate.Source(migrate.ParsedEventsMigration)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Load parses the declaration at path, or the embedded one when path is empty.
func Load(path string) (*model.Schema, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open declaration: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
