package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Supported document formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// FormatFromExt maps a file extension to a document format.
func FormatFromExt(ext string) (string, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		return FormatYAML, true
	case "json":
		return FormatJSON, true
	case "toml":
		return FormatTOML, true
	}
	return "", false
}

// order records mapping keys in declaration order, keyed by dotted path ("" is the root).
type order map[string][]string

func (o order) add(path, key string) {
	for _, k := range o[path] {
		if k == key {
			return
		}
	}
	o[path] = append(o[path], key)
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// parseTree decodes a document into a generic tree, keeping mapping order.
func parseTree(data []byte, format string) (map[string]any, order, error) {
	var (
		tree any
		ord  = order{}
		err  error
	)
	switch format {
	case FormatYAML, "":
		tree, err = parseYAML(data, ord)
	case FormatJSON:
		tree, err = parseJSON(data, ord)
	case FormatTOML:
		tree, err = parseTOML(data, ord)
	default:
		return nil, nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, nil, err
	}
	if tree == nil {
		return map[string]any{}, ord, nil
	}
	m, ok := tree.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("document root must be a mapping, got %T", tree)
	}
	return m, ord, nil
}

func parseYAML(data []byte, ord order) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind == 0 {
		return nil, nil
	}
	return yamlValue(&doc, "", ord)
}

func yamlValue(n *yaml.Node, path string, ord order) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0], path, ord)
	case yaml.AliasNode:
		return yamlValue(n.Alias, path, ord)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := m[key]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", n.Content[i].Line, key)
			}
			v, err := yamlValue(n.Content[i+1], joinPath(path, key), ord)
			if err != nil {
				return nil, err
			}
			m[key] = v
			ord.add(path, key)
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c, path, ord)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
}

func parseJSON(data []byte, ord order) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := jsonValue(dec, "", ord)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse json: trailing data")
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, path string, ord order) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			if _, dup := m[key]; dup {
				return nil, fmt.Errorf("duplicate key %q", key)
			}
			v, err := jsonValue(dec, joinPath(path, key), ord)
			if err != nil {
				return nil, err
			}
			m[key] = v
			ord.add(path, key)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return m, nil
	case '[':
		var list []any
		for dec.More() {
			v, err := jsonValue(dec, path, ord)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		if list == nil {
			list = []any{}
		}
		return list, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

func parseTOML(data []byte, ord order) (any, error) {
	var tree map[string]any
	md, err := toml.Decode(string(data), &tree)
	if err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	for _, key := range md.Keys() {
		for i := range key {
			ord.add(strings.Join(key[:i], "."), key[i])
		}
	}
	return tree, nil
}

// keysInOrder returns the keys of m, declaration order first, then any remaining keys.
func keysInOrder(m map[string]any, declared []string) []string {
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, k := range declared {
		if _, ok := m[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
