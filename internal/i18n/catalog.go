package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed locales/*.json
var embeddedLocales embed.FS

// Catalog maps a language code to its flattened key → message table.
type Catalog map[string]map[string]string

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded() (Catalog, error) {
	return LoadFromFS(embeddedLocales)
}

// LoadFromFS reads locales/<code>.json files. Nested objects are flattened
// to dotted keys, so {"auth":{"signIn":"Sign In"}} yields "auth.signIn".
func LoadFromFS(fsys fs.FS) (Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.json")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	catalog := Catalog{}
	for _, p := range paths {
		code := strings.TrimSuffix(path.Base(p), path.Ext(p))
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var tree map[string]any
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		table := map[string]string{}
		if err := flatten("", tree, table); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
		catalog[code] = table
	}

	if _, ok := catalog[DefaultCode]; !ok {
		return nil, fmt.Errorf("default locale %s is not defined in catalogs", DefaultCode)
	}
	return catalog, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("key %q: unsupported value type %T", key, v)
		}
	}
	return nil
}
