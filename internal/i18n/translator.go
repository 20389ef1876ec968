package i18n

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// template is a catalog message rewritten to indexed verbs. args holds the
// placeholder names in verb order.
type template struct {
	args []string
}

// Translator resolves keys against the active language table, then the
// default table, then returns the key itself. Messages are registered with
// x/text/message; {{name}} placeholders become %[n]v verbs at load time.
type Translator struct {
	builder   *catalog.Builder
	templates map[string]map[string]template
	printers  map[string]*message.Printer

	mu     sync.RWMutex
	active string
}

// NewTranslator registers every table of catalog and starts on DefaultCode.
func NewTranslator(cat Catalog) (*Translator, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.Make(DefaultCode)))
	t := &Translator{
		builder:   builder,
		templates: make(map[string]map[string]template, len(cat)),
		printers:  make(map[string]*message.Printer, len(cat)),
		active:    DefaultCode,
	}
	for code, table := range cat {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("parse catalog language %q: %w", code, err)
		}
		templates := make(map[string]template, len(table))
		for key, msg := range table {
			if msg == "" {
				continue
			}
			format, tpl := compile(msg)
			if err := builder.SetString(tag, key, format); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", code, key, err)
			}
			templates[key] = tpl
		}
		t.templates[code] = templates
		t.printers[code] = message.NewPrinter(tag, message.Catalog(builder))
	}
	if _, ok := t.templates[DefaultCode]; !ok {
		return nil, fmt.Errorf("default language %s has no catalog", DefaultCode)
	}
	return t, nil
}

// compile escapes literal percent signs and turns each distinct {{name}}
// into an indexed verb.
func compile(msg string) (string, template) {
	var tpl template
	index := map[string]int{}
	format := placeholder.ReplaceAllStringFunc(strings.ReplaceAll(msg, "%", "%%"), func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		n, ok := index[name]
		if !ok {
			tpl.args = append(tpl.args, name)
			n = len(tpl.args)
			index[name] = n
		}
		return "%[" + strconv.Itoa(n) + "]v"
	})
	return format, tpl
}

// SetLanguage switches the active table.
func (t *Translator) SetLanguage(code string) error {
	if !IsSupported(code) {
		return fmt.Errorf("unsupported language %q", code)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = code
	return nil
}

// Language returns the active code.
func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// T never fails and never returns an empty string for a non-empty key.
// Placeholders missing from vars are left as {{name}}.
func (t *Translator) T(key string, vars map[string]any) string {
	code := t.Language()
	tpl, ok := t.templates[code][key]
	if !ok {
		code = DefaultCode
		tpl, ok = t.templates[code][key]
	}
	if !ok {
		return key
	}

	args := make([]any, len(tpl.args))
	for i, name := range tpl.args {
		if v, found := vars[name]; found {
			args[i] = v
		} else {
			args[i] = "{{" + name + "}}"
		}
	}
	return t.printers[code].Sprintf(key, args...)
}
