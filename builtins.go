package germ

import (
	_ "embed"
	"encoding/json"
	"sync"
)

//go:embed builtins_by_lang.json
var builtinsByLangData []byte

var (
	builtinsOnce sync.Once
	builtinsMap  map[string]map[string]struct{}
)

// BuiltinsByLang returns, for the given language, the set of identifiers
// considered language built-ins, and therefore suppressed from rendered
// summaries. The underlying table is parsed once and memoized.
func BuiltinsByLang(language string) map[string]struct{} {
	builtinsOnce.Do(loadBuiltins)
	return builtinsMap[language]
}

func loadBuiltins() {
	var raw map[string][]string
	if err := json.Unmarshal(builtinsByLangData, &raw); err != nil {
		builtinsMap = map[string]map[string]struct{}{}
		return
	}
	builtinsMap = make(map[string]map[string]struct{}, len(raw))
	for lang, names := range raw {
		set := make(map[string]struct{}, len(names))
		for _, n := range names {
			set[n] = struct{}{}
		}
		builtinsMap[lang] = set
	}
}

// IsBuiltin reports whether name is a built-in identifier for language.
func IsBuiltin(language, name string) bool {
	set := BuiltinsByLang(language)
	if set == nil {
		return false
	}
	_, ok := set[name]
	return ok
}
