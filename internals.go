package germ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// PrintStruct prints a struct as JSON.
func PrintStruct(w io.Writer, t interface{}) {
	j, _ := json.MarshalIndent(t, "", "  ")
	fmt.Fprintln(w, string(j))
}

// PrintStructOut prints a struct as JSON to stdout.
func PrintStructOut(t interface{}) {
	PrintStruct(os.Stdout, t)
}

// uniqueElements merges any number of string slices into a single
// slice of unique values, preserving first-seen order.
func uniqueElements(groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, group := range groups {
		for _, s := range group {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// commonWords is the set of short, high-frequency identifiers filtered
// out of tag extraction so they don't dominate the rank graph.
var commonWords = map[string]struct{}{
	"self": {}, "this": {}, "true": {}, "false": {}, "nil": {}, "none": {},
	"null": {}, "int": {}, "str": {}, "bool": {}, "error": {}, "string": {},
	"len": {}, "new": {}, "get": {}, "set": {}, "log": {}, "main": {},
}
