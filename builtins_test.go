package germ

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBuiltinUnknownLanguage(t *testing.T) {
	assert.False(t, IsBuiltin("does-not-exist-lang", "anything"))
}

func TestBuiltinsByLangReturnsConsistentSet(t *testing.T) {
	first := BuiltinsByLang("python")
	second := BuiltinsByLang("python")
	assert.Equal(t, len(first), len(second))
}
