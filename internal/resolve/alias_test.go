package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAliasMap_KnownCode(t *testing.T) {
	m := NewAliasMap()
	assert.Equal(t, []string{"IBIS", "IBIS2"}, m.Fallbacks("XETRA"))
}

func TestAliasMap_UnknownCodeReturnsNil(t *testing.T) {
	m := NewAliasMap()
	assert.Nil(t, m.Fallbacks("NOPE"))
}

func TestAliasMap_MICTranslation(t *testing.T) {
	m := NewAliasMap()
	assert.Equal(t, []string{"NYSE"}, m.Fallbacks("XNYS"))
}
