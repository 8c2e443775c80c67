package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	assert.Equal(t, "abcd\n\txy", SanitizeText("ab\x00cd\x01\x02\n\txy"))
	assert.Equal(t, "line1\nline2\nline3", SanitizeText("line1\r\nline2\rline3�"))
}
