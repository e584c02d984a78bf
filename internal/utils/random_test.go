package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomString(t *testing.T) {
	a, b := RandomString(16), RandomString(16)
	assert.Len(t, a, 22)
	assert.NotEqual(t, a, b)
}

func TestRandomSuffix(t *testing.T) {
	s := RandomSuffix(6)
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9]{6}$`), s)
}
