package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCounter(t *testing.T) {
	var c Counter = WordCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 0, c.Count(" \n\t "))
	assert.Equal(t, 4, c.Count("one two\nthree   four"))
}
