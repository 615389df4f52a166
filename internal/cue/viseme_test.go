package cue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisemeForPhoneme(t *testing.T) {
	assert.Equal(t, VisemeAA, VisemeForPhoneme("AA"))
	assert.Equal(t, VisemeAA, VisemeForPhoneme("aa"), "lookup is case-insensitive")
	assert.Equal(t, VisemeMBP, VisemeForPhoneme("M"))
	assert.Equal(t, VisemeCHJ, VisemeForPhoneme("JH"))
	assert.Equal(t, VisemeSil, VisemeForPhoneme("sil"))
	assert.Equal(t, VisemeSil, VisemeForPhoneme("??"), "unknown symbols fall back to silence")
}

func TestVisemeSequence(t *testing.T) {
	t.Run("basic word", func(t *testing.T) {
		assert.Equal(t, []string{VisemeAA, VisemeEE, VisemeLNTD, VisemeOH}, VisemeSequence("Hello"))
	})

	t.Run("digraphs", func(t *testing.T) {
		assert.Equal(t, []string{VisemeTH, VisemeIH, VisemeSZ}, VisemeSequence("this"))
		assert.Equal(t, []string{VisemeCHJ, VisemeAA, VisemeLNTD}, VisemeSequence("chat"))
	})

	t.Run("consecutive duplicates collapse", func(t *testing.T) {
		assert.Equal(t, []string{VisemeMBP, VisemeOU, VisemeCHJ}, VisemeSequence("bush"))
		assert.Equal(t, []string{VisemeLNTD}, VisemeSequence("tnt"))
	})

	t.Run("non-letters skipped", func(t *testing.T) {
		assert.Equal(t, VisemeSequence("dont"), VisemeSequence("don't"))
		assert.Empty(t, VisemeSequence("123"))
	})
}
