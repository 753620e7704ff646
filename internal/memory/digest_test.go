package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompute_ShortInputs(t *testing.T) {
	d := Compute("How are you feeling?", "I feel okay today")
	assert.Equal(t, `Last turn → therapist: "How are you feeling?"; patient: "I feel okay today"`, d.String())
}

func TestCompute_TruncatesLongTherapistText(t *testing.T) {
	long := strings.Repeat("a", 200)
	d := Compute(long, "ok").String()

	assert.Contains(t, d, `therapist: "`+strings.Repeat("a", 120)+`…"`)
	assert.NotContains(t, d, strings.Repeat("a", 121))
	assert.Contains(t, d, `patient: "ok"`)
}

func TestCompute_ExactlyAtBoundaryIsNotTruncated(t *testing.T) {
	exact := strings.Repeat("b", MaxExcerpt)
	d := Compute("hi", exact).String()
	assert.Contains(t, d, `patient: "`+exact+`"`)
	assert.NotContains(t, d, "…")
}

func TestCompute_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 130)
	d := Compute(text, "").String()
	assert.Contains(t, d, strings.Repeat("é", 120)+"…")
}

func TestCompute_Idempotent(t *testing.T) {
	assert.Equal(t, Compute("x", "y"), Compute("x", "y"))
}
