package consultant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wet-coach-go/internal/model"
	"wet-coach-go/pkg/llm"
)

type fakeCompleter struct {
	out   string
	err   error
	calls int
	got   []llm.Message
	gen   *llm.GenerationParams
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.calls++
	f.got = messages
	f.gen = gen
	return f.out, f.err
}

func sampleTranscript() []Entry {
	return []Entry{
		{Role: model.RoleTherapist, Text: "Welcome, how was your week?"},
		{Role: model.RolePatient, Text: "Rough. I did not sleep much."},
		{Role: model.RoleTherapist, Text: "Tell me about the writing assignment."},
		{Role: model.RolePatient, Text: "I feel okay today"},
	}
}

func TestParse_ValidJSON(t *testing.T) {
	res := Parse(`{"title":"Good rapport","summary":"Nice opening","details":"**Keep** going","priority":"YELLOW"}`)
	require.Equal(t, Parsed, res.Kind)
	assert.NoError(t, res.Cause)
	assert.Equal(t, model.NoteDraft{
		Title:    "Good rapport",
		Summary:  "Nice opening",
		Details:  "**Keep** going",
		Priority: model.PriorityYellow,
	}, res.Draft)
}

func TestParse_StripsFences(t *testing.T) {
	res := Parse("```json\n{\"title\":\"T\",\"summary\":\"S\",\"details\":\"\",\"priority\":\"red\"}\n```")
	require.Equal(t, Parsed, res.Kind)
	assert.Equal(t, "T", res.Draft.Title)
	assert.Equal(t, model.PriorityRed, res.Draft.Priority)
}

func TestParse_DefaultsMissingFields(t *testing.T) {
	res := Parse(`{"priority":"purple"}`)
	require.Equal(t, Parsed, res.Kind)
	assert.Equal(t, "Feedback", res.Draft.Title)
	assert.Equal(t, "General feedback", res.Draft.Summary)
	assert.Equal(t, "", res.Draft.Details)
	assert.Equal(t, model.PriorityGreen, res.Draft.Priority)
}

func TestParse_MalformedFallsBack(t *testing.T) {
	for _, raw := range []string{"not json", "null", "[]", `"just a string"`, "42"} {
		t.Run(raw, func(t *testing.T) {
			res := Parse(raw)
			require.Equal(t, Fallback, res.Kind)
			assert.Error(t, res.Cause)
			assert.Equal(t, model.NoteDraft{
				Title:    "Feedback",
				Summary:  raw,
				Details:  "",
				Priority: model.PriorityGreen,
			}, res.Draft)
		})
	}
}

func TestParse_EmptyFallsBackToDefaultSummary(t *testing.T) {
	res := Parse("  ``` ```  ")
	require.Equal(t, Fallback, res.Kind)
	assert.Equal(t, "General feedback", res.Draft.Summary)
}

func TestGenerate_SingleCallWithDigestAndRecentExchange(t *testing.T) {
	fc := &fakeCompleter{out: `{"title":"Stay present","summary":"s","details":"d","priority":"green"}`}
	g := NewGenerator(fc, nil)

	res := g.Generate(context.Background(), sampleTranscript(), "Last turn → therapist: \"x\"; patient: \"y\"")
	require.Equal(t, Parsed, res.Kind)
	assert.Equal(t, "Stay present", res.Draft.Title)
	assert.Equal(t, 1, fc.calls)

	require.Len(t, fc.got, 3)
	assert.Equal(t, "system", fc.got[0].Role)
	assert.Equal(t, "system", fc.got[1].Role)
	assert.True(t, strings.HasPrefix(fc.got[1].Content, "Session memory: Last turn"))

	user := fc.got[2].Content
	earlier := strings.Index(user, "Earlier conversation:")
	recent := strings.Index(user, "Most recent exchange")
	require.GreaterOrEqual(t, earlier, 0)
	require.Greater(t, recent, earlier)
	assert.Contains(t, user[recent:], "Therapist: Tell me about the writing assignment.")
	assert.Contains(t, user[recent:], "Patient: I feel okay today")
	assert.NotContains(t, user[recent:], "Rough.")

	require.NotNil(t, fc.gen.Temperature)
	assert.InDelta(t, 0.2, *fc.gen.Temperature, 1e-9)
}

func TestGenerate_OmitsEmptyDigest(t *testing.T) {
	fc := &fakeCompleter{out: `{}`}
	NewGenerator(fc, nil).Generate(context.Background(), sampleTranscript(), " ")
	require.Len(t, fc.got, 2)
	assert.Equal(t, "user", fc.got[1].Role)
}

func TestGenerate_TransportErrorFallsBack(t *testing.T) {
	boom := errors.New("upstream down")
	fc := &fakeCompleter{err: boom}

	res := NewGenerator(fc, nil).Generate(context.Background(), sampleTranscript(), "")
	require.Equal(t, Fallback, res.Kind)
	assert.ErrorIs(t, res.Cause, boom)
	assert.Equal(t, "General feedback", res.Draft.Summary)
	assert.Equal(t, model.PriorityGreen, res.Draft.Priority)
	assert.Equal(t, 1, fc.calls)
}

func TestFormatTranscript_SingleTrailingTherapistEntry(t *testing.T) {
	out := FormatTranscript([]Entry{
		{Role: model.RolePatient, Text: "hello"},
		{Role: model.RolePatient, Text: "again"},
	})
	assert.Contains(t, out, "Earlier conversation:\n\nPatient: hello")
	assert.True(t, strings.HasSuffix(out, "Most recent exchange (evaluate this first):\n\nPatient: again"))
}

func TestFormatTranscript_OnlyRecent(t *testing.T) {
	out := FormatTranscript([]Entry{
		{Role: model.RoleTherapist, Text: "hi"},
		{Role: model.RolePatient, Text: "hey"},
	})
	assert.NotContains(t, out, "Earlier conversation")
	assert.Equal(t, "Most recent exchange (evaluate this first):\n\nTherapist: hi\n\nPatient: hey", out)
}
