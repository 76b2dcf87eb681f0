package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/insightboard/internal/jobs"
)

func TestDecodeDetail_SegmentsStringAndObjectAreEquivalent(t *testing.T) {
	asString := []byte(`{"id":"a1","status":"DONE","segments":"[{\"start\":5,\"text\":\"hi\"}]"}`)
	asValue := []byte(`{"id":"a1","status":"DONE","segments":[{"start":5,"text":"hi"}]}`)

	fromString, err := DecodeDetail(asString)
	require.NoError(t, err)
	fromValue, err := DecodeDetail(asValue)
	require.NoError(t, err)

	require.Len(t, fromString.Record.Insight.Transcript, 1)
	assert.Equal(t, float64(5), fromString.Record.Insight.Transcript[0].Start)
	assert.Equal(t, "hi", fromString.Record.Insight.Transcript[0].Text)
	assert.Equal(t, fromValue.Record, fromString.Record)
	assert.Empty(t, fromString.Warnings)
	assert.Empty(t, fromValue.Warnings)
}

func TestDecodeDetail_RawInsightStringAndObjectAreEquivalent(t *testing.T) {
	asString := []byte(`{"id":"a1","status":"done","raw_insight_json":"{\"title\":\"Fitting\",\"main_summary\":\"Went well\",\"action_items\":[\"Book\"],\"priority\":\"1\",\"sentiment\":\"Positive\"}"}`)
	asValue := []byte(`{"id":"a1","status":"done","raw_insight_json":{"title":"Fitting","main_summary":"Went well","action_items":["Book"],"priority":1,"sentiment":"Positive"}}`)

	a, err := DecodeDetail(asString)
	require.NoError(t, err)
	b, err := DecodeDetail(asValue)
	require.NoError(t, err)

	assert.Equal(t, a.Record, b.Record)
	in := a.Record.Insight
	require.NotNil(t, in)
	assert.Equal(t, "Fitting", in.Title)
	assert.Equal(t, "Went well", in.Summary)
	assert.Equal(t, []string{"Book"}, in.ActionItems)
	require.NotNil(t, in.Priority)
	assert.Equal(t, 1, *in.Priority)
	assert.Equal(t, jobs.StatusDone, a.Record.Status)
}

func TestDecodeDetail_BadEmbeddedJSONDegrades(t *testing.T) {
	body := []byte(`{
		"id": "a1",
		"status": "DONE",
		"main_summary": "fallback summary",
		"insight_category": "SALES",
		"raw_insight_json": "{not json",
		"segments": "[{broken",
		"transcript": "full text here"
	}`)
	d, err := DecodeDetail(body)
	require.NoError(t, err)

	require.Len(t, d.Warnings, 2)
	assert.Equal(t, "raw_insight_json", d.Warnings[0].Field)
	assert.Equal(t, "segments", d.Warnings[1].Field)

	in := d.Record.Insight
	require.NotNil(t, in)
	assert.Equal(t, "fallback summary", in.Summary)
	assert.Equal(t, "SALES", in.Category)
	assert.Empty(t, in.Transcript)
	assert.NotNil(t, in.ActionItems)
	assert.Equal(t, "full text here", in.FullText)
}

func TestDecodeDetail_AbsentFieldsAreEmpty(t *testing.T) {
	d, err := DecodeDetail([]byte(`{"id":7,"status":"PROCESSING","raw_insight_json":{},"segments":null}`))
	require.NoError(t, err)
	assert.Empty(t, d.Warnings)
	assert.Equal(t, "7", d.Record.ID.String())
	assert.True(t, d.Record.ID.IsAuthoritative())
	assert.Empty(t, d.Record.Insight.Transcript)
}

func TestDecodeDetail_WrappedSegments(t *testing.T) {
	d, err := DecodeDetail([]byte(`{"id":"a","segments":{"segments":[{"start":1.5,"end":3,"text":"x","speaker":"Speaker"}]}}`))
	require.NoError(t, err)
	require.Len(t, d.Record.Insight.Transcript, 1)
	assert.Equal(t, jobs.Segment{Start: 1.5, End: 3, Text: "x", Speaker: "Speaker"}, d.Record.Insight.Transcript[0])
}

func TestDecodeDetail_RejectsMalformedEnvelope(t *testing.T) {
	_, err := DecodeDetail([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = DecodeDetail([]byte(`{"status":"DONE"}`))
	assert.Error(t, err)
}

func TestParseTime_Layouts(t *testing.T) {
	want := time.Date(2026, 3, 1, 10, 30, 0, 123456000, time.UTC)
	for _, in := range []string{
		"2026-03-01T10:30:00.123456Z",
		"2026-03-01 10:30:00.123456+00:00",
		"2026-03-01 12:30:00.123456+02:00",
		"2026-03-01 10:30:00.123456",
	} {
		assert.True(t, want.Equal(parseTime(in)), in)
	}
	assert.True(t, parseTime("yesterday").IsZero())
	assert.True(t, parseTime("").IsZero())
}
