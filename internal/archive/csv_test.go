package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "event_id,is_event_block,is_entry_scope_inner,event_name,image_m,started_at,ended_at,event_url_key,show_ranking\n" +
	"123.0,FALSE,TRUE,Spring Cup,https://img/1.png,1700000000,1700086400,spring_cup,TRUE\n" +
	"124,,false,Open Stage,,1700000000.0,1700172800,open_stage,\n" +
	",FALSE,FALSE,No Id,,1700000000,1700086400,no_id,\n" +
	"125,FALSE,FALSE,Bad Start,,soon,1700086400,bad_start,\n" +
	"126,FALSE,FALSE,Bad End,,1700000000,,bad_end,\n" +
	"127,FALSE,FALSE,Inverted,,1700086400,1700000000,inverted,\n" +
	"123,FALSE,TRUE,Spring Cup (renamed),,1700000000,1700086400,spring_cup,TRUE\n"

func TestParseCSV(t *testing.T) {
	events, stats, err := ParseCSV([]byte(feed))
	require.NoError(t, err)

	assert.Equal(t, 7, stats.Rows)
	assert.Equal(t, 1, stats.BadID)
	assert.Equal(t, 3, stats.BadTime)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 5, stats.Dropped())

	require.Len(t, events, 2)
	first := events[0]
	assert.Equal(t, "123", first.ID)
	assert.Equal(t, "Spring Cup (renamed)", first.Name)
	assert.True(t, first.ScopeInner)
	assert.Nil(t, first.ImageM)
	require.NotNil(t, first.ShowRanking)
	assert.True(t, *first.ShowRanking)

	second := events[1]
	assert.Equal(t, "124", second.ID)
	assert.False(t, second.ScopeInner)
	assert.Equal(t, int64(1700000000), second.StartedAt)
	assert.Nil(t, second.IsEventBlock)
}

func TestParseCSVStripsBOMAndAcceptsHeaderOnly(t *testing.T) {
	events, stats, err := ParseCSV([]byte("\xef\xbb\xbfevent_id,started_at,ended_at\n"))
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, stats.Rows)

	events, _, err = ParseCSV([]byte("\xef\xbb\xbfevent_id,started_at,ended_at\n9,1,2\n"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "9", events[0].ID)
}

func TestParseCSVDropsOutOfRangeTimestamps(t *testing.T) {
	body := "event_id,started_at,ended_at\n" +
		"1,1e30,2e30\n" +
		"2,1700000000,9223372036854775807\n" +
		"3,-1e19,1700000000\n" +
		"4,1700000000,1.7000864e9\n"
	events, stats, err := ParseCSV([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.BadTime)
	require.Len(t, events, 1)
	assert.Equal(t, "4", events[0].ID)
	assert.Equal(t, int64(1700086400), events[0].EndedAt)
}

func TestParseEpochBounds(t *testing.T) {
	n, err := parseEpoch("4611686018427387904")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<62), n)

	_, err = parseEpoch("4611686018427387905")
	assert.Error(t, err)
	_, err = parseEpoch("1e30")
	assert.Error(t, err)
}

func TestParseCSVEmpty(t *testing.T) {
	_, _, err := ParseCSV([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestMarshalCSVRoundTripKeepsOptionalFields(t *testing.T) {
	events, _, err := ParseCSV([]byte(feed))
	require.NoError(t, err)

	out, err := MarshalCSV(events)
	require.NoError(t, err)
	assert.Contains(t, string(out), "event_id,is_event_block,is_entry_scope_inner,event_name,image_m,started_at,ended_at,event_url_key,show_ranking")

	again, stats, err := ParseCSV(out)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Dropped())
	assert.Equal(t, events, again)
}
