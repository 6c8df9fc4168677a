package showroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evboard/internal/config"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ShowroomConfig{
		BaseURL:        srv.URL,
		UserAgent:      "evboard-test",
		Timeout:        2 * time.Second,
		SearchStatuses: []int{1, 3},
		MaxPages:       5,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestLiveEventsWalksStatusesAndPages(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/event/search", r.URL.Path)
		assert.Equal(t, "evboard-test", r.Header.Get("User-Agent"))
		status, page := r.URL.Query().Get("status"), r.URL.Query().Get("page")
		switch status + "/" + page {
		case "1/1":
			writeJSON(w, map[string]any{
				"event_list": []map[string]any{
					{"event_id": 10, "event_name": "A", "event_url_key": "a", "started_at": 100, "ended_at": 200, "is_entry_scope_inner": true},
					{"event_id": "", "event_name": "no id", "started_at": 100, "ended_at": 200},
				},
				"next_page": 2, "last_page": 2,
			})
		case "1/2":
			writeJSON(w, map[string]any{
				"event_list": []map[string]any{
					{"event_id": "11", "event_name": "B", "started_at": "150", "ended_at": "250"},
				},
				"next_page": nil, "last_page": 2,
			})
		case "3/1":
			writeJSON(w, map[string]any{
				"event_list": []map[string]any{
					{"event_id": 10.0, "event_name": "A again", "started_at": 100, "ended_at": 200},
				},
				"next_page": nil,
			})
		default:
			t.Errorf("unexpected request %s", r.URL.RawQuery)
			http.NotFound(w, r)
		}
	}))

	events, err := c.LiveEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "10", events[0].ID)
	assert.Equal(t, "A again", events[0].Name)
	assert.Equal(t, "11", events[1].ID)
	assert.Equal(t, int64(150), events[1].StartedAt)
}

func TestSearchEventsSkipsOnlyMalformedEntries(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"event_list":[
			{"event_id":1,"event_name":"good","started_at":100,"ended_at":200,"is_entry_scope_inner":false},
			{"event_id":2,"event_name":"numeric flag","started_at":100,"ended_at":200,"is_entry_scope_inner":1,"show_ranking":"TRUE"},
			{"event_id":3,"event_name":"bad image","started_at":100,"ended_at":200,"image_m":5},
			{"event_id":4,"event_name":"bad flag","started_at":100,"ended_at":200,"is_event_block":"maybe"},
			{"event_id":5,"event_name":"null flags","started_at":100,"ended_at":200,"is_entry_scope_inner":null,"is_event_block":null}
		],"next_page":null}`))
	}))

	events, more, err := c.SearchEvents(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, events, 3)

	assert.Equal(t, "1", events[0].ID)
	assert.False(t, events[0].ScopeInner)

	assert.Equal(t, "2", events[1].ID)
	assert.True(t, events[1].ScopeInner)
	require.NotNil(t, events[1].ShowRanking)
	assert.True(t, *events[1].ShowRanking)

	assert.Equal(t, "5", events[2].ID)
	assert.False(t, events[2].ScopeInner)
	assert.Nil(t, events[2].IsEventBlock)
}

func TestLiveEventsFailsWhenNothingLoads(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	_, err := c.LiveEvents(context.Background())
	require.Error(t, err)
}

func TestRoomCount(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("event_id") {
		case "1":
			writeJSON(w, map[string]any{"total_entries": 42})
		case "2":
			writeJSON(w, map[string]any{"list": []any{}})
		case "3":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("{not json"))
		}
	}))
	ctx := context.Background()

	n, err := c.RoomCount(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = c.RoomCount(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = c.RoomCount(ctx, "3")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.RoomCount(ctx, "4")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRoomsAndProfile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/event/room_list":
			if r.URL.Query().Get("p") == "1" {
				writeJSON(w, map[string]any{
					"total_entries": 3,
					"list": []map[string]any{
						{"room_id": 1, "room_name": "one", "room_url_key": "one", "point": 300},
						{"room_id": 2, "room_name": "two", "room_url_key": "two", "point": 200},
					},
					"next_page": 2,
				})
				return
			}
			writeJSON(w, map[string]any{
				"list":      []map[string]any{{"room_id": "3", "room_name": "three", "point": "100"}},
				"next_page": nil,
			})
		case "/api/room/profile":
			writeJSON(w, map[string]any{"room_level": 120, "follower_num": 5000, "show_rank_subdivided": "A-2", "live_continuous_days": 7})
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	rooms, err := c.Rooms(ctx, "99")
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, int64(3), rooms[2].ID)
	assert.Equal(t, int64(100), rooms[2].Point)

	p, err := c.RoomProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, Profile{Level: 120, Followers: 5000, Rank: "A-2", StreakDays: 7}, p)

	assert.Equal(t, c.baseURL+"/event/spring_cup", c.EventURL("spring_cup"))
}
