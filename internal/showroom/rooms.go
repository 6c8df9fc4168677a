package showroom

import (
	"context"
	"net/url"
	"strconv"

	"evboard/internal/model"
)

type roomListResponse struct {
	nextPage
	TotalEntries *flexInt `json:"total_entries"`
	List         []struct {
		RoomID     flexInt `json:"room_id"`
		RoomName   string  `json:"room_name"`
		RoomURLKey string  `json:"room_url_key"`
		Point      flexInt `json:"point"`
	} `json:"list"`
}

// RoomCount returns the number of rooms entered in an event. A missing
// total_entries field counts as 0. A 404 is returned as ErrNotFound so the
// caller can tell "nobody entered" apart from a failure.
func (c *Client) RoomCount(ctx context.Context, eventID string) (int, error) {
	q := url.Values{}
	q.Set("event_id", eventID)
	var resp roomListResponse
	if err := c.getJSON(ctx, "/api/event/room_list", q, &resp); err != nil {
		return 0, err
	}
	if resp.TotalEntries == nil {
		return 0, nil
	}
	return int(*resp.TotalEntries), nil
}

// RoomListPage returns one page of rooms entered in an event.
func (c *Client) RoomListPage(ctx context.Context, eventID string, page int) ([]model.Room, bool, error) {
	q := url.Values{}
	q.Set("event_id", eventID)
	q.Set("p", strconv.Itoa(page))
	var resp roomListResponse
	if err := c.getJSON(ctx, "/api/event/room_list", q, &resp); err != nil {
		return nil, false, err
	}
	rooms := make([]model.Room, 0, len(resp.List))
	for _, r := range resp.List {
		rooms = append(rooms, model.Room{
			ID:     int64(r.RoomID),
			Name:   r.RoomName,
			URLKey: r.RoomURLKey,
			Point:  int64(r.Point),
		})
	}
	return rooms, len(resp.List) > 0 && resp.more(page), nil
}

// Rooms walks the room list of an event up to the configured page limit.
func (c *Client) Rooms(ctx context.Context, eventID string) ([]model.Room, error) {
	var all []model.Room
	for page := 1; ; page++ {
		if page > c.maxPages {
			logPageLimit("room_list", c.maxPages, "event_id", eventID)
			break
		}
		rooms, more, err := c.RoomListPage(ctx, eventID, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// Keep what we have; later pages are best effort.
			break
		}
		all = append(all, rooms...)
		if !more {
			break
		}
	}
	return all, nil
}

// Profile is the subset of a room profile used by the leaderboard.
type Profile struct {
	Level      int
	Followers  int64
	Rank       string
	StreakDays int
}

type profileResponse struct {
	RoomLevel          flexInt `json:"room_level"`
	FollowerNum        flexInt `json:"follower_num"`
	ShowRankSubdivided string  `json:"show_rank_subdivided"`
	LiveContinuousDays flexInt `json:"live_continuous_days"`
}

// RoomProfile fetches the profile of one room.
func (c *Client) RoomProfile(ctx context.Context, roomID int64) (Profile, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	var resp profileResponse
	if err := c.getJSON(ctx, "/api/room/profile", q, &resp); err != nil {
		return Profile{}, err
	}
	return Profile{
		Level:      int(resp.RoomLevel),
		Followers:  int64(resp.FollowerNum),
		Rank:       resp.ShowRankSubdivided,
		StreakDays: int(resp.LiveContinuousDays),
	}, nil
}
