package steam

import (
	"context"
	"net/url"
	"sort"
	"strconv"

	"github.com/Sternrassler/steam-relay/pkg/batch"
	"github.com/Sternrassler/steam-relay/pkg/cache"
)

// Web API and Store API endpoints.
const (
	endpointPlayerSummaries = "/ISteamUser/GetPlayerSummaries/v2/"
	endpointFriendList      = "/ISteamUser/GetFriendList/v1/"
	endpointPlayerCount     = "/ISteamUserStats/GetNumberOfCurrentPlayers/v1/"
	endpointAchievements    = "/ISteamUserStats/GetPlayerAchievements/v1/"
	endpointGameSchema      = "/ISteamUserStats/GetSchemaForGame/v2/"
	endpointOwnedGames      = "/IPlayerService/GetOwnedGames/v1/"
	endpointRecentGames     = "/IPlayerService/GetRecentlyPlayedGames/v1/"
	endpointSteamLevel      = "/IPlayerService/GetSteamLevel/v1/"
	endpointBadges          = "/IPlayerService/GetBadges/v1/"
	endpointAppNews         = "/ISteamNews/GetNewsForApp/v2/"
	endpointAppDetails      = "/api/appdetails"
	endpointFeatured        = "/api/featured"
)

const (
	recentGamesCount = 10
	newsMaxLength    = 300

	// DefaultNewsCount is used when GetAppNews is asked for a non-positive count.
	DefaultNewsCount = 5
	// MaxNewsCount caps GetAppNews.
	MaxNewsCount = 20

	// DefaultTopGames is used when GetTopGames is asked for a non-positive limit.
	DefaultTopGames = 10
)

// GetProfile returns the public profile of steamID.
func (s *Service) GetProfile(ctx context.Context, steamID string) (*PlayerSummary, error) {
	return fetch(ctx, s, cache.NewKey(KindProfile, steamID), true, func(ctx context.Context) (*PlayerSummary, error) {
		var body struct {
			Response struct {
				Players []PlayerSummary `json:"players"`
			} `json:"response"`
		}
		if err := getJSON(ctx, s.api, endpointPlayerSummaries, url.Values{"steamids": {steamID}}, &body); err != nil {
			return nil, err
		}
		if len(body.Response.Players) == 0 {
			return nil, ErrNotFound
		}
		return &body.Response.Players[0], nil
	})
}

// GetGameDetails returns the store details of appID.
func (s *Service) GetGameDetails(ctx context.Context, appID string) (*GameDetails, error) {
	return fetch(ctx, s, cache.NewKey(KindGameDetails, appID), true, func(ctx context.Context) (*GameDetails, error) {
		var body map[string]struct {
			Success bool         `json:"success"`
			Data    *GameDetails `json:"data"`
		}
		if err := getJSON(ctx, s.store, endpointAppDetails, url.Values{"appids": {appID}}, &body); err != nil {
			return nil, err
		}
		entry, ok := body[appID]
		if !ok || !entry.Success || entry.Data == nil {
			return nil, ErrNotFound
		}
		return entry.Data, nil
	})
}

// GetPlayerCount returns the number of players currently in appID.
func (s *Service) GetPlayerCount(ctx context.Context, appID string) (int, error) {
	return s.playerCount(ctx, appID, true)
}

func (s *Service) playerCount(ctx context.Context, appID string, admit bool) (int, error) {
	return fetch(ctx, s, cache.NewKey(KindPlayerCount, appID), admit, func(ctx context.Context) (int, error) {
		var body struct {
			Response struct {
				PlayerCount *int `json:"player_count"`
			} `json:"response"`
		}
		if err := getJSON(ctx, s.api, endpointPlayerCount, url.Values{"appid": {appID}}, &body); err != nil {
			return 0, err
		}
		if body.Response.PlayerCount == nil {
			return 0, ErrNotFound
		}
		return *body.Response.PlayerCount, nil
	})
}

// GetOwnedGames returns the library of steamID. Private libraries are ErrNotFound.
func (s *Service) GetOwnedGames(ctx context.Context, steamID string) (*OwnedGames, error) {
	return fetch(ctx, s, cache.NewKey(KindOwnedGames, steamID), true, func(ctx context.Context) (*OwnedGames, error) {
		var body struct {
			Response struct {
				GameCount *int        `json:"game_count"`
				Games     []OwnedGame `json:"games"`
			} `json:"response"`
		}
		params := url.Values{
			"steamid":                   {steamID},
			"include_appinfo":           {"1"},
			"include_played_free_games": {"1"},
		}
		if err := getJSON(ctx, s.api, endpointOwnedGames, params, &body); err != nil {
			return nil, err
		}
		if body.Response.GameCount == nil {
			return nil, ErrNotFound
		}
		return &OwnedGames{GameCount: *body.Response.GameCount, Games: body.Response.Games}, nil
	})
}

// GetRecentGames returns the games steamID played in the last two weeks.
func (s *Service) GetRecentGames(ctx context.Context, steamID string) (*RecentGames, error) {
	return fetch(ctx, s, cache.NewKey(KindRecentGames, steamID), true, func(ctx context.Context) (*RecentGames, error) {
		var body struct {
			Response struct {
				TotalCount *int        `json:"total_count"`
				Games      []OwnedGame `json:"games"`
			} `json:"response"`
		}
		params := url.Values{
			"steamid": {steamID},
			"count":   {strconv.Itoa(recentGamesCount)},
		}
		if err := getJSON(ctx, s.api, endpointRecentGames, params, &body); err != nil {
			return nil, err
		}
		if body.Response.TotalCount == nil {
			return nil, ErrNotFound
		}
		return &RecentGames{TotalCount: *body.Response.TotalCount, Games: body.Response.Games}, nil
	})
}

// GetAchievements returns steamID's achievements in appID.
func (s *Service) GetAchievements(ctx context.Context, steamID, appID string) (*PlayerAchievements, error) {
	return fetch(ctx, s, cache.NewKey(KindAchievements, steamID, appID), true, func(ctx context.Context) (*PlayerAchievements, error) {
		var body struct {
			PlayerStats *PlayerAchievements `json:"playerstats"`
		}
		params := url.Values{
			"steamid": {steamID},
			"appid":   {appID},
		}
		if err := getJSON(ctx, s.api, endpointAchievements, params, &body); err != nil {
			return nil, err
		}
		if body.PlayerStats == nil || !body.PlayerStats.Success {
			return nil, ErrNotFound
		}
		return body.PlayerStats, nil
	})
}

// GetFriends returns the friend list of steamID. Private lists are ErrNotFound.
func (s *Service) GetFriends(ctx context.Context, steamID string) ([]Friend, error) {
	return fetch(ctx, s, cache.NewKey(KindFriends, steamID), true, func(ctx context.Context) ([]Friend, error) {
		var body struct {
			FriendsList *struct {
				Friends []Friend `json:"friends"`
			} `json:"friendslist"`
		}
		params := url.Values{
			"steamid":      {steamID},
			"relationship": {"friend"},
		}
		if err := getJSON(ctx, s.api, endpointFriendList, params, &body); err != nil {
			return nil, err
		}
		if body.FriendsList == nil {
			return nil, ErrNotFound
		}
		return body.FriendsList.Friends, nil
	})
}

// GetFeaturedGames returns the store's featured Windows games.
func (s *Service) GetFeaturedGames(ctx context.Context) ([]FeaturedGame, error) {
	return s.featured(ctx, true)
}

func (s *Service) featured(ctx context.Context, admit bool) ([]FeaturedGame, error) {
	return fetch(ctx, s, cache.NewKey(KindFeatured), admit, func(ctx context.Context) ([]FeaturedGame, error) {
		var body struct {
			FeaturedWin []FeaturedGame `json:"featured_win"`
		}
		if err := getJSON(ctx, s.store, endpointFeatured, nil, &body); err != nil {
			return nil, err
		}
		if body.FeaturedWin == nil {
			return nil, ErrNotFound
		}
		return body.FeaturedWin, nil
	})
}

// GetGameSchema returns the achievement and stat definitions of appID.
func (s *Service) GetGameSchema(ctx context.Context, appID string) (*GameSchema, error) {
	return fetch(ctx, s, cache.NewKey(KindGameSchema, appID), true, func(ctx context.Context) (*GameSchema, error) {
		var body struct {
			Game *GameSchema `json:"game"`
		}
		if err := getJSON(ctx, s.api, endpointGameSchema, url.Values{"appid": {appID}}, &body); err != nil {
			return nil, err
		}
		g := body.Game
		if g == nil || (g.GameName == "" && len(g.AvailableGameStats.Achievements) == 0 && len(g.AvailableGameStats.Stats) == 0) {
			return nil, ErrNotFound
		}
		return g, nil
	})
}

// GetSteamLevel returns the Steam level of steamID.
func (s *Service) GetSteamLevel(ctx context.Context, steamID string) (int, error) {
	return fetch(ctx, s, cache.NewKey(KindSteamLevel, steamID), true, func(ctx context.Context) (int, error) {
		var body struct {
			Response struct {
				PlayerLevel *int `json:"player_level"`
			} `json:"response"`
		}
		if err := getJSON(ctx, s.api, endpointSteamLevel, url.Values{"steamid": {steamID}}, &body); err != nil {
			return 0, err
		}
		if body.Response.PlayerLevel == nil {
			return 0, ErrNotFound
		}
		return *body.Response.PlayerLevel, nil
	})
}

// GetBadges returns the badges and XP of steamID.
func (s *Service) GetBadges(ctx context.Context, steamID string) (*Badges, error) {
	return fetch(ctx, s, cache.NewKey(KindBadges, steamID), true, func(ctx context.Context) (*Badges, error) {
		var body struct {
			Response *Badges `json:"response"`
		}
		if err := getJSON(ctx, s.api, endpointBadges, url.Values{"steamid": {steamID}}, &body); err != nil {
			return nil, err
		}
		if body.Response == nil || body.Response.Badges == nil {
			return nil, ErrNotFound
		}
		return body.Response, nil
	})
}

// GetAppNews returns up to count recent news items for appID.
func (s *Service) GetAppNews(ctx context.Context, appID string, count int) ([]NewsItem, error) {
	if count <= 0 {
		count = DefaultNewsCount
	}
	if count > MaxNewsCount {
		count = MaxNewsCount
	}

	key := cache.NewKey(KindAppNews, appID).WithParam("count", strconv.Itoa(count))
	return fetch(ctx, s, key, true, func(ctx context.Context) ([]NewsItem, error) {
		var body struct {
			AppNews *struct {
				NewsItems []NewsItem `json:"newsitems"`
			} `json:"appnews"`
		}
		params := url.Values{
			"appid":     {appID},
			"count":     {strconv.Itoa(count)},
			"maxlength": {strconv.Itoa(newsMaxLength)},
		}
		if err := getJSON(ctx, s.api, endpointAppNews, params, &body); err != nil {
			return nil, err
		}
		if body.AppNews == nil {
			return nil, ErrNotFound
		}
		return body.AppNews.NewsItems, nil
	})
}

// GetTopGames ranks the featured games by live player count and returns the
// first limit. The call is admitted once; the per-game lookups it fans out
// share the cache but do not consume the caller's rate-limit budget.
func (s *Service) GetTopGames(ctx context.Context, limit int) ([]TopGame, error) {
	if limit <= 0 {
		limit = DefaultTopGames
	}

	key := cache.NewKey(KindTopGames, strconv.Itoa(limit))
	return fetch(ctx, s, key, true, func(ctx context.Context) ([]TopGame, error) {
		featured, err := s.featured(ctx, false)
		if err != nil {
			return nil, err
		}

		// Featured lists repeat apps across capsules
		seen := make(map[int]bool, len(featured))
		games := make([]FeaturedGame, 0, len(featured))
		for _, g := range featured {
			if !seen[g.ID] {
				seen[g.ID] = true
				games = append(games, g)
			}
		}

		fetcher := batch.New(func(ctx context.Context, g FeaturedGame) (int, error) {
			return s.playerCount(WithFetchInfo(ctx, &FetchInfo{}), strconv.Itoa(g.ID), false)
		}, s.topGames)

		results, err := fetcher.FetchAll(ctx, games)
		if err != nil {
			return nil, err
		}

		top := make([]TopGame, 0, len(results))
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			top = append(top, TopGame{AppID: r.Key.ID, Name: r.Key.Name, PlayerCount: r.Value})
		}

		sort.SliceStable(top, func(i, j int) bool {
			return top[i].PlayerCount > top[j].PlayerCount
		})
		if len(top) > limit {
			top = top[:limit]
		}
		return top, nil
	})
}
