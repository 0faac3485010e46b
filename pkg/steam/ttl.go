package steam

import "time"

// Resource kinds. They prefix cache keys and select a TTL.
const (
	KindProfile      = "profile"
	KindGameDetails  = "game_details"
	KindPlayerCount  = "player_count"
	KindOwnedGames   = "owned_games"
	KindRecentGames  = "recent_games"
	KindAchievements = "achievements"
	KindFriends      = "friends"
	KindFeatured     = "featured"
	KindGameSchema   = "game_schema"
	KindSteamLevel   = "steam_level"
	KindBadges       = "badges"
	KindAppNews      = "app_news"
	KindTopGames     = "top_games"
)

// TTLPolicy sets how long each resource kind stays cached.
type TTLPolicy struct {
	// Default applies to player-scoped resources: profile, library, recent
	// games, achievements, friends, level and badges.
	Default     time.Duration
	PlayerCount time.Duration
	Game        time.Duration // store details and game schema
	Featured    time.Duration
	News        time.Duration
}

// DefaultTTLPolicy returns the standard cache lifetimes.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default:     5 * time.Minute,
		PlayerCount: 2 * time.Minute,
		Game:        time.Hour,
		Featured:    10 * time.Minute,
		News:        10 * time.Minute,
	}
}

// For returns the TTL of a resource kind.
func (p TTLPolicy) For(kind string) time.Duration {
	switch kind {
	case KindPlayerCount, KindTopGames:
		return p.PlayerCount
	case KindGameDetails, KindGameSchema:
		return p.Game
	case KindFeatured:
		return p.Featured
	case KindAppNews:
		return p.News
	default:
		return p.Default
	}
}
