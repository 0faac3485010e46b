package steam

// PlayerSummary is a public Steam profile.
type PlayerSummary struct {
	SteamID                  string `json:"steamid"`
	PersonaName              string `json:"personaname"`
	ProfileURL               string `json:"profileurl"`
	Avatar                   string `json:"avatar,omitempty"`
	AvatarFull               string `json:"avatarfull,omitempty"`
	PersonaState             int    `json:"personastate"`
	CommunityVisibilityState int    `json:"communityvisibilitystate"`
	RealName                 string `json:"realname,omitempty"`
	CountryCode              string `json:"loccountrycode,omitempty"`
	TimeCreated              int64  `json:"timecreated,omitempty"`
	LastLogoff               int64  `json:"lastlogoff,omitempty"`
	GameExtraInfo            string `json:"gameextrainfo,omitempty"`
	GameID                   string `json:"gameid,omitempty"`
}

// GameDetails is the store page data of an app.
type GameDetails struct {
	AppID            int            `json:"steam_appid"`
	Name             string         `json:"name"`
	Type             string         `json:"type"`
	IsFree           bool           `json:"is_free"`
	ShortDescription string         `json:"short_description"`
	HeaderImage      string         `json:"header_image,omitempty"`
	Website          string         `json:"website,omitempty"`
	Developers       []string       `json:"developers,omitempty"`
	Publishers       []string       `json:"publishers,omitempty"`
	PriceOverview    *PriceOverview `json:"price_overview,omitempty"`
	ReleaseDate      ReleaseDate    `json:"release_date"`
	Metacritic       *Metacritic    `json:"metacritic,omitempty"`
	Genres           []Genre        `json:"genres,omitempty"`
}

// PriceOverview is the current store price in minor currency units.
type PriceOverview struct {
	Currency         string `json:"currency"`
	Initial          int    `json:"initial"`
	Final            int    `json:"final"`
	DiscountPercent  int    `json:"discount_percent"`
	FinalFormatted   string `json:"final_formatted"`
	InitialFormatted string `json:"initial_formatted,omitempty"`
}

// ReleaseDate of an app.
type ReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

// Metacritic score of an app.
type Metacritic struct {
	Score int    `json:"score"`
	URL   string `json:"url,omitempty"`
}

// Genre of an app.
type Genre struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// OwnedGame is one entry of a library or recently played list.
// Playtimes are in minutes.
type OwnedGame struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name,omitempty"`
	PlaytimeForever int    `json:"playtime_forever"`
	Playtime2Weeks  int    `json:"playtime_2weeks,omitempty"`
	ImgIconURL      string `json:"img_icon_url,omitempty"`
}

// OwnedGames is a player's library.
type OwnedGames struct {
	GameCount int         `json:"game_count"`
	Games     []OwnedGame `json:"games"`
}

// RecentGames is a player's recently played list.
type RecentGames struct {
	TotalCount int         `json:"total_count"`
	Games      []OwnedGame `json:"games"`
}

// Achievement is a player's progress on one achievement.
type Achievement struct {
	APIName     string `json:"apiname"`
	Achieved    int    `json:"achieved"`
	UnlockTime  int64  `json:"unlocktime"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// PlayerAchievements is a player's achievement list for one app.
type PlayerAchievements struct {
	SteamID      string        `json:"steamID"`
	GameName     string        `json:"gameName"`
	Achievements []Achievement `json:"achievements"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
}

// Unlocked returns the number of achieved entries.
func (p *PlayerAchievements) Unlocked() int {
	n := 0
	for _, a := range p.Achievements {
		if a.Achieved == 1 {
			n++
		}
	}
	return n
}

// Friend is one entry of a friend list.
type Friend struct {
	SteamID      string `json:"steamid"`
	Relationship string `json:"relationship"`
	FriendSince  int64  `json:"friend_since"`
}

// FeaturedGame is one entry of the store's featured list. Prices are in
// minor currency units.
type FeaturedGame struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Discounted        bool   `json:"discounted"`
	DiscountPercent   int    `json:"discount_percent"`
	OriginalPrice     *int   `json:"original_price"`
	FinalPrice        int    `json:"final_price"`
	Currency          string `json:"currency"`
	LargeCapsuleImage string `json:"large_capsule_image,omitempty"`
}

// GameSchema lists the achievements and stats an app defines.
type GameSchema struct {
	GameName           string             `json:"gameName"`
	GameVersion        string             `json:"gameVersion"`
	AvailableGameStats AvailableGameStats `json:"availableGameStats"`
}

// AvailableGameStats of a game schema.
type AvailableGameStats struct {
	Achievements []SchemaAchievement `json:"achievements,omitempty"`
	Stats        []SchemaStat        `json:"stats,omitempty"`
}

// SchemaAchievement is an achievement definition.
type SchemaAchievement struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Hidden      int    `json:"hidden"`
	Icon        string `json:"icon,omitempty"`
}

// SchemaStat is a stat definition.
type SchemaStat struct {
	Name         string `json:"name"`
	DefaultValue int    `json:"defaultvalue"`
	DisplayName  string `json:"displayName"`
}

// Badge is one badge a player holds.
type Badge struct {
	BadgeID        int   `json:"badgeid"`
	AppID          int   `json:"appid,omitempty"`
	Level          int   `json:"level"`
	CompletionTime int64 `json:"completion_time"`
	XP             int   `json:"xp"`
	Scarcity       int   `json:"scarcity"`
}

// Badges is a player's badge collection and XP.
type Badges struct {
	Badges                     []Badge `json:"badges"`
	PlayerXP                   int     `json:"player_xp"`
	PlayerLevel                int     `json:"player_level"`
	PlayerXPNeededToLevelUp    int     `json:"player_xp_needed_to_level_up"`
	PlayerXPNeededCurrentLevel int     `json:"player_xp_needed_current_level"`
}

// NewsItem is one news post for an app.
type NewsItem struct {
	GID       string `json:"gid"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Author    string `json:"author,omitempty"`
	Contents  string `json:"contents"`
	FeedLabel string `json:"feedlabel"`
	Date      int64  `json:"date"`
}

// TopGame is a featured game ranked by its live player count.
type TopGame struct {
	AppID       int    `json:"appid"`
	Name        string `json:"name"`
	PlayerCount int    `json:"player_count"`
}
