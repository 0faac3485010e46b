// Package commands maps chat-style commands onto the Steam façade and returns
// structured results. Formatting is left to the caller.
package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/steam-relay/pkg/cache"
	"github.com/Sternrassler/steam-relay/pkg/steam"
)

var (
	// ErrUnknownCommand is returned for a command name with no handler.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidArgument is returned when arguments are missing or malformed.
	ErrInvalidArgument = errors.New("invalid argument")
)

var (
	steamIDPattern = regexp.MustCompile(`^\d{17}$`)
	appIDPattern   = regexp.MustCompile(`^\d+$`)
)

// ValidSteamID reports whether id is a 17-digit SteamID64.
func ValidSteamID(id string) bool {
	return steamIDPattern.MatchString(id)
}

// ValidAppID reports whether id is a numeric app ID.
func ValidAppID(id string) bool {
	return appIDPattern.MatchString(id)
}

// UsageError describes a malformed command invocation.
type UsageError struct {
	Command string
	Usage   string
	Reason  string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s (usage: %s)", e.Command, e.Reason, e.Usage)
}

// Is makes errors.Is(err, ErrInvalidArgument) match.
func (e *UsageError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Service is the subset of *steam.Service the commands use.
type Service interface {
	GetProfile(ctx context.Context, steamID string) (*steam.PlayerSummary, error)
	GetGameDetails(ctx context.Context, appID string) (*steam.GameDetails, error)
	GetPlayerCount(ctx context.Context, appID string) (int, error)
	GetOwnedGames(ctx context.Context, steamID string) (*steam.OwnedGames, error)
	GetRecentGames(ctx context.Context, steamID string) (*steam.RecentGames, error)
	GetAchievements(ctx context.Context, steamID, appID string) (*steam.PlayerAchievements, error)
	GetFriends(ctx context.Context, steamID string) ([]steam.Friend, error)
	GetFeaturedGames(ctx context.Context) ([]steam.FeaturedGame, error)
	GetGameSchema(ctx context.Context, appID string) (*steam.GameSchema, error)
	GetSteamLevel(ctx context.Context, steamID string) (int, error)
	GetBadges(ctx context.Context, steamID string) (*steam.Badges, error)
	GetAppNews(ctx context.Context, appID string, count int) ([]steam.NewsItem, error)
	GetTopGames(ctx context.Context, limit int) ([]steam.TopGame, error)
	RateLimitRemaining(ctx context.Context, callerID string) (int, error)
	RateLimitResetIn(ctx context.Context, callerID string) (time.Duration, error)
	CacheInfo() cache.Info
}

// Request is a command invocation.
type Request struct {
	Command string   `json:"command" validate:"required,max=32"`
	Args    []string `json:"args" validate:"max=4,dive,max=64"`
}

// Result is the structured outcome of a command.
type Result struct {
	Command string `json:"command"`
	// Cached is true when every lookup the command made was served from the cache
	Cached bool `json:"cached"`
	Data   any  `json:"data"`
}

// PlayerCount is the result of the players command.
type PlayerCount struct {
	AppID       string `json:"appid"`
	PlayerCount int    `json:"player_count"`
}

// Level is the result of the level command.
type Level struct {
	SteamID string `json:"steamid"`
	Level   int    `json:"level"`
}

// Limits is the result of the limits command.
type Limits struct {
	CallerID  string        `json:"caller_id"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"reset_in"`
}

// LibrarySummary summarizes one player's library in a comparison.
type LibrarySummary struct {
	SteamID       string `json:"steamid"`
	GameCount     int    `json:"game_count"`
	TotalPlaytime int    `json:"total_playtime"` // minutes
}

// Comparison is the result of the compare command.
type Comparison struct {
	Players     [2]LibrarySummary `json:"players"`
	CommonGames int               `json:"common_games"`
}

// RandomGame is the result of the randomgame command. Details is nil when
// the store has no page for the picked game.
type RandomGame struct {
	AppID   int                `json:"appid"`
	Name    string             `json:"name"`
	Details *steam.GameDetails `json:"details,omitempty"`
}

// Info describes a registered command.
type Info struct {
	Name    string `json:"name"`
	Usage   string `json:"usage"`
	Summary string `json:"summary"`
}

type handlerFunc func(ctx context.Context, callerID string, args []string) (any, error)

type command struct {
	Info
	minArgs int
	maxArgs int
	run     handlerFunc
}

// Dispatcher routes commands to the Steam façade.
type Dispatcher struct {
	svc      Service
	commands map[string]*command
	aliases  map[string]string
	validate *validator.Validate
	intn     func(n int) int
	logger   zerolog.Logger
}

// New creates a Dispatcher over svc.
func New(svc Service) *Dispatcher {
	d := &Dispatcher{
		svc:      svc,
		commands: make(map[string]*command),
		aliases:  make(map[string]string),
		validate: validator.New(),
		intn:     rand.IntN,
		logger:   log.With().Str("component", "commands").Logger(),
	}

	d.register("profile", "profile <steamid>", "Player profile", 1, 1, d.profile)
	d.register("game", "game <appid>", "Store details of a game", 1, 1, d.game)
	d.register("players", "players <appid>", "Current player count", 1, 1, d.players, "playercount")
	d.register("games", "games <steamid>", "Owned games", 1, 1, d.games, "library")
	d.register("recent", "recent <steamid>", "Games played in the last two weeks", 1, 1, d.recent)
	d.register("achievements", "achievements <steamid> <appid>", "Achievements in a game", 2, 2, d.achievements)
	d.register("friends", "friends <steamid>", "Friend list", 1, 1, d.friends)
	d.register("featured", "featured", "Featured store games", 0, 0, d.featured)
	d.register("randomgame", "randomgame", "A random featured game", 0, 0, d.randomGame, "random")
	d.register("top", "top [limit]", "Featured games ranked by player count", 0, 1, d.top, "topgames")
	d.register("level", "level <steamid>", "Steam level", 1, 1, d.level)
	d.register("badges", "badges <steamid>", "Badges and XP", 1, 1, d.badges)
	d.register("news", "news <appid> [count]", "Latest news of a game", 1, 2, d.news)
	d.register("schema", "schema <appid>", "Achievement and stat definitions", 1, 1, d.schema)
	d.register("compare", "compare <steamid> <steamid>", "Compare two libraries", 2, 2, d.compare)
	d.register("limits", "limits", "Your remaining requests", 0, 0, d.limits)
	d.register("cache", "cache", "Cache statistics", 0, 0, d.cacheInfo)

	return d
}

func (d *Dispatcher) register(name, usage, summary string, minArgs, maxArgs int, run handlerFunc, aliases ...string) {
	d.commands[name] = &command{
		Info:    Info{Name: name, Usage: usage, Summary: summary},
		minArgs: minArgs,
		maxArgs: maxArgs,
		run:     run,
	}
	for _, a := range aliases {
		d.aliases[a] = name
	}
}

// SetRandom sets the source used to pick random games (for testing).
func (d *Dispatcher) SetRandom(intn func(n int) int) {
	d.intn = intn
}

// Commands lists the registered commands sorted by name.
func (d *Dispatcher) Commands() []Info {
	out := make([]Info, 0, len(d.commands))
	for _, c := range d.commands {
		out = append(out, c.Info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs req on behalf of callerID.
func (d *Dispatcher) Execute(ctx context.Context, callerID string, req Request) (*Result, error) {
	if err := d.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(req.Command), "!"))
	if canonical, ok := d.aliases[name]; ok {
		name = canonical
	}

	cmd, ok := d.commands[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}

	if len(req.Args) < cmd.minArgs || len(req.Args) > cmd.maxArgs {
		return nil, &UsageError{Command: name, Usage: cmd.Usage, Reason: "wrong number of arguments"}
	}

	if callerID == "" {
		callerID = steam.AnonymousCaller
	}

	tracker := &cacheTracker{}
	ctx = steam.WithCaller(ctx, callerID)
	ctx = withTracker(ctx, tracker)

	data, err := cmd.run(ctx, callerID, req.Args)
	if err != nil {
		d.logger.Debug().Err(err).Str("command", name).Str("caller", callerID).Msg("Command failed")
		return nil, err
	}

	d.logger.Debug().Str("command", name).Str("caller", callerID).Bool("cache_hit", tracker.allCached()).Msg("Command complete")
	return &Result{Command: name, Cached: tracker.allCached(), Data: data}, nil
}

func (d *Dispatcher) profile(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("profile", "profile <steamid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.PlayerSummary, error) {
		return d.svc.GetProfile(ctx, args[0])
	})
}

func (d *Dispatcher) game(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireAppID("game", "game <appid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.GameDetails, error) {
		return d.svc.GetGameDetails(ctx, args[0])
	})
}

func (d *Dispatcher) players(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireAppID("players", "players <appid>", args[0]); err != nil {
		return nil, err
	}
	count, err := track(ctx, func(ctx context.Context) (int, error) {
		return d.svc.GetPlayerCount(ctx, args[0])
	})
	if err != nil {
		return nil, err
	}
	return PlayerCount{AppID: args[0], PlayerCount: count}, nil
}

func (d *Dispatcher) games(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("games", "games <steamid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.OwnedGames, error) {
		return d.svc.GetOwnedGames(ctx, args[0])
	})
}

func (d *Dispatcher) recent(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("recent", "recent <steamid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.RecentGames, error) {
		return d.svc.GetRecentGames(ctx, args[0])
	})
}

func (d *Dispatcher) achievements(ctx context.Context, _ string, args []string) (any, error) {
	usage := "achievements <steamid> <appid>"
	if err := requireSteamID("achievements", usage, args[0]); err != nil {
		return nil, err
	}
	if err := requireAppID("achievements", usage, args[1]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.PlayerAchievements, error) {
		return d.svc.GetAchievements(ctx, args[0], args[1])
	})
}

func (d *Dispatcher) friends(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("friends", "friends <steamid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) ([]steam.Friend, error) {
		return d.svc.GetFriends(ctx, args[0])
	})
}

func (d *Dispatcher) featured(ctx context.Context, _ string, _ []string) (any, error) {
	return track(ctx, d.svc.GetFeaturedGames)
}

func (d *Dispatcher) top(ctx context.Context, _ string, args []string) (any, error) {
	limit := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > 25 {
			return nil, &UsageError{Command: "top", Usage: "top [limit]", Reason: "limit must be between 1 and 25"}
		}
		limit = n
	}
	return track(ctx, func(ctx context.Context) ([]steam.TopGame, error) {
		return d.svc.GetTopGames(ctx, limit)
	})
}

func (d *Dispatcher) randomGame(ctx context.Context, _ string, _ []string) (any, error) {
	games, err := track(ctx, d.svc.GetFeaturedGames)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("featured: %w", steam.ErrNotFound)
	}

	pick := games[d.intn(len(games))]
	res := RandomGame{AppID: pick.ID, Name: pick.Name}

	details, err := track(ctx, func(ctx context.Context) (*steam.GameDetails, error) {
		return d.svc.GetGameDetails(ctx, strconv.Itoa(pick.ID))
	})
	switch {
	case errors.Is(err, steam.ErrNotFound):
		d.logger.Debug().Int("appid", pick.ID).Msg("No store details for random game")
	case err != nil:
		return nil, err
	default:
		res.Details = details
	}
	return res, nil
}

func (d *Dispatcher) level(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("level", "level <steamid>", args[0]); err != nil {
		return nil, err
	}
	lvl, err := track(ctx, func(ctx context.Context) (int, error) {
		return d.svc.GetSteamLevel(ctx, args[0])
	})
	if err != nil {
		return nil, err
	}
	return Level{SteamID: args[0], Level: lvl}, nil
}

func (d *Dispatcher) badges(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireSteamID("badges", "badges <steamid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.Badges, error) {
		return d.svc.GetBadges(ctx, args[0])
	})
}

func (d *Dispatcher) news(ctx context.Context, _ string, args []string) (any, error) {
	usage := "news <appid> [count]"
	if err := requireAppID("news", usage, args[0]); err != nil {
		return nil, err
	}
	count := 0
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return nil, &UsageError{Command: "news", Usage: usage, Reason: "count must be a positive number"}
		}
		count = n
	}
	return track(ctx, func(ctx context.Context) ([]steam.NewsItem, error) {
		return d.svc.GetAppNews(ctx, args[0], count)
	})
}

func (d *Dispatcher) schema(ctx context.Context, _ string, args []string) (any, error) {
	if err := requireAppID("schema", "schema <appid>", args[0]); err != nil {
		return nil, err
	}
	return track(ctx, func(ctx context.Context) (*steam.GameSchema, error) {
		return d.svc.GetGameSchema(ctx, args[0])
	})
}

func (d *Dispatcher) compare(ctx context.Context, _ string, args []string) (any, error) {
	usage := "compare <steamid> <steamid>"
	for _, id := range args {
		if err := requireSteamID("compare", usage, id); err != nil {
			return nil, err
		}
	}

	var libs [2]*steam.OwnedGames
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range args {
		g.Go(func() error {
			lib, err := track(gctx, func(ctx context.Context) (*steam.OwnedGames, error) {
				return d.svc.GetOwnedGames(ctx, id)
			})
			libs[i] = lib
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var cmp Comparison
	owned := make(map[int]bool, len(libs[0].Games))
	for i, lib := range libs {
		cmp.Players[i] = LibrarySummary{SteamID: args[i], GameCount: lib.GameCount}
		for _, game := range lib.Games {
			cmp.Players[i].TotalPlaytime += game.PlaytimeForever
			if i == 0 {
				owned[game.AppID] = true
			} else if owned[game.AppID] {
				cmp.CommonGames++
			}
		}
	}
	return cmp, nil
}

func (d *Dispatcher) limits(ctx context.Context, callerID string, _ []string) (any, error) {
	remaining, err := d.svc.RateLimitRemaining(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("rate limit remaining: %w", err)
	}
	resetIn, err := d.svc.RateLimitResetIn(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("rate limit reset: %w", err)
	}
	return Limits{CallerID: callerID, Remaining: remaining, ResetIn: resetIn}, nil
}

func (d *Dispatcher) cacheInfo(_ context.Context, _ string, _ []string) (any, error) {
	return d.svc.CacheInfo(), nil
}

func requireSteamID(cmd, usage, id string) error {
	if !ValidSteamID(id) {
		return &UsageError{Command: cmd, Usage: usage, Reason: fmt.Sprintf("%q is not a 17-digit Steam ID", id)}
	}
	return nil
}

func requireAppID(cmd, usage, id string) error {
	if !ValidAppID(id) {
		return &UsageError{Command: cmd, Usage: usage, Reason: fmt.Sprintf("%q is not a numeric app ID", id)}
	}
	return nil
}
