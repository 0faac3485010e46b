// Package batch provides bounded parallel fetching of many independent items.
//
// The façade uses it to fan out per-app lookups, for example fetching the live
// player count of every featured game.
//
// Example usage:
//
//	fetcher := batch.New(func(ctx context.Context, appID int) (int, error) {
//		return svc.GetPlayerCount(ctx, strconv.Itoa(appID))
//	}, batch.DefaultConfig())
//	results, err := fetcher.FetchAll(ctx, appIDs)
//
// The batch fetcher:
//   - Runs at most MaxConcurrency fetches at once (errgroup with a limit)
//   - Applies a per-item timeout
//   - Keeps results in input order
//   - Returns partial results; fails only if every item failed or ctx ended
package batch
