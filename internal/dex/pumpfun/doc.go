// Package pumpfun implements a client for the pump.fun frontend API, the
// market data source of the bot.
//
// It provides two reads:
//   - ListCandidates: the "for you" coin list used to pick acquisition candidates.
//   - GetSnapshot: the current USD market cap of a single coin.
//
// Requests are paced with a shared rate limiter and retried with exponential
// backoff; 4xx responses are not retried and a 404 maps to domain.ErrNotFound.
//
// Usage example:
//
//	client := pumpfun.NewClient(pumpfun.ClientConfig{
//	    BaseURL:           "https://frontend-api.pump.fun",
//	    RequestsPerSecond: 10,
//	}, logger)
//
//	snap, err := client.GetSnapshot(ctx, "TOKEN_MINT_ADDRESS")
package pumpfun
