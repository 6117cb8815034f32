// Package profilestore is a client for the hosted player-profile service
// that owns coin balances and per-game statistics.
//
// # Authentication
//
// Every request is a JSON POST signed with:
//   - API Key: sent in the x-api-key header
//   - HMAC Signature: hex HMAC-SHA256 of the request body, sent in x-api-hmac
//
// # Basic Usage
//
//	client := profilestore.NewClient(&profilestore.ClientConfig{
//	    BaseURL:   "https://profiles.example.net",
//	    APIKey:    "your-api-key",
//	    APISecret: "your-api-secret",
//	})
//
//	// Take a stake
//	res, err := client.RemoveCoins(ctx, &profilestore.CoinsRequest{
//	    PlayerID:  playerID,
//	    Amount:    100,
//	    Reference: roundID,
//	})
//
// # Error Handling
//
// Service errors are returned as *APIError with a Code field:
//
//	_, err := client.RemoveCoins(ctx, req)
//	var apiErr *profilestore.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == profilestore.ErrInsufficientBalance {
//	    // not enough coins
//	}
//
// Any other error means the service could not be reached or answered
// with something that is not a protocol response.
package profilestore
