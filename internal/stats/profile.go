package stats

import (
	"context"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/pkg/profilestore"
)

// Profile forwards results to the profile service's game results endpoint.
type Profile struct {
	client *profilestore.Client
}

// NewProfile creates a profile service sink.
func NewProfile(client *profilestore.Client) *Profile {
	return &Profile{client: client}
}

// Record implements Sink.
func (p *Profile) Record(ctx context.Context, gameID domain.GameID, res domain.GameResult) error {
	_, err := p.client.RecordGameResult(ctx, &profilestore.GameResultRequest{
		PlayerID: res.PlayerID,
		GameID:   string(gameID),
		Win:      res.Win,
		Bet:      res.Bet,
		Custom:   res.Custom,
	})
	return err
}
