package repository

import (
	"context"
	"fmt"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
)

// SeedTickers is the default ticker universe.
var SeedTickers = []models.Ticker{
	{Symbol: "BTCUSDT", Description: "Bitcoin / Tether", Category: "major", IsEnabled: true},
	{Symbol: "ETHUSDT", Description: "Ethereum / Tether", Category: "major", IsEnabled: true},
	{Symbol: "BNBUSDT", Description: "BNB / Tether", Category: "major", IsEnabled: true},
	{Symbol: "XRPUSDT", Description: "XRP / Tether", Category: "major", IsEnabled: true},
	{Symbol: "SOLUSDT", Description: "Solana / Tether", Category: "layer1", IsEnabled: true},
	{Symbol: "ADAUSDT", Description: "Cardano / Tether", Category: "layer1", IsEnabled: true},
	{Symbol: "DOTUSDT", Description: "Polkadot / Tether", Category: "layer1", IsEnabled: true},
	{Symbol: "MATICUSDT", Description: "Polygon / Tether", Category: "layer1", IsEnabled: true},
	{Symbol: "AVAXUSDT", Description: "Avalanche / Tether", Category: "layer1", IsEnabled: true},
	{Symbol: "ATOMUSDT", Description: "Cosmos / Tether", Category: "layer1", IsEnabled: true},
}

// Seed upserts the default tickers.
func Seed(ctx context.Context, repo domrepo.Repository) error {
	for _, t := range SeedTickers {
		if err := repo.UpsertTicker(ctx, t); err != nil {
			return fmt.Errorf("seed %s: %w", t.Symbol, err)
		}
	}
	return nil
}
