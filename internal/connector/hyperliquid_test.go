package connector

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/daniel-lucas-silva/xcoin/internal/domain"
)

func TestHyperliquid_FeeAccessIsSynchronized(t *testing.T) {
	h := &Hyperliquid{logger: zap.NewNop()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.InitFees(context.Background()))
			h.Fees()
		}()
	}
	wg.Wait()

	maker, taker := h.Fees()
	assert.True(t, maker.Equal(decimal.RequireFromString("0.015")), "maker = %s", maker)
	assert.True(t, taker.Equal(decimal.RequireFromString("0.045")), "taker = %s", taker)
}

func TestApplyPerpPosition(t *testing.T) {
	t.Run("long position carries unrealized pnl", func(t *testing.T) {
		bal := &domain.Balance{}
		require.NoError(t, applyPerpPosition(bal, hyperliquid.Position{
			Coin:          "BTC",
			Szi:           "0.5",
			UnrealizedPnl: "123.45",
		}))
		assert.Equal(t, domain.PositionSideLong, bal.PositionSide)
		assert.True(t, bal.Asset.Equal(decimal.RequireFromString("0.5")))
		assert.True(t, bal.UnrealizedProfit.Equal(decimal.RequireFromString("123.45")))
	})

	t.Run("short position reports positive size", func(t *testing.T) {
		bal := &domain.Balance{}
		require.NoError(t, applyPerpPosition(bal, hyperliquid.Position{
			Coin:          "BTC",
			Szi:           "-2",
			UnrealizedPnl: "-10",
		}))
		assert.Equal(t, domain.PositionSideShort, bal.PositionSide)
		assert.True(t, bal.Asset.Equal(decimal.NewFromInt(2)))
		assert.True(t, bal.UnrealizedProfit.Equal(decimal.NewFromInt(-10)))
	})

	t.Run("bad size is an error", func(t *testing.T) {
		assert.Error(t, applyPerpPosition(&domain.Balance{}, hyperliquid.Position{Szi: "x"}))
	})
}

func TestHyperliquid_InitFeesKeepsOverrides(t *testing.T) {
	h := &Hyperliquid{
		logger: zap.NewNop(),
		maker:  decimal.RequireFromString("0.01"),
		taker:  decimal.RequireFromString("0.03"),
	}
	require.NoError(t, h.InitFees(context.Background()))

	maker, taker := h.Fees()
	assert.True(t, maker.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, taker.Equal(decimal.RequireFromString("0.03")))
}
