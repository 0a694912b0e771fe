package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"sandwich-watch/internal/alert"
	"sandwich-watch/internal/detection"
	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/observability"
	"sandwich-watch/internal/storage/memory"
)

var (
	fixtureRouter = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	fixtureWETH   = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	fixtureUSDC   = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	fixtureDAI    = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")

	fixtureBotA = common.HexToAddress("0x000000000000000000000000000000000000b0a1")
	fixtureBotB = common.HexToAddress("0x000000000000000000000000000000000000b0b2")
)

type fixtureSwap struct {
	block     uint64
	txIndex   uint
	account   common.Address
	tokenIn   common.Address
	tokenOut  common.Address
	amountIn  uint64
	amountOut uint64
}

// fixtureSwaps holds three sandwiches (one unprofitable) and unrelated traffic.
var fixtureSwaps = []fixtureSwap{
	{100, 0, fixtureBotA, fixtureWETH, fixtureUSDC, 50, 50},
	{100, 1, common.HexToAddress("0xc1"), fixtureWETH, fixtureUSDC, 50, 40},
	{100, 2, fixtureBotA, fixtureUSDC, fixtureWETH, 50, 60},

	{101, 0, common.HexToAddress("0xc2"), fixtureDAI, fixtureUSDC, 900, 899},

	{102, 0, fixtureBotB, fixtureDAI, fixtureWETH, 1000, 3},
	{102, 3, common.HexToAddress("0xc3"), fixtureDAI, fixtureWETH, 2000, 5},
	{103, 1, fixtureBotB, fixtureWETH, fixtureDAI, 3, 1150},

	{104, 0, fixtureBotA, fixtureWETH, fixtureUSDC, 70, 70},
	{104, 1, common.HexToAddress("0xc4"), fixtureWETH, fixtureUSDC, 20, 19},
	{104, 2, fixtureBotA, fixtureUSDC, fixtureWETH, 70, 65},
}

// loadFixtureFindings runs a detection engine over fixtureSwaps and returns
// the store its findings were written to.
func loadFixtureFindings(ctx context.Context) (*memory.FindingStore, error) {
	store := memory.NewFindingStore()
	engine := detection.NewEngine(detection.EngineOptions{
		Config:  detection.DefaultConfig(),
		Sink:    alert.NewStoreSink(store),
		Metrics: observability.NewMetrics("report_fixtures", prometheus.NewRegistry()),
		Logger:  log.New(io.Discard, "", 0),
	})

	for i, s := range fixtureSwaps {
		ev := &domain.SwapEvent{
			RouterMatched: true,
			SwapObservation: domain.SwapObservation{
				Account:     s.account,
				TokenIn:     s.tokenIn,
				TokenOut:    s.tokenOut,
				AmountIn:    uint256.NewInt(s.amountIn),
				AmountOut:   uint256.NewInt(s.amountOut),
				TxRef:       fmt.Sprintf("0x%064x", i+1),
				Router:      fixtureRouter,
				BlockNumber: s.block,
				TxIndex:     s.txIndex,
			},
		}
		engine.HandleTx(ctx, []*domain.SwapEvent{ev})
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("fixtures produced no findings")
	}
	return store, nil
}
