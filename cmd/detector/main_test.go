package main

import (
	"bytes"
	"context"
	"log"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandwich-watch/internal/alert"
	"sandwich-watch/internal/domain"
	"sandwich-watch/internal/storage/memory"
)

func testStores() *stores {
	return &stores{
		findings:     memory.NewFindingStore(),
		observations: memory.NewObservationStore(),
		checkpoints:  memory.NewCheckpointStore(),
	}
}

func testFinding() *domain.Finding {
	return &domain.Finding{
		FindingID:          "f1",
		FrontTxRef:         "0xfront",
		VictimTxRef:        "0xvictim",
		BackTxRef:          "0xback",
		VictimAccount:      common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		FrontrunnerAccount: common.HexToAddress("0x00000000000000000000000000000000000000f1"),
		FrontrunnerProfit:  "10",
		ProfitToken:        common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	}
}

func TestBuildSink_ReplayWritesStoresOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	st := testStores()
	cfg := config{
		mode:         "replay",
		kafkaBrokers: []string{"localhost:9092"},
		kafkaTopic:   "sandwich-findings",
	}

	sink, closeFn := buildSink(logger, cfg, st)
	defer closeFn()

	multi, ok := sink.(alert.MultiSink)
	require.True(t, ok)
	require.Len(t, multi, 1)
	assert.IsType(t, &alert.StoreSink{}, multi[0])

	ctx := context.Background()
	require.NoError(t, sink.Emit(ctx, testFinding()))

	stored, err := st.findings.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "0xvictim", stored.VictimTxRef)
	assert.Empty(t, buf.String(), "replay must not re-announce findings")
}

func TestBuildSink_LiveFansOut(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	cfg := config{
		mode:         "live",
		kafkaBrokers: []string{"localhost:9092"},
		kafkaTopic:   "sandwich-findings",
	}

	sink, closeFn := buildSink(logger, cfg, testStores())
	defer closeFn()

	multi, ok := sink.(alert.MultiSink)
	require.True(t, ok)
	require.Len(t, multi, 3)
	assert.IsType(t, &alert.LogSink{}, multi[0])
	assert.IsType(t, &alert.StoreSink{}, multi[1])
	assert.IsType(t, &alert.KafkaSink{}, multi[2])
}

func TestBuildSink_BackfillWithoutKafka(t *testing.T) {
	sink, closeFn := buildSink(log.New(&bytes.Buffer{}, "", 0), config{mode: "backfill"}, testStores())
	defer closeFn()

	multi, ok := sink.(alert.MultiSink)
	require.True(t, ok)
	require.Len(t, multi, 2)
	assert.IsType(t, &alert.LogSink{}, multi[0])
}
