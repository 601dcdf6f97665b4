// Command bqlog-bench drives a LogBuffer with a configurable number of
// producer goroutines and a single consumer goroutine, printing
// throughput and drop statistics until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ehrlich-b/bqlog"
	"github.com/ehrlich-b/bqlog/internal/drain"
	"github.com/ehrlich-b/bqlog/internal/logging"
	"github.com/ehrlich-b/bqlog/internal/wire"
)

func main() {
	var (
		sizeStr        = flag.String("size", "16M", "Main buffer size (e.g. 16M, 256M)")
		workers        = flag.Int("producers", 4, "Number of concurrent producer goroutines")
		duration       = flag.Duration("duration", 5*time.Second, "How long to run before reporting and exiting")
		enableRecovery = flag.Bool("recover", false, "Enable mmap-backed crash recovery under ./bqlog-bench-data")
		verbose        = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	bufSize, err := parseSize(*sizeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid size %q: %v\n", *sizeStr, err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	sink := drain.NewMemorySink()
	defer sink.Close()

	params := bqlog.DefaultBufferParams()
	params.LogName = "bqlog-bench"
	params.Categories = []string{"bench"}
	params.DefaultBufferSize = uint32(bufSize)
	params.NeedRecovery = *enableRecovery
	if *enableRecovery {
		params.BaseDir = "./bqlog-bench-data"
	}

	buf, err := bqlog.CreateLogBuffer(params, &bqlog.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create log buffer", "error", err)
		os.Exit(1)
	}
	defer buf.Close()

	if buf.Recovered() {
		logger.Info("resumed from recovery file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var produced, consumed atomic.Uint64

	for i := 0; i < *workers; i++ {
		go runProducer(ctx, buf, uint64(i), &produced)
	}
	go runConsumer(ctx, buf, sink, &consumed)
	go runMaintenance(ctx, buf)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ctx.Done():
	case <-sigCh:
		cancel()
	}

	// Give the consumer a moment to drain what's already committed.
	time.Sleep(50 * time.Millisecond)
	if err := buf.ForceFlush(time.Second); err != nil {
		logger.Error("force flush failed", "error", err)
	}

	snap := buf.Metrics()
	fmt.Printf("producers=%d duration=%s produced=%d consumed=%d\n", *workers, *duration, produced.Load(), consumed.Load())
	fmt.Printf("alloc_ok=%d committed_entries=%d committed_bytes=%d dropped=%d\n",
		snap.AllocOK, snap.CommittedEntries, snap.CommittedBytes, snap.DroppedTotal)
	fmt.Printf("alloc_iops=%.0f avg_read_lag=%.2f max_read_lag=%d\n", snap.AllocIOPS, snap.AvgReadLag, snap.MaxReadLag)
	fmt.Printf("sink_entries=%d sink_flushes=%d\n", sink.Len(), sink.Flushes())

	if out, err := buf.TakeSnapshot(time.Local); err == nil {
		fmt.Printf("\n--- tail snapshot ---\n%s", out)
	}
}

func runProducer(ctx context.Context, buf *bqlog.LogBuffer, id uint64, produced *atomic.Uint64) {
	pctx := bqlog.WithProducerID(ctx, id)
	seq := uint64(0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		format := "bench entry"
		argBuf := make([]byte, 64)
		enc := wire.NewEncoder(argBuf)
		enc.WriteU64(seq)
		args := enc.Bytes()

		headArea := wire.EntryHeaderSize(uint32(len(format)))
		size := uint32(headArea + len(args))

		chunk, result, err := buf.AllocWriteChunk(pctx, size, uint64(time.Now().UnixMilli()))
		if err != nil || result != bqlog.ResultOK {
			continue
		}

		head, herr := buf.NewHead(pctx, "bench", 0, uint64(time.Now().UnixMilli()), uint32(len(format)), wire.FormatUTF8)
		if herr != nil {
			continue
		}
		wire.EncodeHead(chunk.Payload, head)
		copy(chunk.Payload[wire.HeadSize:], format)
		copy(chunk.Payload[headArea:], args)

		if err := buf.CommitWriteChunk(chunk); err == nil {
			produced.Add(1)
			seq++
		}
	}
}

func runConsumer(ctx context.Context, buf *bqlog.LogBuffer, sink *drain.MemorySink, consumed *atomic.Uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, err := buf.ReadChunk()
		if err != nil || chunk.PayloadLen == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		_ = sink.OnEntry("bench", uint64(time.Now().UnixMilli()), 0, chunk.Payload)
		_ = buf.ReturnReadChunk(chunk)
		consumed.Add(1)
	}
}

func runMaintenance(ctx context.Context, buf *bqlog.LogBuffer) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buf.GarbageCollect()
		}
	}
}

// parseSize parses a size string like "64M", "1G", "512K".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "G")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}
