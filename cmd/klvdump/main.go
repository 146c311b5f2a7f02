// Command klvdump extracts KLV telemetry records from MPEG-TS recordings
// and prints them. Each file runs as an independent pipeline; files are
// processed in parallel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/telemux/pipeline"
	"github.com/zsiec/telemux/uasdls"
)

func main() {
	profilePath := flag.String("profile", "", "YAML profile selecting universal key, stream types, and PID")
	scaled := flag.Bool("scaled", false, "print engineering units where the dictionary defines a mapping")
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: klvdump [-profile file.yaml] [-scaled] file.ts ...")
		os.Exit(2)
	}

	profile := pipeline.DefaultProfile()
	if *profilePath != "" {
		var err error
		profile, err = pipeline.LoadProfile(*profilePath)
		if err != nil {
			slog.Error("failed to load profile", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	for _, path := range flag.Args() {
		g.Go(func() error {
			return dumpFile(ctx, path, profile, *scaled)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("extraction failed", "error", err)
		os.Exit(1)
	}
}

func dumpFile(ctx context.Context, path string, profile pipeline.Profile, scaled bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	log := slog.With("file", path)
	ex := pipeline.NewExtractor(ctx, f, profile, log)

	n := 0
	for {
		res, err := ex.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if res.Record == nil {
			log.Warn("unit skipped", "reason", res.Skip, "pid", res.PID)
			continue
		}
		n++
		printRecord(path, n, res, scaled)
	}

	stats := ex.Stats()
	demux := ex.DemuxStats()
	log.Info("done",
		"records", stats.Records,
		"skips", stats.Skips,
		"packets", demux.PacketsRead,
		"framing_errors", demux.FramingErrors,
		"continuity_gaps", demux.ContinuityGaps,
	)
	return nil
}

func printRecord(path string, n int, res *pipeline.Result, scaled bool) {
	fmt.Printf("%s #%d pid=0x%X", path, n, res.PID)
	if res.PTS != nil {
		fmt.Printf(" pts=%d", res.PTS.Base)
	}
	fmt.Println()

	tags := make([]int, 0, len(res.Record.Fields))
	for tag := range res.Record.Fields {
		tags = append(tags, int(tag))
	}
	sort.Ints(tags)

	for _, t := range tags {
		tag := uasdls.Tag(t)
		v := res.Record.Fields[tag]
		if f, ok := v.Scaled(tag); scaled && ok {
			fmt.Printf("  %-24s %v (%.6f)\n", tag, v, f)
			continue
		}
		fmt.Printf("  %-24s %v\n", tag, v)
	}
	for tag, raw := range res.Record.Residual {
		fmt.Printf("  tag %-20d %x (unparsed)\n", tag, raw)
	}
	if res.Record.ChecksumMismatch {
		fmt.Println("  ! checksum mismatch")
	}
}
