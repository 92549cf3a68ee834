package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/sniffrx/config"
	"github.com/chzchzchz/sniffrx/dsp"
	"github.com/chzchzchz/sniffrx/sniffer"
	shttp "github.com/chzchzchz/sniffrx/sniffer/http"
	"github.com/chzchzchz/sniffrx/store"
)

func openSinks(ctx context.Context, cfg *config.Config, f sniffer.Formatter) (sniffer.Sink, error) {
	var sinks store.MultiSink
	if sinkPath != "" {
		s, err := store.OpenFileSink(sinkPath, f)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if useMQTT {
		s, err := store.NewMQTTSink(store.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		})
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if useCH {
		s, err := store.NewClickHouseSink(ctx, store.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		})
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

func stages() (st []sniffer.Stage) {
	if dcBlock {
		st = append(st, func(ctx context.Context, in <-chan []complex64) <-chan []complex64 {
			return dsp.DCBlockerCtx(ctx, 0.999, in)
		})
	}
	if mixHz != 0 {
		st = append(st, func(ctx context.Context, in <-chan []complex64) <-chan []complex64 {
			return dsp.MixDownCtx(ctx, mixHz, int(flagBand.Width), in)
		})
	}
	return st
}

// printEvents prints messages as they are logged and returns the index of
// the next unprinted message.
func printEvents(e *sniffer.Engine, sub *sniffer.Subscription, f sniffer.Formatter) (next int) {
	for ev := range sub.C() {
		switch ev.Kind {
		case sniffer.NewMessages:
			next = printMessages(e, f, ev.From)
		case sniffer.Redraw:
			if e.MessageCount() < next {
				next = 0
			}
		case sniffer.Error:
			fmt.Fprintln(os.Stderr, ev.Text)
		}
	}
	return next
}

func printMessages(e *sniffer.Engine, f sniffer.Formatter, from int) int {
	lines := e.Render(f, from, e.MessageCount())
	for i, line := range lines {
		fmt.Printf("%d\t%s\n", from+i, line)
	}
	return from + len(lines)
}

func sniff(cmd *cobra.Command, src string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f, err := sniffer.FormatterByName(viewName)
	if err != nil {
		return err
	}
	sinkWanted := sinkPath != "" || useMQTT || useCH
	if exportPath != "" && sinkWanted {
		return fmt.Errorf("--export is unavailable while messages are written to a sink")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	feed := sniffer.NewStreamFeed(sniffer.OpenSource(src, tuning()), 0, stages()...)
	e, err := sniffer.NewEngine(feed, cfg.Demod, sniffer.Options{LiveMaxSamples: cfg.LiveMaxSamples})
	if err != nil {
		return err
	}
	sink, err := openSinks(ctx, cfg, f)
	if err != nil {
		return err
	}
	if sink != nil {
		e.SetOutputSink(sink)
	}

	sub := e.Subscribe()
	printed := make(chan int, 1)
	go func() { printed <- printEvents(e, sub, f) }()

	if err := e.Start(ctx); err != nil {
		e.SetOutputSink(nil)
		sub.Close()
		return err
	}
	if cfg.RewindInterval > 0 {
		go e.RunRewinder(ctx, cfg.RewindInterval)
	}
	if cfg.HTTPAddr != "" {
		go func() {
			if err := shttp.ServeHttp(ctx, e, cfg.HTTPAddr, cfg.SinkDir); err != nil {
				log.Printf("[http] %v", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		e.Stop()
	case <-e.Done():
	}
	sub.Close()
	printMessages(e, f, <-printed)

	msgs := e.Messages(0, e.MessageCount())
	log.Printf("[sniff] %d messages", len(msgs))
	if archive != "" {
		a := &store.Archive{Date: time.Now(), Config: e.Config(), Messages: msgs}
		if err := store.SaveLog(archive, a); err != nil {
			return err
		}
	}
	if exportPath != "" {
		fout, err := os.Create(exportPath)
		if err != nil {
			return err
		}
		defer fout.Close()
		return store.ExportCSV(fout, msgs, f)
	}
	return nil
}
