package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chzchzchz/sniffrx/dsp"
	"github.com/chzchzchz/sniffrx/radio"
	"github.com/chzchzchz/sniffrx/sniffer"
	"github.com/chzchzchz/sniffrx/store"
)

func synth(cmd *cobra.Command, outf string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gap := synthGap
	if gap <= 0 {
		gap = cfg.Demod.Tolerance + 2
	}
	iqw, closer, err := sniffer.OpenIQW(outf, int(flagBand.Width))
	if err != nil {
		return err
	}
	defer closer()

	silence := dsp.Silence(gap * cfg.Demod.BitLength)
	for _, msg := range strings.Split(synthBits, ",") {
		bits := dsp.ParseBits(msg)
		if len(bits) == 0 {
			continue
		}
		samps := append(dsp.Modulate(cfg.Demod, bits, synthAmp), silence...)
		if synthNoise > 0 {
			for i := range samps {
				samps[i] += complex64(complex(rand.NormFloat64()*synthNoise, rand.NormFloat64()*synthNoise))
			}
		}
		if err := iqw.Write64(samps); err != nil {
			return err
		}
	}
	return nil
}

func noiseFloor(src string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	iqr, closer, err := sniffer.OpenSource(src, tuning())(ctx)
	if err != nil {
		return err
	}
	defer closer()
	sp := radio.NewSpectralPower(noiseBins, noiseFFTs)
	if err := sp.Measure(iqr.BatchStream64(ctx, noiseBins, 0)); err != nil {
		return fmt.Errorf("measuring noise: %v", err)
	}
	mag := sp.NoiseMagnitude()
	fmt.Printf("noise floor: %.2f dB (spread %.2f dB, stddev %.2f dB)\n", sp.NoiseFloor(), sp.Spread(), sp.Stddev())
	fmt.Printf("noise magnitude: %.4f\n", mag)
	fmt.Printf("suggested --noise %.4f\n", 2*mag)
	return nil
}

func show(cmd *cobra.Command, fpath string) error {
	f, err := sniffer.FormatterByName(viewName)
	if err != nil {
		return err
	}
	var msgs []sniffer.Message
	if strings.HasSuffix(fpath, ".csv") {
		fin, err := os.Open(fpath)
		if err != nil {
			return err
		}
		defer fin.Close()
		if msgs, err = store.ImportCSV(fin); err != nil {
			return err
		}
	} else {
		a, err := store.LoadLog(fpath)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "# %s, %v\n", a.Date.Format("2006-01-02 15:04:05"), a.Config)
		msgs = a.Messages
	}
	if useCH {
		return upload(cmd, msgs)
	}
	if showCSV {
		return store.ExportCSV(os.Stdout, msgs, f)
	}
	for i, m := range msgs {
		fmt.Printf("%d\t%d\t%d\t%s\n", i, m.Start, m.Pause, f.Format(m))
	}
	return nil
}

func upload(cmd *cobra.Command, msgs []sniffer.Message) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := store.NewClickHouseSink(ctx, store.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.WriteLog(ctx, msgs); err != nil {
		return err
	}
	log.Printf("[show] uploaded %d messages", len(msgs))
	return nil
}
