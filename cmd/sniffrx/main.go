package main

import (
	"github.com/spf13/cobra"

	"github.com/chzchzchz/sniffrx/config"
	"github.com/chzchzchz/sniffrx/dsp"
	"github.com/chzchzchz/sniffrx/radio"
)

var rootCmd = &cobra.Command{
	Use:   "sniffrx",
	Short: "Demodulate and frame digital bursts from I/Q streams.",
}

var (
	flagBand    radio.HzBand
	gainTenths  uint32
	ppm         uint32
	rtlAGC      bool
	profilePath string
	profileName string
	viewName    string

	bitLength  int
	center     float64
	noise      float64
	tolerance  int
	modulation string

	sinkPath   string
	useMQTT    bool
	useCH      bool
	httpAddr   string
	archive    string
	exportPath string

	synthBits  string
	synthGap   int
	synthAmp   float64
	synthNoise float64

	noiseBins int
	noiseFFTs int

	showCSV bool

	mixHz   float64
	dcBlock bool
)

func addFlagBand(cmd *cobra.Command) {
	cmd.Flags().Uint64VarP(&flagBand.Center, "center-hz", "c", 0, "Center frequency in Hz")
	cmd.Flags().Uint64VarP(&flagBand.Width, "sample-rate", "s", 1024000, "Sample rate in Hz")
	cmd.Flags().Uint32VarP(&gainTenths, "gain", "g", 0, "Tuner gain in tenths of dB; 0 for auto")
	cmd.Flags().Uint32VarP(&ppm, "ppm", "p", 0, "Frequency correction in ppm")
	cmd.Flags().BoolVarP(&rtlAGC, "agc", "", false, "Enable RTL AGC")
}

func addFlagDemod(cmd *cobra.Command) {
	def := dsp.DefaultConfig()
	cmd.Flags().IntVarP(&bitLength, "bit-length", "b", def.BitLength, "Samples per bit")
	cmd.Flags().Float64VarP(&center, "center", "", def.Center, "Decision threshold between 0 and 1")
	cmd.Flags().Float64VarP(&noise, "noise", "n", def.Noise, "Signal magnitude threshold")
	cmd.Flags().IntVarP(&tolerance, "tolerance", "t", def.Tolerance, "Silent bits tolerated within a message")
	cmd.Flags().StringVarP(&modulation, "modulation", "m", def.Modulation.String(), "One of ook, ask, fsk, psk")
	cmd.Flags().StringVarP(&profilePath, "profile", "", "", "ini file with demodulation profiles")
	cmd.Flags().StringVarP(&profileName, "profile-name", "", "", "Profile section; default section if empty")
}

func tuning() radio.Tuning {
	return radio.Tuning{HzBand: flagBand, Gain: gainTenths, PPM: ppm, AGC: rtlAGC}
}

// loadConfig layers environment, profile, then explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()
	if profilePath != "" {
		if err := cfg.LoadProfile(profilePath, profileName); err != nil {
			return nil, err
		}
	}
	fl := cmd.Flags()
	if fl.Changed("bit-length") {
		cfg.Demod.BitLength = bitLength
	}
	if fl.Changed("center") {
		cfg.Demod.Center = center
	}
	if fl.Changed("noise") {
		cfg.Demod.Noise = noise
	}
	if fl.Changed("tolerance") {
		cfg.Demod.Tolerance = tolerance
	}
	if fl.Changed("modulation") {
		m, err := dsp.ParseModulation(modulation)
		if err != nil {
			return nil, err
		}
		cfg.Demod.Modulation = m
	}
	if fl.Changed("http") {
		cfg.HTTPAddr = httpAddr
	}
	return cfg, cfg.Demod.Validate()
}

func init() {
	sniffCmd := &cobra.Command{
		Use:   "sniff [flags] source",
		Short: "Sniff messages from a file, stdin, rtltcp://host:port or rtl://serial",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return sniff(cmd, args[0]) },
	}
	addFlagBand(sniffCmd)
	addFlagDemod(sniffCmd)
	sniffCmd.Flags().StringVarP(&viewName, "view", "v", "bits", "Message view: bits, hex or ascii")
	sniffCmd.Flags().Float64VarP(&mixHz, "mix-hz", "", 0, "Shift the stream down by this many Hz before demodulating")
	sniffCmd.Flags().BoolVarP(&dcBlock, "dc-block", "", false, "Remove the DC spike before demodulating")
	sniffCmd.Flags().StringVarP(&sinkPath, "sink", "o", "", "Append messages to this file as they are sealed")
	sniffCmd.Flags().BoolVarP(&useMQTT, "mqtt", "", false, "Publish messages to MQTT_BROKER")
	sniffCmd.Flags().BoolVarP(&useCH, "clickhouse", "", false, "Insert messages into CLICKHOUSE_ADDR")
	sniffCmd.Flags().StringVarP(&httpAddr, "http", "", "", "Serve the API on this address")
	sniffCmd.Flags().StringVarP(&archive, "archive", "a", "", "Save the message log here on exit")
	sniffCmd.Flags().StringVarP(&exportPath, "export", "e", "", "Export the message log as CSV on exit")
	rootCmd.AddCommand(sniffCmd)

	synthCmd := &cobra.Command{
		Use:   "synth [flags] output.iq8",
		Short: "Write a synthetic burst recording",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return synth(cmd, args[0]) },
	}
	addFlagDemod(synthCmd)
	synthCmd.Flags().Uint64VarP(&flagBand.Width, "sample-rate", "s", 1024000, "Sample rate in Hz for wav output")
	synthCmd.Flags().StringVarP(&synthBits, "bits", "", "10101010,11001100", "Comma separated messages")
	synthCmd.Flags().IntVarP(&synthGap, "gap", "", 0, "Silent bits between messages; default tolerance+2")
	synthCmd.Flags().Float64VarP(&synthAmp, "amplitude", "", 0.9, "Signal amplitude")
	synthCmd.Flags().Float64VarP(&synthNoise, "noise-amplitude", "", 0, "Gaussian noise standard deviation")
	rootCmd.AddCommand(synthCmd)

	noiseCmd := &cobra.Command{
		Use:   "noise [flags] source",
		Short: "Estimate the noise floor and suggest a noise threshold",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return noiseFloor(args[0]) },
	}
	addFlagBand(noiseCmd)
	noiseCmd.Flags().IntVarP(&noiseBins, "bins", "", 1024, "FFT bins")
	noiseCmd.Flags().IntVarP(&noiseFFTs, "ffts", "", 100, "FFTs to average")
	rootCmd.AddCommand(noiseCmd)

	showCmd := &cobra.Command{
		Use:   "show [flags] log.gob|log.csv",
		Short: "Print a saved message log",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return show(cmd, args[0]) },
	}
	showCmd.Flags().StringVarP(&viewName, "view", "v", "bits", "Message view: bits, hex or ascii")
	showCmd.Flags().BoolVarP(&showCSV, "csv", "", false, "Print as CSV")
	showCmd.Flags().BoolVarP(&useCH, "clickhouse", "", false, "Upload the log to CLICKHOUSE_ADDR instead of printing")
	rootCmd.AddCommand(showCmd)
}

func main() {
	rootCmd.Execute()
}
