package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxsrt/internal/config"
	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/fmueller/voxsrt/internal/logging"
	"github.com/fmueller/voxsrt/internal/normalize"
	"github.com/fmueller/voxsrt/internal/pipeline"
	"github.com/fmueller/voxsrt/internal/platform"
	"github.com/fmueller/voxsrt/internal/version"
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

// speechEngine is a loaded engine that must be closed when the run ends.
type speechEngine interface {
	engine.Engine
	Close() error
}

type appState struct {
	verbose      bool
	jsonLogs     bool
	logFile      string
	noProgress   bool
	configPath   string
	output       string
	model        string
	device       string
	hfToken      string
	params       engine.Params
	recursive    bool
	ignoreErrors bool
	silenceGate  bool
	silenceDBFS  float64
	scratchDir   string

	cfg    config.Config
	logger *zap.Logger
	in     io.Reader

	loadEngineFn    func(ctx context.Context, cfg engine.Config) (speechEngine, error)
	newTranscoderFn func(logger *zap.Logger) (normalize.Transcoder, error)
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newAppState() *appState {
	defaults := config.Default()
	return &appState{
		model:           defaults.Engine.Model,
		params:          defaults.Chunking,
		ignoreErrors:    defaults.Input.IgnoreErrors,
		silenceDBFS:     defaults.Silence.ThresholdDBFS,
		cfg:             defaults,
		in:              os.Stdin,
		loadEngineFn:    loadProcessEngine,
		newTranscoderFn: newFFmpegTranscoder,
	}
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voxsrt [flags] <path>...",
		Short: "Transcribe media files into SRT subtitles",
		Long: "Transcribe media files into SRT subtitles.\n\n" +
			"Paths may be files or directories. Media that already has a sibling .srt file is skipped.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd)
		},
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runBatch(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindConfigFlag(cmd, app)
	bindEngineFlags(cmd, app)
	bindChunkingFlags(cmd, app)
	bindInputFlags(cmd, app)
	bindSilenceFlags(cmd, app)
	cmd.Flags().StringVarP(&app.output, "output", "o", "", "Subtitle output path; only valid when exactly one file is transcribed")

	cmd.AddCommand(newInteractiveCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().StringVar(&app.logFile, "log-file", app.logFile, "Also append logs to this file")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/voxsrt/config.toml)")
}

func bindEngineFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Engine model: "+strings.Join(engine.ModelNames(), "|"))
	cmd.PersistentFlags().StringVar(&app.device, "device", app.device, "Engine device, e.g. cpu or cuda; empty lets the engine decide")
	cmd.PersistentFlags().StringVar(&app.hfToken, "hf-token", "", "Hugging Face token for the engine's voice activity detection (default $HF_TOKEN)")
}

func bindChunkingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().Float64Var(&app.params.MaxDuration, "max-duration", app.params.MaxDuration, "Maximum chunk duration in seconds")
	cmd.PersistentFlags().Float64Var(&app.params.MinDuration, "min-duration", app.params.MinDuration, "Minimum chunk duration in seconds")
	cmd.PersistentFlags().Float64Var(&app.params.NewChunkThreshold, "new-chunk-threshold", app.params.NewChunkThreshold, "Pause length in seconds that starts a new chunk")
}

func bindInputFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVarP(&app.recursive, "recursive", "r", app.recursive, "Descend into subdirectories")
	cmd.PersistentFlags().BoolVar(&app.ignoreErrors, "ignore-errors", app.ignoreErrors, "Keep going when a file fails")
	cmd.PersistentFlags().StringVar(&app.scratchDir, "scratch-dir", app.scratchDir, "Directory for temporary transcoded audio (default system temp)")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Write empty subtitles for near-silent audio without running the engine")
	cmd.PersistentFlags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

// prepare builds the logger and merges the config file under any flags the
// user set explicitly.
func (a *appState) prepare(cmd *cobra.Command) error {
	logger, err := logging.New(logging.Options{Verbose: a.verbose, JSON: a.jsonLogs, File: a.logFile})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.logger = logger

	path, explicit := a.configPath, a.configPath != ""
	if !explicit {
		if dirs, err := platform.ResolveDirs(); err == nil {
			path = dirs.ConfigFile()
		}
	}

	cfg, err := config.Load(path, explicit)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.applyConfig(cmd.Flags().Changed)

	a.log().Debug("configuration resolved",
		zap.String("config", path),
		zap.String("model", a.model),
		zap.String("device", a.device),
		zap.Float64("max_duration", a.params.MaxDuration),
		zap.Float64("min_duration", a.params.MinDuration),
		zap.Float64("new_chunk_threshold", a.params.NewChunkThreshold),
	)
	return nil
}

func (a *appState) applyConfig(changed func(string) bool) {
	cfg := a.cfg
	if !changed("model") {
		a.model = cfg.Engine.Model
	}
	if !changed("device") {
		a.device = cfg.Engine.Device
	}
	if !changed("hf-token") {
		a.hfToken = cfg.HFToken()
	}
	if !changed("max-duration") {
		a.params.MaxDuration = cfg.Chunking.MaxDuration
	}
	if !changed("min-duration") {
		a.params.MinDuration = cfg.Chunking.MinDuration
	}
	if !changed("new-chunk-threshold") {
		a.params.NewChunkThreshold = cfg.Chunking.NewChunkThreshold
	}
	if !changed("recursive") {
		a.recursive = cfg.Input.Recursive
	}
	if !changed("ignore-errors") {
		a.ignoreErrors = cfg.Input.IgnoreErrors
	}
	if !changed("silence-gate") {
		a.silenceGate = cfg.Silence.Enabled
	}
	if !changed("silence-threshold-dbfs") {
		a.silenceDBFS = cfg.Silence.ThresholdDBFS
	}
	if !changed("scratch-dir") {
		a.scratchDir = cfg.Paths.ScratchDir
	}
}

func (a *appState) engineConfig() engine.Config {
	cfg := engine.Config{
		Executable: a.cfg.Engine.Executable,
		Model:      a.model,
		Device:     a.device,
		HFToken:    a.hfToken,
		Logger:     a.log(),
	}
	if dirs, err := platform.ResolveDirs(); err == nil {
		cfg.LockPath = dirs.EngineLock()
	} else {
		a.log().Warn("engine lock disabled", zap.Error(err))
	}
	return cfg
}

// newProcessor wires a loaded engine into the transcription pipeline.
func (a *appState) newProcessor(eng engine.Engine) (*pipeline.Processor, error) {
	scratch, err := platform.ResolveScratchDir(a.scratchDir)
	if err != nil {
		return nil, err
	}

	newTranscoder := a.newTranscoderFn
	if newTranscoder == nil {
		newTranscoder = newFFmpegTranscoder
	}
	transcoder, err := newTranscoder(a.log())
	if err != nil {
		a.log().Warn("audio transcoder unavailable; only .wav input can be transcribed", zap.Error(err))
	}

	p := pipeline.NewProcessor(eng, normalize.New(transcoder, scratch, a.log()), a.params, a.log())
	p.SilenceGate = a.silenceGate
	p.SilenceDBFS = a.silenceDBFS
	return p, nil
}

// loadEngine starts the engine behind a spinner.
func (a *appState) loadEngine(ctx context.Context) (speechEngine, error) {
	load := a.loadEngineFn
	if load == nil {
		load = loadProcessEngine
	}

	a.log().Info("loading speech engine", zap.String("model", a.model))
	stopSpinner := startSpinner(a.progressEnabled(), "Loading model "+a.model)
	eng, err := load(ctx, a.engineConfig())
	stopSpinner()
	if err != nil {
		return nil, fmt.Errorf("load speech engine: %w", err)
	}
	return eng, nil
}

func loadProcessEngine(ctx context.Context, cfg engine.Config) (speechEngine, error) {
	proc, err := engine.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

func newFFmpegTranscoder(logger *zap.Logger) (normalize.Transcoder, error) {
	ffmpeg, err := normalize.NewFFmpeg(logger)
	if err != nil {
		return nil, err
	}
	return ffmpeg, nil
}

func (a *appState) closeEngine(eng speechEngine) {
	if err := eng.Close(); err != nil {
		a.log().Warn("failed to stop speech engine", zap.Error(err))
	}
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return isTerminal(os.Stderr)
}

func (a *appState) inReader() io.Reader {
	if a.in == nil {
		return os.Stdin
	}
	return a.in
}
