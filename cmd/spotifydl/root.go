package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spotifydl/internal/config"
	"spotifydl/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// options holds the flags shared by the root and serve commands.
// Priority: CLI flags > config file > defaults
type options struct {
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &options{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:   "spotifydl [urls...]",
		Short: "Download Spotify tracks, albums, playlists and podcasts via YouTube",
		Long: `spotifydl resolves Spotify links to YouTube sources, downloads and
transcodes the audio, and tags the result with Spotify metadata.

Inputs may be open.spotify.com links, spotify: URIs, YouTube links, or one of
saved-tracks, saved-albums, saved-playlists, saved-shows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd.Flags())
			if err != nil {
				return err
			}
			cfg.Inputs = append(cfg.Inputs, args...)
			if len(cfg.Inputs) == 0 {
				return cmd.Help()
			}
			return runDownload(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML or TOML)")
	root.PersistentFlags().BoolVarP(&opts.cfg.Verbose, "verbose", "v", false, "Show detailed output instead of a progress bar")
	bindFlags(root.PersistentFlags(), &opts.cfg)

	root.AddCommand(newServeCommand(opts))
	root.AddCommand(newInitConfigCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func bindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.OutputDir, "output", "o", cfg.OutputDir, "Output directory")
	fs.StringVarP(&cfg.OutputTemplate, "output-template", "t", cfg.OutputTemplate, "Output path template ({artistName}, {albumName}, {itemName})")
	fs.StringVarP(&cfg.AudioFormat, "format", "f", cfg.AudioFormat, "Audio format: mp3, m4a, opus, flac, ogg, wav, aac")
	fs.StringVarP(&cfg.Bitrate, "bitrate", "b", cfg.Bitrate, "Audio bitrate for lossy formats")
	fs.StringVar(&cfg.CacheFile, "cache-file", cfg.CacheFile, "Download ledger file name, or an absolute path for a single shared ledger")
	fs.BoolVarP(&cfg.Lyrics, "lyrics", "l", cfg.Lyrics, "Embed lyrics from lrclib.net")
	fs.BoolVarP(&cfg.Report, "report", "r", cfg.Report, "Print a summary table after the run")
	fs.StringVar(&cfg.SearchFormat, "search-format", cfg.SearchFormat, "Custom search query tried first")
	fs.StringVar(&cfg.ExtraSearch, "extra-search", cfg.ExtraSearch, "Terms appended to every search")
	fs.StringSliceVarP(&cfg.ExclusionFilters, "exclude", "e", cfg.ExclusionFilters, "Drop results whose title or description contains this term")
	fs.IntVar(&cfg.MaxSongDuration, "max-song-duration", cfg.MaxSongDuration, "Longest accepted song result in seconds")
	fs.StringSliceVar(&cfg.SponsorCategories, "sponsor-categories", cfg.SponsorCategories, "SponsorBlock categories to cut out")
	fs.StringVar(&cfg.SpotifyClientID, "client-id", cfg.SpotifyClientID, "Spotify application client id")
	fs.StringVar(&cfg.SpotifyClientSecret, "client-secret", cfg.SpotifyClientSecret, "Spotify application client secret")
	fs.BoolVar(&cfg.Login, "login", cfg.Login, "Log in with a Spotify account even for public links")
	fs.StringVarP(&cfg.Username, "username", "u", cfg.Username, "Spotify username")
	fs.StringVarP(&cfg.Password, "password", "p", cfg.Password, "Spotify password")
	fs.IntVar(&cfg.CallbackPort, "callback-port", cfg.CallbackPort, "Local port receiving the login redirect")
	fs.StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Where the refresh token is stored")
}

// load reads the config file and re-applies every flag the user set, so
// flags win over the file and the file wins over defaults.
func (o *options) load(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.LoadConfigFile(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	overlay := cfg
	probe := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	probe.BoolVarP(&overlay.Verbose, "verbose", "v", cfg.Verbose, "")
	bindFlags(probe, &overlay)

	var applyErr error
	fs.Visit(func(f *pflag.Flag) {
		if probe.Lookup(f.Name) == nil || applyErr != nil {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			applyErr = probe.Lookup(f.Name).Value.(pflag.SliceValue).Replace(sv.GetSlice())
			return
		}
		applyErr = probe.Set(f.Name, f.Value.String())
	})
	if applyErr != nil {
		return config.Config{}, applyErr
	}

	overlay.OutputDir = config.ExpandHome(overlay.OutputDir)
	overlay.TokenFile = config.ExpandHome(overlay.TokenFile)
	if err := overlay.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("configuration error: %w", err)
	}
	return overlay, nil
}

// newLogger sets up console logging and, outside verbose mode, a per-run log
// file named after the run id.
func newLogger(cfg config.Config, prefix string) *logger.Logger {
	log := logger.New(cfg.Verbose)
	runID := uuid.NewString()
	log.SetRunID(runID)

	if cfg.Verbose {
		log.Debug("Run %s", runID)
		return log
	}

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		return log
	}
	logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("%s_%s_%s.log", prefix, time.Now().Format("2006-01-02_15-04-05"), runID[:8]))
	if err := log.SetFileLog(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
		return log
	}
	log.Debug("Run %s logging to %s", runID, logFile)
	return log
}
