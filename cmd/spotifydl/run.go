package main

import (
	"context"
	"fmt"
	"os"

	"spotifydl/internal/acquire"
	"spotifydl/internal/config"
	"spotifydl/internal/dedup"
	"spotifydl/internal/gate"
	"spotifydl/internal/logger"
	"spotifydl/internal/lyrics"
	"spotifydl/internal/model"
	"spotifydl/internal/pipeline"
	"spotifydl/internal/progress"
	"spotifydl/internal/ranker"
	"spotifydl/internal/segments"
	"spotifydl/internal/shutdown"
	"spotifydl/internal/spotify"
	"spotifydl/internal/tagger"
	"spotifydl/internal/transcode"
	"spotifydl/internal/youtube"
	"spotifydl/pkg/utils"
)

// buildDeps wires every collaborator of the orchestrator from cfg.
func buildDeps(cfg config.Config, log *logger.Logger) pipeline.Deps {
	callback := gate.NewCallbackServer(cfg.CallbackPort, log)
	callback.Username = cfg.Username
	callback.Password = cfg.Password

	session := gate.NewSession(gate.Options{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RedirectURL:  callback.RedirectURL(),
		Login:        cfg.Login,
		Store:        gate.NewStore(cfg.TokenFile),
		CodeSource:   callback,
		Wait:         cfg.RetryWait(),
		Logger:       log,
	})

	searcher := youtube.NewSearcher(log)
	engine := acquire.New(
		youtube.NewStreamer(),
		transcode.New(cfg.AudioFormat, cfg.Bitrate),
		segments.NewSponsorBlock(),
		cfg.SponsorCategories,
		cfg.TranscodeTimeoutDuration(),
		log,
	)

	return pipeline.Deps{
		Catalog:   spotify.New(session, log),
		Resolver:  ranker.New(searcher, cfg.MaxSongDurationSeconds(), log),
		Acquirer:  engine,
		Tagger:    tagger.New(log),
		Lyrics:    lyrics.NewClient(log),
		Describer: searcher,
		Cache:     dedup.New(cfg.CacheFile, log),
	}
}

func pipelineOptions(cfg config.Config) pipeline.Options {
	return pipeline.Options{
		OutputDir:      cfg.OutputDir,
		PathTemplate:   cfg.OutputTemplate,
		Format:         cfg.AudioFormat,
		SearchTemplate: cfg.SearchFormat,
		ExtraSearch:    cfg.ExtraSearch,
		Exclusions:     cfg.ExclusionFilters,
		Lyrics:         cfg.Lyrics,
	}
}

// needsCatalog reports whether any input has to be expanded through Spotify.
func needsCatalog(inputs []string) bool {
	for _, raw := range inputs {
		in, err := spotify.ParseInput(raw)
		if err == nil && in.Type != model.TypeDirectURL {
			return true
		}
	}
	return false
}

func runDownload(parent context.Context, cfg config.Config) error {
	log := newLogger(cfg, "spotifydl")
	defer log.Close()

	sh := shutdown.New(parent, log)
	sh.Listen()
	defer sh.Shutdown()

	log.Debug("Checking dependencies...")
	if err := utils.CheckDependencies(); err != nil {
		return fmt.Errorf("dependency check failed: %w", err)
	}
	if needsCatalog(cfg.Inputs) {
		if err := cfg.ValidateCredentials(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}

	var bar *progress.Bar
	hooks := pipeline.Hooks{}
	if !cfg.Verbose {
		bar = progress.New(os.Stdout)
		log.SetProgressBar(true)
		hooks.OnListStart = func(l model.List) { bar.AddTotal(len(l.Items)) }
		hooks.OnItemDone = func(_ model.Item, out model.Outcome) { bar.Observe(out) }
		sh.AddCleanup(func() { log.SetProgressBar(false) })
	}

	orch, err := pipeline.New(buildDeps(cfg, log), pipelineOptions(cfg), log, hooks)
	if err != nil {
		return err
	}

	res := orch.Run(sh.Context(), cfg.Inputs)

	if bar != nil {
		bar.Finish()
		log.SetProgressBar(false)
	}
	if cfg.Report {
		pipeline.WriteReport(os.Stdout, res)
	}

	if err := sh.Context().Err(); err != nil {
		log.Warn("Run interrupted")
		return err
	}

	failed := len(res.Failures())
	if failed > 0 || len(res.Errors) > 0 {
		log.Info("=== Finished with %d failed items and %d skipped inputs ===", failed, len(res.Errors))
	} else {
		log.Info("=== Process completed successfully ===")
	}
	return nil
}
