package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/hh-checkpoint/internal/acquisition"
	"github.com/spigell/hh-checkpoint/internal/ai/gemini"
	"github.com/spigell/hh-checkpoint/internal/config"
	"github.com/spigell/hh-checkpoint/internal/dedup"
	"github.com/spigell/hh-checkpoint/internal/headhunter"
	"github.com/spigell/hh-checkpoint/internal/identity"
	"github.com/spigell/hh-checkpoint/internal/logger"
	"github.com/spigell/hh-checkpoint/internal/matching"
	"github.com/spigell/hh-checkpoint/internal/queries"
	"github.com/spigell/hh-checkpoint/internal/secrets"
)

const providerGemini = "gemini"

// application holds what every command needs: config, logger and the store.
type application struct {
	config  *config.Config
	logger  *zap.Logger
	store   *dedup.Store
	profile acquisition.Profile
}

// setup builds the logger, loads the config and the profile and opens the store.
// Errors are fatal like in the rest of the cli.
func setup(ctx context.Context) *application {
	log, err := logger.New(logger.Options{
		JSON:    viper.GetBool("json"),
		Debug:   viper.GetBool("debug"),
		Version: version,
	})
	if err != nil {
		fatalf("creating a logger: %s", err)
	}

	cfg, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(cfg, "", "  ")
	log.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	key, data, err := identity.DeriveProfileKeyFile(cfg.Profile)
	if err != nil {
		log.Fatal("loading the profile", zap.Error(err))
	}

	store, err := dedup.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("opening the store", zap.Error(err), zap.String("path", cfg.Database))
	}

	log.Info("starting the hh-checkpoint",
		zap.String("version", version),
		zap.String(logger.FieldProfileKey, key.String()),
	)

	return &application{
		config:  cfg,
		logger:  log,
		store:   store,
		profile: acquisition.Profile{Key: key, Summary: string(data)},
	}
}

func (a *application) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing the store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *application) generator(ctx context.Context) (*gemini.Generator, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: a.config.Gemini.APIKeyFile,
		Env:  a.config.Gemini.APIKeyEnv,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set gemini.api-key-file or %s)", err, a.config.Gemini.APIKeyEnv)
	}

	genLogger := logger.WithCommonFields(a.logger, providerGemini, a.config.Gemini.Model)
	return gemini.NewGenerator(ctx, apiKey, a.config.Gemini.Model, genLogger)
}

func (a *application) evaluator(ctx context.Context) (*matching.Evaluator, error) {
	gen, err := a.generator(ctx)
	if err != nil {
		return nil, err
	}

	scorerLogger := logger.WithCommonFields(a.logger, providerGemini, gen.Model())
	scorer := gemini.NewScorer(gen, a.config.Gemini.MaxLogLength, scorerLogger)

	evaluator, err := matching.New(
		matching.Config{Dimensions: a.config.Matching.Dimensions},
		matching.Deps{Scorer: scorer, Store: a.store, Logger: a.logger},
	)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("evaluator is ready", zap.Strings("dimensions", evaluator.Dimensions()))
	return evaluator, nil
}

// headhunter returns an hh.ru client. The token is optional unless required is set.
func (a *application) headhunter(required bool) (*headhunter.Client, error) {
	hhCfg := a.config.HeadHunter

	token := ""
	if hhCfg.TokenFile != "" || required {
		var err error
		token, err = secrets.Load(secrets.Source{
			Name: "headhunter token",
			File: hhCfg.TokenFile,
			Env:  "HH_TOKEN",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set HH_TOKEN_FILE or headhunter.token-file)", err)
		}
	}

	hh := headhunter.New(a.logger, token)
	if hhCfg.UserAgent != "" {
		hh.UserAgent = hhCfg.UserAgent
	}
	if hhCfg.APIURL != "" {
		hh.APIURL = hhCfg.APIURL
	}

	return hh, nil
}

func (a *application) coordinator(ctx context.Context) (*acquisition.Coordinator, error) {
	evaluator, err := a.evaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("building the evaluator: %w", err)
	}

	hh, err := a.headhunter(false)
	if err != nil {
		return nil, err
	}

	source := headhunter.NewSource(hh, headhunter.SourceConfig{
		Params:   a.config.HeadHunter.Search,
		Detailed: a.config.HeadHunter.Detailed,
		Delay:    a.config.HeadHunter.Delay,
	}, a.logger)

	return acquisition.New(acquisition.Deps{
		Source:    source,
		Store:     a.store,
		Evaluator: evaluator,
		Logger:    a.logger,
	})
}

func (a *application) queries() *queries.Store {
	// The config guarantees an absolute path.
	store, err := queries.New(a.config.QueriesFile)
	if err != nil {
		a.logger.Fatal("opening the queries file", zap.Error(err))
	}
	return store
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("printing result: %s", err)
	}
}

func fatalf(format string, args ...any) {
	log.Fatalf(format, args...)
}
