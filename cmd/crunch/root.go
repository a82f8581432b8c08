package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/kingrea/configcrunch/document"
	"github.com/kingrea/configcrunch/internal/config"
	"github.com/kingrea/configcrunch/internal/helpers"
	"github.com/kingrea/configcrunch/internal/logging"
	"github.com/kingrea/configcrunch/internal/storage"
)

var (
	projectDir  string
	configPath  string
	lookupPaths []string
	logLevel    string
	helpersDir  string
)

var rootCmd = &cobra.Command{
	Use:           "crunch",
	Short:         "crunch loads, merges and validates YAML configuration documents",
	Long:          "crunch resolves $ref inheritance across repositories, applies $remove markers, renders template variables and validates the result",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crunch:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&projectDir, "dir", ".", "project directory")
	flags.StringVar(&configPath, "config", "", "config file (default <dir>/"+config.FileName+")")
	flags.StringSliceVar(&lookupPaths, "lookup", nil, "lookup path, repeatable; replaces the configured lookup_paths")
	flags.StringVar(&logLevel, "log-level", "", "log level override")
	flags.StringVar(&helpersDir, "helpers", "", "helper script directory override")
}

// app bundles everything a command needs to load documents.
type app struct {
	dir      string
	cfg      *config.Config
	logger   *logging.Logger
	registry *document.Registry
	loader   *document.Loader
	helpers  template.FuncMap
}

func newApp(cmd *cobra.Command) (*app, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir, configPath)
	if err != nil {
		return nil, err
	}
	if len(lookupPaths) > 0 {
		cfg.LookupPaths = append([]string(nil), lookupPaths...)
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.Log.Level = logLevel
	}
	if strings.TrimSpace(helpersDir) != "" {
		cfg.HelpersDir = helpersDir
	}

	logger, err := logging.New(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a := &app{dir: dir, cfg: cfg, logger: logger}
	if err := a.init(cmd.Context()); err != nil {
		logger.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reg, err := a.cfg.Registry()
	if err != nil {
		return err
	}
	a.registry = reg

	a.helpers, err = helpers.LoadDir(a.cfg.HelpersPath())
	if err != nil {
		return err
	}
	if len(a.helpers) > 0 {
		a.logger.WithField("count", len(a.helpers)).Debug("loaded template helpers")
	}

	sources, err := storage.Sources(ctx, a.dir, a.cfg.LookupPaths, storage.S3ClientConfig{
		Endpoint:        a.cfg.S3.Endpoint,
		Region:          a.cfg.S3.Region,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
	}, nil)
	if err != nil {
		return err
	}
	a.loader = document.NewLoader(sources,
		document.WithLogger(a.logger),
		document.WithConcurrency(a.cfg.Concurrency),
	)
	return nil
}

func (a *app) Close() error {
	return a.logger.Close()
}

// path resolves a command line file against the project directory.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

// load detects the type from the first file, merges all files, resolves
// references and optionally renders variables.
func (a *app) load(ctx context.Context, files []string, vars bool) (*document.Document, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = a.path(f)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		return nil, err
	}
	typ, err := a.registry.Detect(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", paths[0], err)
	}
	doc, err := a.loader.Load(ctx, typ, paths...)
	if err != nil {
		return nil, err
	}
	if vars {
		processor := &document.VariableProcessor{Helpers: a.helpers}
		if err := processor.Process(doc); err != nil {
			return nil, err
		}
	}
	a.logger.WithField("location", doc.Location()).WithField("header", doc.Header()).Info("loaded document")
	return doc, nil
}
