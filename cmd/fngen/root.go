package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/katalvlaran/fngen/artifact"
	"github.com/katalvlaran/fngen/autodiff"
)

const (
	keyCacheDir = "cache-dir"
	keyVerbose  = "verbose"
)

// app carries the state shared by every subcommand. The store is opened in
// PersistentPreRunE, after flags, env and config have been merged.
type app struct {
	v      *viper.Viper
	out    io.Writer
	logger *slog.Logger
	store  *artifact.Store
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}
	var configFile string

	root := &cobra.Command{
		Use:           "fngen",
		Short:         "Inspect and run compiled derivative functions",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				a.v.SetConfigFile(configFile)
				a.v.SetConfigType("yaml")
				if err := a.v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config %s: %w", configFile, err)
				}
			}
			level := slog.LevelWarn
			if a.v.GetBool(keyVerbose) {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

			dir := a.v.GetString(keyCacheDir)
			if dir == "" {
				dir = autodiff.DefaultCacheDir()
			}
			s, err := artifact.NewStore(dir, artifact.WithStoreLogger(a.logger))
			if err != nil {
				return err
			}
			a.store = s
			a.logger.Debug("using cache", "dir", dir)
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.String(keyCacheDir, "", "artifact cache directory (env FNGEN_CACHE_DIR)")
	pf.BoolP(keyVerbose, "v", false, "debug logging (env FNGEN_VERBOSE)")

	a.v.SetEnvPrefix("FNGEN")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlag(keyCacheDir, pf.Lookup(keyCacheDir))
	_ = a.v.BindPFlag(keyVerbose, pf.Lookup(keyVerbose))

	root.AddCommand(
		a.lsCmd(),
		a.showCmd(),
		a.sourceCmd(),
		a.evalCmd(),
		a.rmCmd(),
		a.purgeCmd(),
	)
	return root
}
