package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/balogun-pappy/advoc/config"
	"github.com/balogun-pappy/advoc/handler"
	"github.com/balogun-pappy/advoc/logging"
	"github.com/balogun-pappy/advoc/profile"
	"github.com/balogun-pappy/advoc/schema"
	"github.com/balogun-pappy/advoc/session"
	"github.com/balogun-pappy/advoc/social"
	"github.com/balogun-pappy/advoc/store"
)

const defaultConfigPath = "advoc.toml"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "advoc",
	Short: "ADVOC media sharing server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every stored record against its collection's shape",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		backend, err := store.NewFromConfig(cmd.Context(), cfg.Store, nil)
		if err != nil {
			return fmt.Errorf("failed to create store (backend=%s): %w", cfg.Store.Backend, err)
		}
		reg := store.NewRegistry(backend)
		defer reg.Close()

		bad, err := check(cmd.Context(), reg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if bad > 0 {
			return fmt.Errorf("%d invalid records", bad)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "All records valid")
		return nil
	},
}

// check validates the built-in collections, printing one line per invalid
// record, and returns how many it found.
func check(ctx context.Context, reg *store.Registry, w io.Writer) (int, error) {
	bad := 0
	for _, name := range store.BuiltinCollections {
		c, err := reg.Get(name)
		if err != nil {
			return bad, err
		}
		recs, err := c.LoadAll(ctx)
		if err != nil {
			return bad, err
		}
		s := schema.For(name)
		for i, rec := range recs {
			if err := s.Validate(rec); err != nil {
				fmt.Fprintf(w, "%s[%d]: %v\n", name, i, err)
				bad++
			}
		}
	}
	return bad, nil
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if err := config.Init(path, config.Default()); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		m := &config.Manager{}
		return m.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to the TOML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}

	backend, err := store.NewFromConfig(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("failed to create store (backend=%s): %w", cfg.Store.Backend, err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg := store.NewRegistry(backend, store.WithMetrics(store.NewMetrics(promReg)))
	defer reg.Close()

	if err := reg.Init(ctx, store.BuiltinCollections...); err != nil {
		return err
	}
	for _, dir := range []string{cfg.Media.UploadsDir, cfg.Media.BusinessUploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating upload directory: %w", err)
		}
	}
	profiles, err := profile.NewResolver(cfg.Media.ProfilePicsDir, cfg.Media.DefaultProfilePic, log)
	if err != nil {
		return err
	}

	h := handler.New(handler.Deps{
		Registry:  reg,
		Sessions:  session.NewManager(cfg.Session.CookieName, cfg.Session.TTL.Duration, cfg.Session.Secure),
		Profiles:  profiles,
		Clock:     social.NewMonotonicClock(social.RealClock{}),
		Logger:    log,
		Media:     cfg.Media,
		Server:    cfg.Server,
		RateLimit: cfg.RateLimit,
		Metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server_starting", "addr", srv.Addr, "store", cfg.Store.Backend, "data_dir", cfg.Store.DataDir)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
