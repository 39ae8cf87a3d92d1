package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bybit-autotrader/internal/api"
	"bybit-autotrader/internal/health"
	"bybit-autotrader/internal/provision"
	"bybit-autotrader/internal/store"
	"bybit-autotrader/pkg/cache"
	"bybit-autotrader/pkg/crypto"
	"bybit-autotrader/pkg/exchanges/bybit"
	"bybit-autotrader/pkg/exchanges/common"
	"bybit-autotrader/pkg/i18n"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autotrader",
		Short:         "Per-user Bybit auto-trading core",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		onceCmd(),
		loopCmd(),
		serveCmd(),
		diagCmd(),
		importCmd(),
		encryptCredentialsCmd(),
		tokenCmd(),
		hashPasswordCmd(),
		genKeyCmd(),
		healthCmd(),
	)
	return root
}

// withApp wires the application for one command and tears it down after.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, a, args)
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single trading cycle over all users",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			a.engine().RunOnce(ctx)
			return nil
		}),
	}
}

func loopCmd() *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "loop [seconds]",
		Short: "Run trading cycles forever",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			interval := a.cfg.LoopInterval
			if len(args) == 1 {
				secs, err := strconv.Atoi(args[0])
				if err != nil || secs <= 0 {
					return fmt.Errorf("invalid interval %q", args[0])
				}
				interval = time.Duration(secs) * time.Second
			}
			if serve {
				if err := a.cfg.ValidateAdmin(); err != nil {
					return err
				}
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := a.engine().Loop(ctx, interval)
				if ctx.Err() != nil {
					return nil
				}
				return err
			})
			g.Go(func() error {
				a.sweepCache(ctx)
				return nil
			})
			if serve {
				g.Go(func() error { return runServer(ctx, a) })
			}
			err := g.Wait()
			a.log.Info().Msg(i18n.M().ShuttingDown)
			return err
		}),
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the admin API")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			if err := a.cfg.ValidateAdmin(); err != nil {
				return err
			}
			err := runServer(ctx, a)
			a.log.Info().Msg(i18n.M().ShuttingDown)
			return err
		}),
	}
}

func runServer(ctx context.Context, a *app) error {
	srv := api.NewServer(api.Options{
		Store:        a.store,
		Auth:         a.monitor,
		Sealer:       a.codec,
		Gatherer:     a.registry,
		JWTSecret:    a.cfg.JWTSecret,
		PasswordHash: a.cfg.AdminPasswordHash,
		DryRun:       a.cfg.DryRun,
		Version:      version,
		Logger:       a.log,
	})
	a.log.Info().Msgf(i18n.M().ServerListening, a.cfg.AdminAddr)
	return srv.Run(ctx, a.cfg.AdminAddr)
}

func diagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diag <user-id>",
		Short: "Check a user's credentials against both environments",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			rep, err := a.monitor.Diagnose(ctx, args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf(i18n.M().DiagUserNotFound, args[0])
				}
				return err
			}
			fmt.Println(rep.String())
			return nil
		}),
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <users.yaml>",
		Short: "Create or update users from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			users, err := provision.Load(args[0])
			if err != nil {
				return err
			}
			n, err := provision.Apply(a.store, a.codec, users)
			if err != nil {
				return err
			}
			a.log.Info().Msgf(i18n.M().ImportedUsers, n, args[0])
			return nil
		}),
	}
}

func encryptCredentialsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt-credentials <user-id>",
		Short: "Encrypt a user's stored API credentials with the newest key",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(_ context.Context, a *app, args []string) error {
			if !a.codec.Enabled() {
				return crypto.ErrNoKeys
			}
			id := args[0]
			_, err := a.store.Update(id, func(p *store.Profile) error {
				if !p.HasCredentials() {
					return fmt.Errorf("user %s has no credentials", id)
				}
				var err error
				if p.APIKey, err = a.codec.Seal(p.APIKey); err != nil {
					return err
				}
				p.APISecret, err = a.codec.Seal(p.APISecret)
				return err
			})
			if err != nil {
				return err
			}
			a.log.Info().Msgf(i18n.M().CredentialsEncrypted, id, a.codec.CurrentVersion())
			return nil
		}),
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		Args:  cobra.NoArgs,
		RunE: withApp(func(_ context.Context, a *app, _ []string) error {
			if err := a.cfg.ValidateAdmin(); err != nil {
				return err
			}
			expiresAt := time.Now().Add(ttl)
			token, err := api.IssueToken(api.AdminSubject, a.cfg.JWTSecret, expiresAt)
			if err != nil {
				return err
			}
			fmt.Println(token)
			a.log.Info().Msgf(i18n.M().TokenIssued, expiresAt.UTC().Format(time.RFC3339))
			return nil
		}),
	}
	cmd.Flags().DurationVar(&ttl, "ttl", api.TokenTTL, "token lifetime")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			hash, err := api.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func genKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Print a new base64 AES-256 key for SECRETS_KEY",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	var asJSON bool
	var apiURL string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check profiles, ledger, exchange, cache and admin API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			probes := []health.Probe{
				health.Profiles(func() int { return len(a.store.Profiles()) }),
				health.Ledger(func(ctx context.Context) error {
					_, err := a.ledger.TradesFor(ctx, "health-probe", 1)
					return err
				}),
			}
			for _, testnet := range []bool{true, false} {
				client := bybit.NewClient(bybit.Config{Testnet: testnet, Timeout: a.cfg.HTTPTimeout, Logger: a.log})
				probes = append(probes, health.Exchange("Bybit "+common.EnvName(testnet), client.ServerTime))
			}
			if rc, ok := a.cache.(*cache.RedisCache); ok {
				probes = append(probes, health.Cache(rc.IsHealthy))
			}
			if apiURL == "" {
				apiURL = "http://" + localAddr(a.cfg.AdminAddr) + "/health"
			}
			probes = append(probes, health.AdminAPI(&http.Client{Timeout: 5 * time.Second}, apiURL))

			rep := health.Run(ctx, probes...)
			if asJSON {
				out, _ := json.MarshalIndent(rep, "", "  ")
				fmt.Println(string(out))
			} else {
				for _, c := range rep.Services {
					fmt.Printf("%-20s %-10s %s\n", c.Service, c.Status, c.Message)
				}
				fmt.Printf("Overall Status: %s\n", rep.Overall)
			}
			if rep.Overall == health.Unhealthy {
				return errors.New("unhealthy")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "admin API health URL (default derived from ADMIN_ADDR)")
	return cmd
}

// localAddr turns a listen address like ":8080" into a dialable one.
func localAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}
