package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"community-platform/config"
	"community-platform/handlers"
	"community-platform/middleware"
	"community-platform/utils"
	"community-platform/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var catalogFile string

var rootCmd = &cobra.Command{
	Use:   "community-platform",
	Short: "Referral attribution, points and badges for the community platform",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the auth user sync worker and the scheduled jobs",
	RunE:  runServe,
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report referential drift between profiles, supporters, activities and badges",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		report, err := rt.svc.Diagnostics.Diagnose(cmd.Context())
		if err != nil {
			return err
		}
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if !report.Clean() {
			return fmt.Errorf("diagnostics found issues")
		}
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair referential drift; safe to run repeatedly",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		report, err := rt.svc.Diagnostics.Repair(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var seedBadgesCmd = &cobra.Command{
	Use:   "seed-badges",
	Short: "Upsert the badge catalog from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()

		path := catalogFile
		if path == "" {
			path = rt.cfg.BadgeCatalogPath
		}
		if path == "" {
			return fmt.Errorf("no catalog file: pass --file or set BADGE_CATALOG_PATH")
		}
		catalog, err := config.LoadBadgeCatalog(path)
		if err != nil {
			return err
		}
		n, err := rt.svc.Badges.SeedBadges(cmd.Context(), catalog)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d badges\n", n)
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote <profile-id>",
	Short: "Grant the admin flag to a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()
		return rt.svc.Membership.SetAdmin(cmd.Context(), args[0], true)
	},
}

func init() {
	seedBadgesCmd.Flags().StringVarP(&catalogFile, "file", "f", "", "badge catalog YAML (defaults to BADGE_CATALOG_PATH)")
	rootCmd.AddCommand(serveCmd, diagnoseCmd, repairCmd, seedBadgesCmd, promoteCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.log

	if rt.cfg.BadgeCatalogPath != "" {
		catalog, err := config.LoadBadgeCatalog(rt.cfg.BadgeCatalogPath)
		if err != nil {
			return err
		}
		if _, err := rt.svc.Badges.SeedBadges(ctx, catalog); err != nil {
			return err
		}
	}

	scheduler, err := workers.NewScheduler(ctx, workers.ScheduleConfig{
		BadgeReconcileInterval: rt.cfg.Jobs.BadgeReconcileInterval,
		VoteCloseInterval:      rt.cfg.Jobs.VoteCloseInterval,
	}, rt.svc.Ledger, rt.svc.Voting, log.Named("scheduler"))
	if err != nil {
		return err
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	app := newApp(gctx, rt)

	if rt.cfg.IsAuthSyncConfigured() {
		client := workers.NewAuthAdminClient(rt.cfg.Sync.AuthAdminURL, rt.cfg.Sync.ServiceKey, utils.NewHTTPClient(0))
		syncWorker := workers.NewAuthUserSyncWorker(client, rt.svc.Membership, rt.cfg.Sync.Interval, log.Named("auth-sync"))
		g.Go(func() error {
			syncWorker.Run(gctx)
			return nil
		})
	} else {
		log.Warn("AUTH_ADMIN_URL or AUTH_SERVICE_KEY not set, auth user sync disabled")
	}

	g.Go(func() error {
		log.Info("server listening", zap.String("port", rt.cfg.Server.Port))
		return app.Listen(":" + rt.cfg.Server.Port)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(rt.cfg.Server.ShutdownTimeout); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func newApp(ctx context.Context, rt *runtime) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             rt.cfg.Server.BodyLimit,
		ErrorHandler:          handlers.ErrorHandler(rt.log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(rt.cfg.Server.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	if !rt.cfg.IsR2Configured() {
		app.Static("/uploads", rt.cfg.Storage.LocalDir)
	}

	handlers.SetupRoutes(ctx, app, rt.svc, handlers.AuthOptions{
		Verifier:     middleware.NewTokenVerifier(rt.cfg.Auth.JWTSecret),
		GatewayToken: rt.cfg.Auth.GatewayToken,
	}, rt.log)
	return app
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
