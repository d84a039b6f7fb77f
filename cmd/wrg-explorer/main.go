// Command wrg-explorer serves the WRG viewer: upload a wind resource grid,
// inspect its layers and download them as GeoTIFF.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wrg-explorer/internal/api"
	"github.com/banshee-data/wrg-explorer/internal/config"
	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/session"
	"github.com/banshee-data/wrg-explorer/internal/timeutil"
	"github.com/banshee-data/wrg-explorer/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to a JSON config file")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	projDB      = flag.String("proj-db", "", "Path to a PROJ proj.db (overrides config)")
	devMode     = flag.Bool("dev", false, "Run in dev mode: missing config file is not an error")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// loadConfig reads path and applies the flag overrides. A missing file at
// the default path is tolerated so the binary runs outside the repo.
func loadConfig(path string, explicit bool, listenAddr, projPath string) (*config.Config, error) {
	cfg := config.Empty()
	if _, err := os.Stat(path); err == nil || explicit {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		log.Printf("config %s not found, using defaults", path)
	}
	if listenAddr != "" {
		cfg.SetListen(listenAddr)
	}
	if projPath != "" {
		cfg.SetProjDB(projPath)
	}
	return cfg, cfg.Validate()
}

// openCatalogue opens proj.db when configured and the bundled catalogue
// otherwise.
func openCatalogue(cfg *config.Config) (*crs.DB, error) {
	if p := cfg.GetProjDB(); p != "" {
		return crs.OpenProjDB(p)
	}
	return crs.OpenBundled(cfg.GetCatalogueDB())
}

// app is the wired service.
type app struct {
	db      *crs.DB
	store   *session.Store
	handler http.Handler
}

func newApp(cfg *config.Config, clock timeutil.Clock) (*app, error) {
	db, err := openCatalogue(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open CRS catalogue: %w", err)
	}
	store := session.NewStore(clock, cfg.GetSessionTTL(), session.Options{
		Render:      cfg.RenderOptions(),
		Compression: cfg.GetCompression(),
	})

	mux := api.NewServer(store, crs.NewCatalogue(db), cfg.GetMaxUploadBytes()).ServeMux()
	if err := db.AttachAdminRoutes(mux); err != nil {
		db.Close()
		return nil, err
	}
	return &app{db: db, store: store, handler: api.LoggingMiddleware(mux)}, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("wrg-explorer", version.Get())
		return
	}

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	cfg, err := loadConfig(*configPath, explicit && !*devMode, *listen, *projDB)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := newApp(cfg, timeutil.RealClock{})
	if err != nil {
		log.Fatal(err)
	}
	defer a.db.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.store.Run(ctx, 0)
		log.Print("session janitor terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("wrg-explorer %s listening on %s", version.Version, server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
