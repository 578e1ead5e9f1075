// Command pluginhost wires every plugin-runtime component together end to
// end: it loads configuration, discovers and loads compatible bundles,
// enables them, and (when configured) watches their artifacts for
// changes until interrupted.
package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/config"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/eventbus"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/extension"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hotreload"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/lifecycle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/registry"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/service"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/trust"
)

// HostVersion is this host binary's own semantic version, the value
// discover_compatible filters bundles against.
const HostVersion = "2.0.0"

func main() {
	os.Exit(Run())
}

// Run is the entrypoint split out from main: it returns the exit code
// instead of calling os.Exit, and it registers for SIGINT/SIGTERM itself,
// blocking until one arrives before shutting down.
func Run() int {
	cfg := config.Load()

	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		log.Printf("[WARN] pluginhost: could not create base dir %s: %v", cfg.BaseDir, err)
	}

	trustedPublishers := make(map[string]bool, len(cfg.TrustedPublishers))
	for _, dn := range cfg.TrustedPublishers {
		trustedPublishers[dn] = true
	}
	verifier := trust.NewVerifier(trust.Policy{
		RequireSignature:  cfg.RequireSignature,
		TrustedPublishers: trustedPublishers,
	})

	revocations, err := trust.Load(revocationListPath(cfg.BaseDir))
	if err != nil {
		log.Printf("[WARN] pluginhost: revocation list load failed, starting with an empty list: %v", err)
		revocations = trust.NewEmptyRevocationList()
	}

	loader := bundle.NewLoader(bundle.LoaderConfig{
		BaseDir:     cfg.BaseDir,
		HostVersion: HostVersion,
		Verifier:    verifier,
		Revocations: revocations,
	})

	descriptors := registry.New()
	extensions := extension.New()
	services := service.New(nil)
	bus := eventbus.New(4)
	defer bus.Shutdown()

	manager := lifecycle.New(lifecycle.Config{
		HostVersion:       HostVersion,
		BaseDataDirectory: cfg.BaseDir,
		Loader:            loader,
		Descriptors:       descriptors,
		Extensions:        extensions,
		Events:            bus,
	})

	if err := manager.Initialize(); err != nil {
		log.Printf("[WARN] pluginhost: initialize failed: %v", err)
		return 1
	}

	for _, id := range manager.LoadOrder() {
		if c, ok := descriptors.Get(id); ok && c.State == bundle.Loaded {
			if err := manager.Enable(id); err != nil {
				log.Printf("[WARN] pluginhost: enable failed for %s: %v", id, err)
			}
		}
	}
	log.Printf("pluginhost: %d extension types, %d service types registered after enable", len(extensions.Types()), services.ServiceTypeCount())

	var reloader *hotreload.Reloader
	if cfg.HotReloadEnabled {
		logger := logrus.New()
		reloader, err = hotreload.New(hotreload.Config{
			Enabled:     true,
			WatchRoot:   cfg.BaseDir,
			Debounce:    cfg.Debounce,
			Manager:     manager,
			Loader:      loader,
			Descriptors: descriptors,
			Logger:      logger,
			Listener: hotreload.Listener{
				OnStarted:   func(id string) { logger.Infof("reload started: %s", id) },
				OnCompleted: func(id string, success bool) { logger.Infof("reload completed: %s success=%v", id, success) },
				OnFailed:    func(id string, err error) { logger.Warnf("reload failed: %s: %v", id, err) },
			},
		})
		if err != nil {
			log.Printf("[WARN] pluginhost: hot reloader disabled: %v", err)
		} else {
			for _, id := range manager.LoadOrder() {
				if c, ok := descriptors.Get(id); ok {
					_ = reloader.Register(id, artifactPath(cfg.BaseDir, c.Descriptor.ID))
				}
			}
			reloader.Start()
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if reloader != nil {
		reloader.Stop()
	}
	if err := manager.Shutdown(); err != nil {
		log.Printf("[WARN] pluginhost: shutdown error: %v", err)
	}
	return 0
}

func revocationListPath(baseDir string) string {
	return filepath.Join(baseDir, "revocations.json")
}

func artifactPath(baseDir, bundleID string) string {
	return filepath.Join(baseDir, bundleID+".zip")
}
