package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aerocfi/cfi-supervisor/pkg/flightmodel"
)

// hazardProfileYAML mirrors the on-disk overlay shape operators hand-
// edit to adjust thresholds or speech phrasing without a code change.
type hazardProfileYAML struct {
	EnabledRules   []string            `yaml:"enabled_rules"`
	Thresholds     map[string]float64  `yaml:"thresholds"`
	SpeechVariants map[string][]string `yaml:"speech_variants"`
}

// LoadHazardProfileYAML reads and parses path into a HazardProfile. A
// missing or unreadable file, including an empty path, is returned as an
// error; main only calls it when a profile path is configured.
func LoadHazardProfileYAML(path string) (flightmodel.HazardProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flightmodel.HazardProfile{}, fmt.Errorf("config: read hazard profile %s: %w", path, err)
	}

	var raw hazardProfileYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return flightmodel.HazardProfile{}, fmt.Errorf("config: parse hazard profile %s: %w", path, err)
	}

	enabled := make(map[string]struct{}, len(raw.EnabledRules))
	for _, r := range raw.EnabledRules {
		enabled[r] = struct{}{}
	}
	thresholds := raw.Thresholds
	if thresholds == nil {
		thresholds = map[string]float64{}
	}
	variants := raw.SpeechVariants
	if variants == nil {
		variants = map[string][]string{}
	}

	return flightmodel.HazardProfile{
		EnabledRules:   enabled,
		Thresholds:     thresholds,
		SpeechVariants: variants,
	}, nil
}

// HazardProfileWatcher reloads a YAML hazard profile file whenever it
// changes on disk and invokes onReload with the freshly parsed,
// swap-by-replacement value. A malformed rewrite (editors often write
// through a temp file and rename) is logged and ignored, keeping the
// previously loaded profile active.
type HazardProfileWatcher struct {
	path     string
	log      *slog.Logger
	onReload func(flightmodel.HazardProfile)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewHazardProfileWatcher builds a watcher for path. Call Start to
// begin watching; call Stop to release the fsnotify handle.
func NewHazardProfileWatcher(path string, log *slog.Logger, onReload func(flightmodel.HazardProfile)) *HazardProfileWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &HazardProfileWatcher{path: path, log: log, onReload: onReload}
}

// Start begins watching the profile's directory (not the file itself,
// since editors commonly replace it via rename rather than in-place
// write, which drops a direct file watch).
func (w *HazardProfileWatcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create fsnotify watcher: %w", err)
	}

	dir := parentDir(w.path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w.mu.Lock()
	w.watcher = fsw
	w.mu.Unlock()

	go w.run(fsw)
	return nil
}

func (w *HazardProfileWatcher) run(fsw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			profile, err := LoadHazardProfileYAML(w.path)
			if err != nil {
				w.log.Error("config: hazard profile reload failed, keeping previous profile", "error", err, "path", w.path)
				continue
			}
			w.log.Info("config: hazard profile reloaded", "path", w.path)
			w.onReload(profile)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("config: fsnotify error", "error", err)
		}
	}
}

// Stop releases the underlying fsnotify watcher.
func (w *HazardProfileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
