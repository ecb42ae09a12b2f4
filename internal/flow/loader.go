package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// flowFile mirrors FlowDefinition for on-disk JSON, with the session TTL
// written as a human-readable duration string ("12h", "30m").
type flowFile struct {
	models.FlowDefinition
	Config flowFileConfig `json:"config"`
}

type flowFileConfig struct {
	models.FlowConfig
	SessionTTL string `json:"sessionTTL,omitempty"`
}

// LoadDirectory registers every *.json flow definition found in dir.
// A malformed or invalid definition blocks startup for that flow, per the
// error policy: ErrInvalidFlowDefinition is the only startup-fatal error.
func LoadDirectory(registry *Registry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read flow directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		def, err := loadFile(path)
		if err != nil {
			return err
		}
		if err := registry.Register(def); err != nil {
			return err
		}
		loaded++
	}
	slog.Info("Flow definitions loaded from directory", "dir", dir, "count", loaded)
	return nil
}

func loadFile(path string) (*models.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file %s: %w", path, err)
	}

	var file flowFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidFlowDefinition, path, err)
	}

	def := file.FlowDefinition
	def.Config = file.Config.FlowConfig
	if file.Config.SessionTTL != "" {
		ttl, err := time.ParseDuration(file.Config.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: invalid sessionTTL %q", models.ErrInvalidFlowDefinition, path, file.Config.SessionTTL)
		}
		def.Config.SessionTTL = ttl
	}
	slog.Debug("Flow definition file parsed", "path", path, "flowID", def.ID)
	return &def, nil
}
