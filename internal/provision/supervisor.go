// Package provision reconciles remote agent definitions and the seed vector
// store at boot, then publishes readiness to the pipeline.
package provision

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/foundry"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// Canonical agent names.
const (
	AgentPlanner       = "planner"
	AgentWebResearch   = "web-research"
	AgentFileResearch  = "file-research"
	AgentHTMLGenerator = "html-generator"
	AgentValidator     = "validator"
)

// VectorStoreIDKey is the state-store key holding the provisioned id.
const VectorStoreIDKey = "vectorStoreId"

const (
	vectorStoreName  = "seed-data"
	vectorStoreReady = 2 * time.Minute
)

//go:embed agents.yaml
var agentDefsYAML []byte

type agentDefsFile struct {
	Agents []struct {
		Name         string `yaml:"name"`
		Instructions string `yaml:"instructions"`
	} `yaml:"agents"`
}

// AgentAPI is the slice of the remote client the supervisor needs.
type AgentAPI interface {
	ListAgentsByName(ctx context.Context) (map[string]string, error)
	CreateAgent(ctx context.Context, def foundry.AgentDefinition) (string, error)
	UpdateAgent(ctx context.Context, id string, def foundry.AgentDefinition) error
	UploadFile(ctx context.Context, path string) (string, error)
	CreateVectorStore(ctx context.Context, name string, fileIDs []string) (string, error)
	WaitVectorStoreReady(ctx context.Context, id string, timeout time.Duration) error
}

// Supervisor runs the one-shot boot provisioning protocol.
type Supervisor struct {
	api         AgentAPI
	state       domain.StateStore
	seedDataDir string
	model       string
	out         *Context
}

// NewSupervisor wires a supervisor that publishes into out.
func NewSupervisor(api AgentAPI, state domain.StateStore, seedDataDir, model string, out *Context) *Supervisor {
	return &Supervisor{api: api, state: state, seedDataDir: seedDataDir, model: model, out: out}
}

// Run executes provisioning once. Failures are logged and degrade the
// published context; the ready latch always fires.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.out.SignalReady()

	s.out.VectorStoreID = s.ensureVectorStore(ctx)
	s.reconcileAgents(ctx)

	slog.Info("provisioning finished",
		slog.Bool("vector_store", s.out.VectorStoreID != ""),
		slog.Int("agents", len(s.out.AgentIDs)))
}

// ensureVectorStore reuses a persisted id when present, otherwise builds a
// new store from the seed directory. Returns "" when file research is
// unavailable.
func (s *Supervisor) ensureVectorStore(ctx context.Context) string {
	if id, ok, err := s.state.Get(ctx, VectorStoreIDKey); err != nil {
		slog.Warn("state store read failed", slog.Any("error", err))
	} else if ok && id != "" {
		if err := s.api.WaitVectorStoreReady(ctx, id, vectorStoreReady); err != nil {
			slog.Warn("persisted vector store not ready; file research unavailable",
				slog.String("vector_store_id", id), slog.Any("error", err))
			return ""
		}
		slog.Info("reusing vector store", slog.String("vector_store_id", id))
		return id
	}

	files, err := seedFiles(s.seedDataDir)
	if err != nil {
		slog.Warn("seed directory scan failed", slog.String("dir", s.seedDataDir), slog.Any("error", err))
		return ""
	}
	if len(files) == 0 {
		slog.Info("no seed files found; file research unavailable", slog.String("dir", s.seedDataDir))
		return ""
	}

	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		id, err := s.api.UploadFile(ctx, f)
		if err != nil {
			slog.Warn("seed file upload failed", slog.String("path", f), slog.Any("error", err))
			continue
		}
		fileIDs = append(fileIDs, id)
	}
	if len(fileIDs) == 0 {
		slog.Warn("no seed files uploaded; file research unavailable")
		return ""
	}

	id, err := s.api.CreateVectorStore(ctx, vectorStoreName, fileIDs)
	if err != nil {
		slog.Warn("vector store creation failed", slog.Any("error", err))
		return ""
	}
	if err := s.api.WaitVectorStoreReady(ctx, id, vectorStoreReady); err != nil {
		slog.Warn("vector store did not become ready", slog.String("vector_store_id", id), slog.Any("error", err))
		return ""
	}
	if err := s.state.Set(ctx, VectorStoreIDKey, id); err != nil {
		slog.Warn("failed to persist vector store id", slog.Any("error", err))
	}
	slog.Info("vector store provisioned", slog.String("vector_store_id", id), slog.Int("files", len(fileIDs)))
	return id
}

// reconcileAgents updates existing agents or creates missing ones from the
// canonical definitions.
func (s *Supervisor) reconcileAgents(ctx context.Context) {
	existing, err := s.api.ListAgentsByName(ctx)
	if err != nil {
		slog.Warn("listing agents failed; attempting creates", slog.Any("error", err))
		existing = map[string]string{}
	}
	for _, def := range s.Definitions() {
		if id, ok := existing[strings.ToLower(def.Name)]; ok {
			if err := s.api.UpdateAgent(ctx, id, def); err != nil {
				slog.Warn("agent update failed", slog.String("agent", def.Name), slog.Any("error", err))
				continue
			}
			s.out.AgentIDs[def.Name] = id
			continue
		}
		id, err := s.api.CreateAgent(ctx, def)
		if err != nil {
			slog.Warn("agent creation failed", slog.String("agent", def.Name), slog.Any("error", err))
			continue
		}
		s.out.AgentIDs[def.Name] = id
	}
}

// Definitions returns the canonical agent definitions for the current
// configuration. file-research is included only when a vector store exists.
func (s *Supervisor) Definitions() []foundry.AgentDefinition {
	instructions := loadInstructions()
	defs := []foundry.AgentDefinition{
		{Name: AgentPlanner, Model: s.model, Instructions: instructions[AgentPlanner]},
		{Name: AgentWebResearch, Model: s.model, Instructions: instructions[AgentWebResearch],
			Tools: []foundry.AgentTool{{Type: "web_search_preview"}}},
	}
	if s.out.VectorStoreID != "" {
		defs = append(defs, foundry.AgentDefinition{
			Name: AgentFileResearch, Model: s.model, Instructions: instructions[AgentFileResearch],
			Tools: []foundry.AgentTool{{Type: "file_search", VectorStoreIDs: []string{s.out.VectorStoreID}}},
		})
	}
	defs = append(defs,
		foundry.AgentDefinition{Name: AgentHTMLGenerator, Model: s.model, Instructions: instructions[AgentHTMLGenerator]},
		foundry.AgentDefinition{Name: AgentValidator, Model: s.model, Instructions: instructions[AgentValidator]},
	)
	return defs
}

func loadInstructions() map[string]string {
	var f agentDefsFile
	if err := yaml.Unmarshal(agentDefsYAML, &f); err != nil {
		// The file is embedded at build time; a parse failure is a bug.
		panic(fmt.Sprintf("provision: agents.yaml: %v", err))
	}
	m := make(map[string]string, len(f.Agents))
	for _, a := range f.Agents {
		m[a.Name] = strings.TrimSpace(a.Instructions)
	}
	return m
}

// seedFiles lists files in dir with allowed seed extensions.
func seedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".md", ".pdf", ".txt":
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
