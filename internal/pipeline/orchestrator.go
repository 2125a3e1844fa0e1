package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/foundry"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/provision"
)

const maxGenerateAttempts = 3

// Quoted class attribute with "slide" as a whole word, case-insensitive.
var slideSectionRE = regexp.MustCompile(`(?i)<section\b[^>]*\bclass="[^"]*\bslide\b[^"]*"`)

// AgentInvoker is the slice of the remote client the orchestrator needs.
type AgentInvoker interface {
	CreateResponse(ctx context.Context, req foundry.ResponseRequest) (json.RawMessage, error)
}

// Orchestrator drives one job through the multi-agent state machine.
type Orchestrator struct {
	store    domain.JobStore
	agents   AgentInvoker
	prov     *provision.Context
	renderer domain.Renderer
}

// New wires an orchestrator.
func New(store domain.JobStore, agents AgentInvoker, prov *provision.Context, renderer domain.Renderer) *Orchestrator {
	return &Orchestrator{store: store, agents: agents, prov: prov, renderer: renderer}
}

// Run executes the pipeline for jobID. Planner and research failures
// degrade; generation, validation, parsing, and rendering failures are
// returned to the worker, which marks the job failed.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	if err := o.prov.WaitReady(ctx); err != nil {
		return err
	}
	in, err := o.store.GetInput(ctx, jobID)
	if err != nil {
		return err
	}
	if err := o.setStep(ctx, jobID, domain.StepPlan); err != nil {
		return err
	}
	effective := ComposeEffectivePrompt(in.Prompt, in.Aspect)

	plan := o.plan(ctx, jobID, in, effective)
	web := o.researchWeb(ctx, jobID, plan)
	file := o.researchFile(ctx, jobID, effective, plan)

	html, err := o.generateAndValidate(ctx, jobID, in.Aspect, effective, plan, web, file)
	if err != nil {
		return err
	}

	start := time.Now()
	png, err := o.renderer.Render(ctx, html, in.Aspect)
	observability.ObserveStage("render", time.Since(start))
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	if _, err := o.store.SavePreviewPNG(ctx, jobID, png); err != nil {
		return err
	}
	return o.store.Update(ctx, jobID, func(s *domain.JobState) {
		s.Status = domain.JobSucceeded
		s.Step = ""
		s.Error = ""
	})
}

// setStep records a running-state step transition.
func (o *Orchestrator) setStep(ctx context.Context, jobID, step string) error {
	return o.store.Update(ctx, jobID, func(s *domain.JobState) {
		s.Status = domain.JobRunning
		s.Step = step
	})
}

// plan invokes the planner agent. Any failure falls back to a locally
// synthesized plan; planning never fails the job.
func (o *Orchestrator) plan(ctx context.Context, jobID string, in domain.JobInput, effective string) PlannerOutput {
	start := time.Now()
	defer func() { observability.ObserveStage("plan", time.Since(start)) }()

	agentID, ok := o.prov.AgentID(provision.AgentPlanner)
	if !ok {
		slog.Warn("planner agent unavailable; using fallback plan", slog.String("job_id", jobID))
		return FallbackPlan(in.Prompt)
	}
	env, err := o.agents.CreateResponse(ctx, foundry.ResponseRequest{
		AgentID:    agentID,
		Input:      []foundry.Message{BuildUserInput(effective, in.ImageDataURL)},
		SchemaName: "slide_plan",
		Schema:     foundry.RawSchema(foundry.PlannerSchemaJSON),
	})
	if err != nil {
		slog.Warn("planner call failed; using fallback plan", slog.String("job_id", jobID), slog.Any("error", err))
		return FallbackPlan(in.Prompt)
	}
	p, err := foundry.ParseJSONOutput[PlannerOutput](env, foundry.PlannerSchema)
	if err != nil {
		slog.Warn("planner output unusable; using fallback plan", slog.String("job_id", jobID), slog.Any("error", err))
		return FallbackPlan(in.Prompt)
	}
	return NormalizePlan(p, in.Prompt)
}

// researchWeb runs the web research stage. Best-effort: failures yield an
// empty result. Citations are merged into the job's URL sources.
func (o *Orchestrator) researchWeb(ctx context.Context, jobID string, plan PlannerOutput) WebResearchOutput {
	if err := o.setStep(ctx, jobID, domain.StepResearchWeb); err != nil {
		slog.Warn("step update failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
	start := time.Now()
	defer func() { observability.ObserveStage("research_web", time.Since(start)) }()

	agentID, ok := o.prov.AgentID(provision.AgentWebResearch)
	if !ok || len(plan.SearchQueries) == 0 {
		return WebResearchOutput{}
	}
	env, err := o.agents.CreateResponse(ctx, foundry.ResponseRequest{
		AgentID:    agentID,
		Input:      []foundry.Message{foundry.TextMessage(buildWebResearchPrompt(plan.SearchQueries))},
		SchemaName: "web_research",
		Schema:     foundry.RawSchema(foundry.WebResearchSchemaJSON),
	})
	if err != nil {
		slog.Warn("web research failed", slog.String("job_id", jobID), slog.Any("error", err))
		return WebResearchOutput{}
	}
	out, err := foundry.ParseJSONOutput[WebResearchOutput](env, foundry.WebResearchSchema)
	if err != nil {
		slog.Warn("web research output unusable", slog.String("job_id", jobID), slog.Any("error", err))
		return WebResearchOutput{}
	}
	urls := make([]string, 0, len(out.Citations))
	for _, c := range out.Citations {
		urls = append(urls, c.URL)
	}
	if len(urls) > 0 {
		if err := o.store.Update(ctx, jobID, func(s *domain.JobState) { s.AddURLSources(urls) }); err != nil {
			slog.Warn("source merge failed", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}
	return out
}

// researchFile runs the file research stage against the vector store.
// Skipped entirely when no vector store was provisioned.
func (o *Orchestrator) researchFile(ctx context.Context, jobID, effective string, plan PlannerOutput) FileResearchOutput {
	if err := o.setStep(ctx, jobID, domain.StepResearchFile); err != nil {
		slog.Warn("step update failed", slog.String("job_id", jobID), slog.Any("error", err))
	}
	start := time.Now()
	defer func() { observability.ObserveStage("research_file", time.Since(start)) }()

	agentID, ok := o.prov.AgentID(provision.AgentFileResearch)
	if o.prov.VectorStoreID == "" || !ok {
		return FileResearchOutput{}
	}
	env, err := o.agents.CreateResponse(ctx, foundry.ResponseRequest{
		AgentID:    agentID,
		Input:      []foundry.Message{foundry.TextMessage(buildFileResearchPrompt(effective, fileKeywords(plan)))},
		SchemaName: "file_research",
		Schema:     foundry.RawSchema(foundry.FileResearchSchemaJSON),
	})
	if err != nil {
		slog.Warn("file research failed", slog.String("job_id", jobID), slog.Any("error", err))
		return FileResearchOutput{}
	}
	out, err := foundry.ParseJSONOutput[FileResearchOutput](env, foundry.FileResearchSchema)
	if err != nil {
		slog.Warn("file research output unusable", slog.String("job_id", jobID), slog.Any("error", err))
		return FileResearchOutput{}
	}
	files := make([]string, 0, len(out.Citations))
	for _, c := range out.Citations {
		files = append(files, c.Filename)
	}
	if len(files) > 0 {
		if err := o.store.Update(ctx, jobID, func(s *domain.JobState) { s.AddFileSources(files) }); err != nil {
			slog.Warn("source merge failed", slog.String("job_id", jobID), slog.Any("error", err))
		}
	}
	return out
}

// generateAndValidate runs the bounded generate+validate fix loop: one
// initial generation plus up to two fixes.
func (o *Orchestrator) generateAndValidate(ctx context.Context, jobID string, aspect domain.Aspect, effective string, plan PlannerOutput, web WebResearchOutput, file FileResearchOutput) (string, error) {
	genID, ok := o.prov.AgentID(provision.AgentHTMLGenerator)
	if !ok {
		return "", fmt.Errorf("%w: html-generator agent unavailable", domain.ErrPipelineFailed)
	}
	valID, ok := o.prov.AgentID(provision.AgentValidator)
	if !ok {
		return "", fmt.Errorf("%w: validator agent unavailable", domain.ErrPipelineFailed)
	}

	fixAppendix := ""
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		if err := o.setStep(ctx, jobID, domain.StepGenerateHTML); err != nil {
			return "", err
		}
		start := time.Now()
		env, err := o.agents.CreateResponse(ctx, foundry.ResponseRequest{
			AgentID: genID,
			Input:   []foundry.Message{foundry.TextMessage(buildGeneratorPrompt(effective, plan, web, file, aspect, fixAppendix))},
		})
		observability.ObserveStage("generate", time.Since(start))
		if err != nil {
			return "", fmt.Errorf("generate html: %w", err)
		}
		html := strings.TrimSpace(foundry.StripCodeFences(foundry.ExtractOutputText(env)))
		if html == "" {
			return "", fmt.Errorf("%w: generator returned no output", domain.ErrSchemaInvalid)
		}
		if _, err := o.store.SaveHTML(ctx, jobID, html); err != nil {
			return "", err
		}

		if err := o.setStep(ctx, jobID, domain.StepValidate); err != nil {
			return "", err
		}
		start = time.Now()
		venv, err := o.agents.CreateResponse(ctx, foundry.ResponseRequest{
			AgentID:    valID,
			Input:      []foundry.Message{foundry.TextMessage(buildValidatorPrompt(html, aspect))},
			SchemaName: "slide_validation",
			Schema:     foundry.RawSchema(foundry.ValidatorSchemaJSON),
		})
		observability.ObserveStage("validate", time.Since(start))
		if err != nil {
			return "", fmt.Errorf("validate html: %w", err)
		}
		verdict, err := foundry.ParseJSONOutput[ValidatorOutput](venv, foundry.ValidatorSchema)
		if err != nil {
			return "", fmt.Errorf("validate html: %w", err)
		}

		n := slideCount(html)
		if verdict.OK && n == 1 {
			observability.GenerateAttempts.Observe(float64(attempt + 1))
			return html, nil
		}

		slideIssue := ""
		if n != 1 {
			slideIssue = fmt.Sprintf("Expected exactly 1 <section class=\"slide\">, found %d", n)
		}
		slog.Info("validation attempt rejected",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt+1),
			slog.Bool("validator_ok", verdict.OK),
			slog.Int("slide_count", n))

		if attempt == maxGenerateAttempts-1 {
			observability.GenerateAttempts.Observe(float64(maxGenerateAttempts))
			return "", fmt.Errorf("%w: %s", domain.ErrPipelineFailed, failureMessage(slideIssue, verdict.Issues))
		}
		fixAppendix = nextFixAppendix(verdict, slideIssue)
	}
	return "", fmt.Errorf("%w: validation attempts exhausted", domain.ErrPipelineFailed)
}

// slideCount counts single-slide section tags in the generated HTML.
func slideCount(html string) int {
	return len(slideSectionRE.FindAllString(html, -1))
}

// failureMessage joins up to eight validator issues, prefixed by the
// slide-count issue when present.
func failureMessage(slideIssue string, issues []string) string {
	msgs := make([]string, 0, 9)
	if slideIssue != "" {
		msgs = append(msgs, slideIssue)
	}
	for _, is := range issues {
		if len(msgs) >= 8 {
			break
		}
		msgs = append(msgs, is)
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "slide validation failed")
	}
	return strings.Join(msgs, "; ")
}

// nextFixAppendix builds the appendix for the next generation attempt.
func nextFixAppendix(verdict ValidatorOutput, slideIssue string) string {
	if verdict.FixedPromptAppendix != "" {
		if slideIssue != "" {
			return verdict.FixedPromptAppendix + "\n" + slideIssue
		}
		return verdict.FixedPromptAppendix
	}
	issues := verdict.Issues
	if slideIssue != "" {
		issues = append([]string{slideIssue}, issues...)
	}
	if len(issues) == 0 {
		issues = []string{"The slide failed validation; regenerate it strictly following the constraints."}
	}
	return "Fix these issues:\n- " + strings.Join(issues, "\n- ")
}
