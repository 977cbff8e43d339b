// Package crew implements the bounded sub-workflow runner shared by
// all crew types. One Run is a Propose, Execute, Review, Reflect loop
// capped by a per-crew iteration ceiling, ending in a compressed
// summary. Only the summary crosses back into the task tree; the raw
// artifact is handed to the caller for flat storage.
package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/pkg/models"
)

// Definition parameterizes the shared runner for one crew type. The
// state machine is identical across crews; only prompts, ceiling, and
// the execution side effect differ.
type Definition struct {
	// Name is the registry key, e.g. "coding_crew".
	Name string
	// Role is the human-readable label used in digests.
	Role string
	// ArtifactType classifies what this crew produces.
	ArtifactType models.ArtifactType
	// MaxIterations is the retry ceiling before a forced summary.
	MaxIterations int
	// Executes runs each draft in the sandbox before review.
	Executes bool
	// Researches prepends web search results to the first proposal.
	Researches bool
	// ReflectEnabled adds a root-cause analysis stage after rejects.
	ReflectEnabled bool
	// ProposeSystem, ReviewSystem, ReflectSystem are the stage prompts.
	ProposeSystem string
	ReviewSystem  string
	ReflectSystem string
}

// Result is what a finished crew run reports upward. The Digest is the
// only part that travels into the tree.
type Result struct {
	// Crew is the definition name that ran.
	Crew string
	// Role is the definition's digest label.
	Role string
	// RunID is the isolated run identifier.
	RunID string
	// Artifact is the final draft, stored flat in ProjectState.
	Artifact string
	// ArtifactType classifies the artifact.
	ArtifactType models.ArtifactType
	// Digest is the compressed one-line outcome summary.
	Digest string
	// Approved is true when review accepted the final draft.
	Approved bool
	// Forced is true when the ceiling ended the loop without approval.
	Forced bool
	// Iterations is how many Propose rounds ran.
	Iterations int
	// Reflected is true when at least one reflection stage ran.
	Reflected bool
	// Execution is the last sandbox output, nil for non-executing crews.
	Execution *ports.ExecutionOutput
}

// loopState is the ephemeral per-run state. It never outlives the run.
type loopState struct {
	instruction string
	artifact    string
	feedback    string
	reflection  string
	iterations  int
	approved    bool
	reflected   bool
	execution   *ports.ExecutionOutput
}

// Runner drives crew definitions against the capability ports.
type Runner struct {
	llm     ports.LLM
	sandbox ports.Sandbox
	search  ports.Search
	memory  ports.VectorMemory
}

// RunnerConfig contains the ports a Runner depends on. Memory may be
// nil; observation storage is then skipped.
type RunnerConfig struct {
	LLM     ports.LLM
	Sandbox ports.Sandbox
	Search  ports.Search
	Memory  ports.VectorMemory
}

// NewRunner creates a crew runner.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{
		llm:     cfg.LLM,
		sandbox: cfg.Sandbox,
		search:  cfg.Search,
		memory:  cfg.Memory,
	}
}

// Run executes one crew invocation to its terminal summary. Port
// failures inside the loop become reject feedback, not errors; the
// returned error is reserved for failures that make even a forced
// summary impossible, such as the proposal call itself failing.
func (r *Runner) Run(ctx context.Context, def Definition, runID, instruction string) (*Result, error) {
	st := &loopState{instruction: instruction}

	if def.Researches && r.search != nil {
		findings := r.search.Search(ctx, instruction)
		st.feedback = "Background research findings:\n" + findings
	}

	ceiling := def.MaxIterations
	if ceiling < 1 {
		ceiling = 1
	}

	forced := false
	for {
		if err := r.propose(ctx, def, st); err != nil {
			return nil, fmt.Errorf("%s propose (iteration %d): %w", def.Name, st.iterations+1, err)
		}
		st.iterations++

		verdictApprove, feedback := r.evaluate(ctx, def, st)
		if verdictApprove {
			st.approved = true
			break
		}
		st.feedback = feedback

		if st.iterations >= ceiling {
			forced = true
			log.Printf("[crew] %s hit iteration ceiling %d without approval, forcing summary", runID, ceiling)
			break
		}

		if def.ReflectEnabled {
			r.reflect(ctx, def, st)
		}
	}

	res := &Result{
		Crew:         def.Name,
		Role:         def.Role,
		RunID:        runID,
		Artifact:     st.artifact,
		ArtifactType: def.ArtifactType,
		Approved:     st.approved,
		Forced:       forced,
		Iterations:   st.iterations,
		Reflected:    st.reflected,
		Execution:    st.execution,
	}
	res.Digest = summarize(res)

	if r.memory != nil {
		if err := r.memory.Store(ctx, runID, res.Digest, def.Name); err != nil {
			log.Printf("[crew] %s store observation: %v", runID, err)
		}
	}
	return res, nil
}

// propose asks the LLM for a draft, feeding back the previous review
// verdict and any reflection. The reflection is consumed exactly once.
func (r *Runner) propose(ctx context.Context, def Definition, st *loopState) error {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(st.instruction)
	if st.reflection != "" {
		sb.WriteString("\n\nRoot-cause analysis of the previous attempt:\n")
		sb.WriteString(st.reflection)
		st.reflection = ""
	}
	if st.feedback != "" {
		sb.WriteString("\n\nFeedback on the previous attempt:\n")
		sb.WriteString(st.feedback)
	}
	if st.artifact != "" {
		sb.WriteString("\n\nPrevious attempt:\n")
		sb.WriteString(st.artifact)
	}

	out, err := r.llm.Invoke(ctx, []ports.Message{{Role: "user", Content: sb.String()}}, def.ProposeSystem, "")
	if err != nil {
		return err
	}
	st.artifact = stripFences(out)
	return nil
}

// evaluate runs the execution side effect and the review stage for one
// iteration, returning the verdict and reject feedback. A sandbox
// failure is ground truth and short-circuits the LLM review entirely.
func (r *Runner) evaluate(ctx context.Context, def Definition, st *loopState) (bool, string) {
	if def.Executes && r.sandbox != nil {
		out, err := r.sandbox.Run(ctx, st.artifact)
		if err != nil {
			return false, fmt.Sprintf("Execution could not run: %v", err)
		}
		st.execution = out
		if !out.Succeeded || out.Stderr != "" {
			return false, "Execution failed:\n" + out.Stderr
		}
	}
	return r.review(ctx, def, st)
}

// reviewVerdict is the structured review output.
type reviewVerdict struct {
	Status           string `json:"status"`
	Feedback         string `json:"feedback"`
	StructuredReport string `json:"structured_report,omitempty"`
}

const reviewSchema = `{"type":"object","properties":{"status":{"enum":["approve","reject"]},"feedback":{"type":"string"},"structured_report":{"type":"string"}},"required":["status","feedback"]}`

// review asks the LLM for a structured verdict. A malformed response
// degrades to reject with system-authored feedback rather than
// crashing or silently approving.
func (r *Runner) review(ctx context.Context, def Definition, st *loopState) (bool, string) {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(st.instruction)
	sb.WriteString("\n\nDraft to review:\n")
	sb.WriteString(st.artifact)
	if st.execution != nil {
		fmt.Fprintf(&sb, "\n\nExecution stdout:\n%s", st.execution.Stdout)
		if len(st.execution.Images) > 0 {
			fmt.Fprintf(&sb, "\n\nThe run produced %d image file(s).", len(st.execution.Images))
		}
	}

	out, err := r.llm.Invoke(ctx, []ports.Message{{Role: "user", Content: sb.String()}}, def.ReviewSystem, reviewSchema)
	if err != nil {
		return false, fmt.Sprintf("Review call failed: %v. Revise the draft and try again.", err)
	}

	var verdict reviewVerdict
	if jsonErr := json.Unmarshal([]byte(stripFences(out)), &verdict); jsonErr != nil {
		return false, fmt.Sprintf("Review response was not valid JSON (%v). Revise the draft for clarity and correctness.", jsonErr)
	}
	if verdict.Status != "approve" {
		return false, verdict.Feedback
	}
	return true, ""
}

// reflect produces a root-cause narrative from the full evidence. Best
// effort; a failed reflection just means the next proposal sees only
// the raw feedback.
func (r *Runner) reflect(ctx context.Context, def Definition, st *loopState) {
	var sb strings.Builder
	sb.WriteString("Task: ")
	sb.WriteString(st.instruction)
	sb.WriteString("\n\nRejected draft:\n")
	sb.WriteString(st.artifact)
	sb.WriteString("\n\nReviewer feedback:\n")
	sb.WriteString(st.feedback)
	if st.execution != nil && st.execution.Stderr != "" {
		sb.WriteString("\n\nExecution stderr:\n")
		sb.WriteString(st.execution.Stderr)
	}

	out, err := r.llm.Invoke(ctx, []ports.Message{{Role: "user", Content: sb.String()}}, def.ReflectSystem, "")
	if err != nil {
		log.Printf("[crew] reflection failed: %v", err)
		return
	}
	st.reflection = out
	st.reflected = true
}

// summarize builds the compressed digest that crosses into the tree.
func summarize(res *Result) string {
	status := "rejected"
	if res.Approved {
		status = "approved"
	}
	note := fmt.Sprintf("%s produced (%d chars, %d iteration(s))", res.ArtifactType, len(res.Artifact), res.Iterations)
	if res.Execution != nil {
		if res.Execution.Succeeded {
			note += ", execution succeeded"
		} else {
			note += ", execution failed"
		}
		if n := len(res.Execution.Images); n > 0 {
			note += fmt.Sprintf(", %d image(s)", n)
		}
	}
	if res.Reflected {
		note += ", after reflection"
	}
	if res.Forced {
		return fmt.Sprintf("%s: %s (forced, unverified); %s", res.Role, status, note)
	}
	return fmt.Sprintf("%s: %s; %s", res.Role, status, note)
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
