package v1

// Reserved workflow identities. These are control values, not catalog
// entries: "none" means no workflow is selected, "custom" identifies a
// user-supplied workflow source.
const (
	WorkflowIDNone   = "none"
	WorkflowIDCustom = "custom"
)

// DefaultWorkflowBranch is used when a workflow source omits the branch.
const DefaultWorkflowBranch = "main"

// WorkflowConfig describes a workflow that can be applied to a session:
// a git repository location plus catalog metadata. Instances are
// immutable once constructed.
type WorkflowConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	GitURL      string `json:"gitUrl"`
	Branch      string `json:"branch"`
	Path        string `json:"path"`
	Enabled     bool   `json:"enabled"`
}

// NewCustomWorkflow builds a workflow config for a user-supplied source.
// An empty branch defaults to "main"; custom workflows are always enabled.
func NewCustomWorkflow(gitURL, branch, path string) *WorkflowConfig {
	if branch == "" {
		branch = DefaultWorkflowBranch
	}
	return &WorkflowConfig{
		ID:      WorkflowIDCustom,
		Name:    "Custom workflow",
		GitURL:  gitURL,
		Branch:  branch,
		Path:    path,
		Enabled: true,
	}
}

// WorkflowSelection is the body of the remote activation call.
type WorkflowSelection struct {
	GitURL string `json:"gitUrl"`
	Branch string `json:"branch,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Selection returns the activation call body for this workflow.
func (w *WorkflowConfig) Selection() WorkflowSelection {
	return WorkflowSelection{
		GitURL: w.GitURL,
		Branch: w.Branch,
		Path:   w.Path,
	}
}

// QueuedWorkflow is the descriptor persisted when activation is deferred
// until the session becomes ready. It carries exactly the fields needed
// to re-apply the workflow later.
type QueuedWorkflow struct {
	ID     string `json:"id"`
	GitURL string `json:"gitUrl"`
	Branch string `json:"branch"`
	Path   string `json:"path"`
}

// Queued returns the queue descriptor for this workflow.
func (w *WorkflowConfig) Queued() QueuedWorkflow {
	return QueuedWorkflow{
		ID:     w.ID,
		GitURL: w.GitURL,
		Branch: w.Branch,
		Path:   w.Path,
	}
}

// Workflow rebuilds a workflow config from a queued descriptor. Queued
// descriptors were enabled at queue time, so the result is enabled.
func (q QueuedWorkflow) Workflow() *WorkflowConfig {
	return &WorkflowConfig{
		ID:      q.ID,
		GitURL:  q.GitURL,
		Branch:  q.Branch,
		Path:    q.Path,
		Enabled: true,
	}
}
