// Package catalog holds the set of workflows that can be applied to sessions.
package catalog

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/crewdev/crewdev/internal/common/config"
	"github.com/crewdev/crewdev/internal/common/logger"
	v1 "github.com/crewdev/crewdev/pkg/api/v1"
)

var (
	// ErrWorkflowNotFound is returned when an identity has no catalog entry.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrReservedID is returned when registering a workflow under a reserved identity.
	ErrReservedID = errors.New("workflow id is reserved")
)

// Catalog is an in-memory store of workflow configs keyed by identity.
// Entries are immutable once registered; Register replaces any prior
// entry under the same identity.
type Catalog struct {
	mu        sync.RWMutex
	workflows map[string]*v1.WorkflowConfig
	logger    *logger.Logger
}

// NewCatalog creates an empty catalog.
func NewCatalog(log *logger.Logger) *Catalog {
	return &Catalog{
		workflows: make(map[string]*v1.WorkflowConfig),
		logger:    log.WithFields(zap.String("component", "workflow_catalog")),
	}
}

// Register adds a workflow to the catalog. The reserved identities
// "none" and "custom" cannot be registered.
func (c *Catalog) Register(wf *v1.WorkflowConfig) error {
	if wf.ID == v1.WorkflowIDNone || wf.ID == v1.WorkflowIDCustom {
		return ErrReservedID
	}

	cp := *wf
	if cp.Branch == "" {
		cp.Branch = v1.DefaultWorkflowBranch
	}

	c.mu.Lock()
	c.workflows[cp.ID] = &cp
	c.mu.Unlock()

	c.logger.Debug("registered workflow",
		zap.String("workflow_id", cp.ID),
		zap.Bool("enabled", cp.Enabled))
	return nil
}

// Get returns the workflow registered under id, or ErrWorkflowNotFound.
func (c *Catalog) Get(id string) (*v1.WorkflowConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wf, ok := c.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	cp := *wf
	return &cp, nil
}

// List returns all registered workflows ordered by identity.
func (c *Catalog) List() []*v1.WorkflowConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*v1.WorkflowConfig, 0, len(c.workflows))
	for _, wf := range c.workflows {
		cp := *wf
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len returns the number of registered workflows.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.workflows)
}

// LoadFromConfig seeds the catalog from the configured workflow entries.
// Invalid entries are skipped with a warning rather than failing startup.
func (c *Catalog) LoadFromConfig(cfg config.CatalogConfig) {
	for _, entry := range cfg.Workflows {
		if entry.ID == "" || entry.GitURL == "" {
			c.logger.Warn("skipping catalog entry without id or gitUrl",
				zap.String("workflow_id", entry.ID))
			continue
		}
		wf := &v1.WorkflowConfig{
			ID:          entry.ID,
			Name:        entry.Name,
			Description: entry.Description,
			GitURL:      entry.GitURL,
			Branch:      entry.Branch,
			Path:        entry.Path,
			Enabled:     entry.Enabled,
		}
		if err := c.Register(wf); err != nil {
			c.logger.Warn("skipping catalog entry",
				zap.String("workflow_id", entry.ID),
				zap.Error(err))
		}
	}
	c.logger.Info("workflow catalog loaded", zap.Int("workflows", c.Len()))
}
