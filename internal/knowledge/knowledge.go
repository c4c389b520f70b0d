// Package knowledge provides the shared store of resources, deployments and
// per-agent memory that agents read and write while executing plans.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ErrNoPath is returned by Save and Load when the store has no backing file.
var ErrNoPath = errors.New("knowledge base has no path")

// Resource is a piece of infrastructure an agent registered.
type Resource struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Deployment is a deployment record. Records are append-only and always carry
// a created_at timestamp.
type Deployment map[string]any

// document is the on-disk layout.
type document struct {
	Resources     map[string]Resource                `json:"resources"`
	Deployments   []Deployment                       `json:"deployments"`
	AgentMemories map[models.AgentType]map[string]any `json:"agent_memories"`
}

// Option configures a KnowledgeBase.
type Option func(*KnowledgeBase)

// WithLogger sets the logger used to report flush failures.
func WithLogger(logger *zap.Logger) Option {
	return func(kb *KnowledgeBase) {
		if logger != nil {
			kb.logger = logger
		}
	}
}

// WithPath sets the JSON file the store is persisted to.
func WithPath(path string) Option {
	return func(kb *KnowledgeBase) {
		kb.path = path
	}
}

// KnowledgeBase is safe for concurrent use. A single mutex guards all state and
// every exported method holds it for its whole body; exported methods never
// call each other, they share the *Locked helpers instead.
type KnowledgeBase struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger

	resources   map[string]Resource
	byType      map[string]map[string]struct{}
	deployments []Deployment
	memories    map[models.AgentType]map[string]any
	history     []*models.ExecutionPlan

	now func() time.Time
}

// New creates an empty in-memory store. With WithPath set, mutations are
// flushed to disk but nothing is loaded; use Open to hydrate from a file.
func New(opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{
		logger:    zap.NewNop(),
		resources: make(map[string]Resource),
		byType:    make(map[string]map[string]struct{}),
		memories:  make(map[models.AgentType]map[string]any),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Open creates a store backed by path and loads it when the file exists.
// A missing, unreadable or corrupt file yields an empty store; read and
// decode failures are logged.
func Open(path string, opts ...Option) *KnowledgeBase {
	kb := New(append(opts, WithPath(path))...)
	if err := kb.Load(); err != nil {
		kb.logger.Warn("knowledge base not loaded, starting empty",
			zap.String("path", path), zap.Error(err))
	}
	return kb
}

// Path returns the backing file, or "" for an in-memory store.
func (kb *KnowledgeBase) Path() string {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.path
}

// RegisterResource inserts or overwrites a resource and keeps the type index
// in step. If the id was previously registered under another type it is
// removed from that bucket.
func (kb *KnowledgeBase) RegisterResource(resourceType, id string, metadata map[string]any) Resource {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if prev, ok := kb.resources[id]; ok && prev.Type != resourceType {
		kb.unindexLocked(prev.Type, id)
	}

	res := Resource{
		Type:      resourceType,
		ID:        id,
		Metadata:  copyMap(metadata),
		CreatedAt: kb.now().UTC(),
	}
	kb.resources[id] = res
	kb.indexLocked(resourceType, id)
	kb.flushLocked()

	return cloneResource(res)
}

// GetResource returns a copy of the resource with the given id.
func (kb *KnowledgeBase) GetResource(id string) (Resource, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	res, ok := kb.resources[id]
	if !ok {
		return Resource{}, false
	}
	return cloneResource(res), true
}

// GetResourcesByType returns copies of all resources of one type keyed by id.
// The map is empty, never nil, when the type is unknown.
func (kb *KnowledgeBase) GetResourcesByType(resourceType string) map[string]Resource {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make(map[string]Resource, len(kb.byType[resourceType]))
	for id := range kb.byType[resourceType] {
		out[id] = cloneResource(kb.resources[id])
	}
	return out
}

// Resources returns copies of every resource keyed by id.
func (kb *KnowledgeBase) Resources() map[string]Resource {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make(map[string]Resource, len(kb.resources))
	for id, res := range kb.resources {
		out[id] = cloneResource(res)
	}
	return out
}

// ResourceTypes returns the known resource types, sorted.
func (kb *KnowledgeBase) ResourceTypes() []string {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	types := make([]string, 0, len(kb.byType))
	for t, ids := range kb.byType {
		if len(ids) > 0 {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

// RegisterDeployment appends a timestamped copy of info and returns it.
func (kb *KnowledgeBase) RegisterDeployment(info map[string]any) Deployment {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	record := Deployment(copyMap(info))
	record["created_at"] = kb.now().UTC().Format(time.RFC3339Nano)
	kb.deployments = append(kb.deployments, record)
	kb.flushLocked()

	return Deployment(copyMap(record))
}

// Deployments returns copies of all deployment records in insertion order.
func (kb *KnowledgeBase) Deployments() []Deployment {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make([]Deployment, len(kb.deployments))
	for i, d := range kb.deployments {
		out[i] = Deployment(copyMap(d))
	}
	return out
}

// UpdateAgentMemory stores a value in the agent's scratch pad.
func (kb *KnowledgeBase) UpdateAgentMemory(agentType models.AgentType, key string, value any) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	kb.memoryLocked(agentType)[key] = value
	kb.flushLocked()
}

// IncrementAgentCounter adds one to a numeric value in the agent's scratch
// pad and returns the new value. A missing or non-numeric value counts as 0.
func (kb *KnowledgeBase) IncrementAgentCounter(agentType models.AgentType, key string) int {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	mem := kb.memoryLocked(agentType)
	n := counterValue(mem[key]) + 1
	mem[key] = n
	kb.flushLocked()
	return n
}

func (kb *KnowledgeBase) memoryLocked(agentType models.AgentType) map[string]any {
	mem := kb.memories[agentType]
	if mem == nil {
		mem = make(map[string]any)
		kb.memories[agentType] = mem
	}
	return mem
}

// counterValue reads counters stored as ints or decoded from JSON as floats.
func counterValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// GetAgentMemory returns a value from the agent's scratch pad, or def when
// the key is absent.
func (kb *KnowledgeBase) GetAgentMemory(agentType models.AgentType, key string, def any) any {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if v, ok := kb.memories[agentType][key]; ok {
		return v
	}
	return def
}

// AddExecutionPlan appends a snapshot of the plan to the in-memory history.
// History is not persisted.
func (kb *KnowledgeBase) AddExecutionPlan(plan *models.ExecutionPlan) {
	snap := plan.Snapshot()

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.history = append(kb.history, snap)
}

// ExecutionHistory returns copies of archived plans, oldest first.
func (kb *KnowledgeBase) ExecutionHistory() []*models.ExecutionPlan {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	out := make([]*models.ExecutionPlan, len(kb.history))
	for i, p := range kb.history {
		out[i] = p.Snapshot()
	}
	return out
}

// FindExecutionPlan returns the most recent archived plan with the given id.
func (kb *KnowledgeBase) FindExecutionPlan(id string) (*models.ExecutionPlan, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for i := len(kb.history) - 1; i >= 0; i-- {
		if kb.history[i].ID == id {
			return kb.history[i].Snapshot(), true
		}
	}
	return nil, false
}

// Save writes resources, deployments and agent memories to the backing file.
func (kb *KnowledgeBase) Save() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.saveLocked()
}

// Load replaces resources, deployments and agent memories with the contents
// of the backing file and rebuilds the type index. A missing file leaves the
// store unchanged.
func (kb *KnowledgeBase) Load() error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.loadLocked()
}

func (kb *KnowledgeBase) saveLocked() error {
	if kb.path == "" {
		return ErrNoPath
	}

	doc := document{
		Resources:     kb.resources,
		Deployments:   kb.deployments,
		AgentMemories: kb.memories,
	}
	if doc.Deployments == nil {
		doc.Deployments = []Deployment{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode knowledge base: %w", err)
	}

	dir := filepath.Dir(kb.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create knowledge directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".knowledge-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write knowledge base: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, kb.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace knowledge base: %w", err)
	}
	return nil
}

func (kb *KnowledgeBase) loadLocked() error {
	if kb.path == "" {
		return ErrNoPath
	}

	data, err := os.ReadFile(kb.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read knowledge base: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode knowledge base %s: %w", kb.path, err)
	}

	kb.resources = make(map[string]Resource, len(doc.Resources))
	kb.byType = make(map[string]map[string]struct{})
	for id, res := range doc.Resources {
		// The map key is authoritative for the id.
		res.ID = id
		kb.resources[id] = res
		kb.indexLocked(res.Type, id)
	}
	kb.deployments = doc.Deployments
	kb.memories = make(map[models.AgentType]map[string]any, len(doc.AgentMemories))
	for t, mem := range doc.AgentMemories {
		if mem != nil {
			kb.memories[t] = mem
		}
	}
	return nil
}

// flushLocked persists the store when it has a path. Failures are logged and
// swallowed: the in-memory state stays authoritative.
func (kb *KnowledgeBase) flushLocked() {
	if kb.path == "" {
		return
	}
	if err := kb.saveLocked(); err != nil {
		kb.logger.Warn("knowledge base flush failed",
			zap.String("path", kb.path),
			zap.Error(err),
		)
	}
}

func (kb *KnowledgeBase) indexLocked(resourceType, id string) {
	ids, ok := kb.byType[resourceType]
	if !ok {
		ids = make(map[string]struct{})
		kb.byType[resourceType] = ids
	}
	ids[id] = struct{}{}
}

func (kb *KnowledgeBase) unindexLocked(resourceType, id string) {
	ids, ok := kb.byType[resourceType]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(kb.byType, resourceType)
	}
}

func cloneResource(r Resource) Resource {
	r.Metadata = copyMap(r.Metadata)
	return r
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
