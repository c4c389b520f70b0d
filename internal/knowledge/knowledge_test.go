package knowledge

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

func TestRegisterResource_ByType(t *testing.T) {
	kb := New()

	kb.RegisterResource("ec2_instance", "i-001", map[string]any{"instance_type": "t2.micro"})

	byType := kb.GetResourcesByType("ec2_instance")
	require.Len(t, byType, 1)
	assert.Contains(t, byType, "i-001")
	assert.Equal(t, "t2.micro", byType["i-001"].Metadata["instance_type"])

	assert.NotNil(t, kb.GetResourcesByType("s3_bucket"))
	assert.Empty(t, kb.GetResourcesByType("s3_bucket"))
}

func TestRegisterResource_TypeChangeMovesIndex(t *testing.T) {
	kb := New()
	kb.RegisterResource("ec2_instance", "r-1", nil)
	kb.RegisterResource("s3_bucket", "r-1", nil)

	assert.Empty(t, kb.GetResourcesByType("ec2_instance"))
	assert.Contains(t, kb.GetResourcesByType("s3_bucket"), "r-1")
	assert.Equal(t, []string{"s3_bucket"}, kb.ResourceTypes())

	res, ok := kb.GetResource("r-1")
	require.True(t, ok)
	assert.Equal(t, "s3_bucket", res.Type)
}

func TestGetResource_ReturnsCopy(t *testing.T) {
	kb := New()
	meta := map[string]any{"region": "us-east-1"}
	kb.RegisterResource("s3_bucket", "b-1", meta)

	meta["region"] = "mutated"
	res, ok := kb.GetResource("b-1")
	require.True(t, ok)
	assert.Equal(t, "us-east-1", res.Metadata["region"])

	res.Metadata["region"] = "also-mutated"
	again, _ := kb.GetResource("b-1")
	assert.Equal(t, "us-east-1", again.Metadata["region"])

	_, ok = kb.GetResource("missing")
	assert.False(t, ok)
}

func TestRegisterDeployment(t *testing.T) {
	kb := New()
	stored := kb.RegisterDeployment(map[string]any{"id": "dep-1", "application": "web"})

	assert.Equal(t, "dep-1", stored["id"])
	assert.NotEmpty(t, stored["created_at"])

	deps := kb.Deployments()
	require.Len(t, deps, 1)
	assert.Equal(t, "web", deps[0]["application"])

	deps[0]["application"] = "changed"
	assert.Equal(t, "web", kb.Deployments()[0]["application"])
}

func TestAgentMemory(t *testing.T) {
	kb := New()

	assert.Equal(t, "fallback", kb.GetAgentMemory(models.AgentTypeDeployment, "last", "fallback"))

	kb.UpdateAgentMemory(models.AgentTypeDeployment, "last", "dep-1")
	assert.Equal(t, "dep-1", kb.GetAgentMemory(models.AgentTypeDeployment, "last", nil))
	assert.Nil(t, kb.GetAgentMemory(models.AgentTypeMonitoring, "last", nil))
}

func TestExecutionHistory(t *testing.T) {
	kb := New()
	plan := models.NewExecutionPlan("plan-1", "n", "d", []*models.AgentTask{
		models.NewAgentTask("plan-1-task-0", models.AgentTypeInfrastructure, "x", nil),
	})
	plan.Start()
	kb.AddExecutionPlan(plan)

	// Later changes to the live plan do not leak into history.
	plan.MarkCompleted()

	found, ok := kb.FindExecutionPlan("plan-1")
	require.True(t, ok)
	assert.Equal(t, models.PlanStatusRunning, found.Status)

	_, ok = kb.FindExecutionPlan("plan-2")
	assert.False(t, ok)

	kb.AddExecutionPlan(plan)
	history := kb.ExecutionHistory()
	require.Len(t, history, 2)

	latest, _ := kb.FindExecutionPlan("plan-1")
	assert.Equal(t, models.PlanStatusCompleted, latest.Status)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	kb := Open(path)

	kb.RegisterResource("ec2_instance", "i-1", map[string]any{"region": "us-west-2"})
	kb.RegisterResource("s3_bucket", "b-1", map[string]any{"acl": "private"})
	kb.RegisterDeployment(map[string]any{"id": "dep-1"})
	kb.UpdateAgentMemory(models.AgentTypeMonitoring, "dashboards", 2)

	// Mutations flush on their own; no explicit Save needed.
	reloaded := Open(path)

	assert.Equal(t, kb.Resources(), reloaded.Resources())
	assert.Equal(t, kb.ResourceTypes(), reloaded.ResourceTypes())
	assert.Len(t, reloaded.Deployments(), 1)
	// JSON numbers decode as float64.
	assert.Equal(t, float64(2), reloaded.GetAgentMemory(models.AgentTypeMonitoring, "dashboards", nil))
	assert.Empty(t, reloaded.ExecutionHistory())
}

func TestSaveLoad_RandomIndexRebuild(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := []string{"ec2_instance", "s3_bucket", "vpc", "subnet"}

	for trial := 0; trial < 25; trial++ {
		path := filepath.Join(t.TempDir(), fmt.Sprintf("kb-%d.json", trial))
		kb := New(WithPath(path))

		for i := 0; i < 1+rng.Intn(30); i++ {
			id := fmt.Sprintf("r-%d", rng.Intn(10))
			kb.RegisterResource(types[rng.Intn(len(types))], id, map[string]any{"n": fmt.Sprint(i)})
		}
		require.NoError(t, kb.Save())

		fresh := New(WithPath(path))
		require.NoError(t, fresh.Load())

		assert.Equal(t, kb.Resources(), fresh.Resources(), "trial %d", trial)
		for _, typ := range types {
			assert.Equal(t, kb.GetResourcesByType(typ), fresh.GetResourcesByType(typ), "trial %d type %s", trial, typ)
		}
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	kb := Open(filepath.Join(t.TempDir(), "nested", "kb.json"))
	assert.Empty(t, kb.Resources())
	assert.Empty(t, kb.Deployments())
}

func TestOpen_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	core, logs := observer.New(zap.WarnLevel)
	kb := Open(path, WithLogger(zap.New(core)))
	require.NotNil(t, kb)
	assert.Empty(t, kb.Resources())
	assert.Equal(t, 1, logs.FilterMessage("knowledge base not loaded, starting empty").Len())

	// The store stays usable and the next mutation replaces the bad file.
	kb.RegisterResource("ec2_instance", "i-1", nil)
	reloaded := New(WithPath(path))
	require.NoError(t, reloaded.Load())
	assert.Len(t, reloaded.Resources(), 1)
}

func TestLoad_CorruptFileReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	kb := New(WithPath(path))
	assert.Error(t, kb.Load())
}

func TestOpen_NullAgentMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	doc := `{"resources": {}, "deployments": [], "agent_memories": {"deployment": null}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	kb := Open(path)
	assert.NotPanics(t, func() {
		kb.UpdateAgentMemory(models.AgentTypeDeployment, "last", "dep-1")
	})
	assert.Equal(t, "dep-1", kb.GetAgentMemory(models.AgentTypeDeployment, "last", nil))
	assert.Equal(t, 1, kb.IncrementAgentCounter(models.AgentTypeDeployment, "count"))
}

func TestIncrementAgentCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	kb := Open(path)

	assert.Equal(t, 1, kb.IncrementAgentCounter(models.AgentTypeMonitoring, "dashboards"))
	assert.Equal(t, 2, kb.IncrementAgentCounter(models.AgentTypeMonitoring, "dashboards"))

	// Reloaded counters are JSON floats and keep counting.
	reloaded := Open(path)
	assert.Equal(t, 3, reloaded.IncrementAgentCounter(models.AgentTypeMonitoring, "dashboards"))

	kb.UpdateAgentMemory(models.AgentTypeCost, "label", "not a number")
	assert.Equal(t, 1, kb.IncrementAgentCounter(models.AgentTypeCost, "label"))
}

func TestIncrementAgentCounter_Concurrent(t *testing.T) {
	kb := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				kb.IncrementAgentCounter(models.AgentTypeMonitoring, "dashboards")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, kb.GetAgentMemory(models.AgentTypeMonitoring, "dashboards", 0))
}

func TestSave_NoPath(t *testing.T) {
	kb := New()
	assert.ErrorIs(t, kb.Save(), ErrNoPath)
	assert.ErrorIs(t, kb.Load(), ErrNoPath)
}

func TestFlushFailureKeepsMemoryState(t *testing.T) {
	dir := t.TempDir()
	// A directory where the file should be makes the rename fail.
	path := filepath.Join(dir, "kb.json")
	require.NoError(t, os.Mkdir(path, 0755))

	kb := New(WithPath(path))
	kb.RegisterResource("vpc", "vpc-1", nil)

	_, ok := kb.GetResource("vpc-1")
	assert.True(t, ok)
	assert.Error(t, kb.Save())
}

func TestConcurrentAccess(t *testing.T) {
	kb := New()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				kb.RegisterResource("ec2_instance", id, nil)
				kb.RegisterDeployment(map[string]any{"id": id})
				kb.UpdateAgentMemory(models.AgentTypeDeployment, "last", id)
				_ = kb.GetResourcesByType("ec2_instance")
				_ = kb.Deployments()
			}
		}(w)
	}
	wg.Wait()

	assert.Len(t, kb.GetResourcesByType("ec2_instance"), 400)
	assert.Len(t, kb.Deployments(), 400)
}
