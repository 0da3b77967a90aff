package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/imamik/stagehand/internal/migration"
	"github.com/imamik/stagehand/internal/util/naming"
)

func TestLaunch_SubmitsChain(t *testing.T) {
	clientset := useFakeCluster(t, newTestConfig())
	ctx := context.Background()

	require.NoError(t, Launch(ctx, "stagehand.yaml", "", ""))

	jobs, err := clientset.BatchV1().Jobs("apps").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, jobs.Items, 4)

	runID := migration.RunID("1.0.0", "1.4.2")
	_, err = clientset.CoreV1().ConfigMaps("apps").Get(ctx, naming.StatusRecord("shop", runID), metav1.GetOptions{})
	assert.NoError(t, err)
}

func TestLaunch_SecondLaunchIsNotAnError(t *testing.T) {
	clientset := useFakeCluster(t, newTestConfig())
	ctx := context.Background()

	require.NoError(t, Launch(ctx, "stagehand.yaml", "", ""))
	require.NoError(t, Launch(ctx, "stagehand.yaml", "", ""))

	jobs, err := clientset.BatchV1().Jobs("apps").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, jobs.Items, 4, "a repeated launch must not submit more jobs")
}

func TestLaunch_NoMigrationNeeded(t *testing.T) {
	cfg := newTestConfig()
	cfg.Migration.Enabled = false
	clientset := useFakeCluster(t, cfg)

	require.NoError(t, Launch(context.Background(), "stagehand.yaml", "", ""))
	assert.Empty(t, clientset.Actions())
}

func TestLaunch_ToVersionOverride(t *testing.T) {
	clientset := useFakeCluster(t, newTestConfig())
	ctx := context.Background()

	require.NoError(t, Launch(ctx, "stagehand.yaml", "2.0.0", ""))

	runID := migration.RunID("1.0.0", "2.0.0")
	_, err := clientset.CoreV1().ConfigMaps("apps").Get(ctx, naming.StatusRecord("shop", runID), metav1.GetOptions{})
	assert.NoError(t, err)
}

func TestCancel(t *testing.T) {
	clientset := useFakeCluster(t, newTestConfig())
	ctx := context.Background()

	require.NoError(t, Launch(ctx, "stagehand.yaml", "", ""))
	require.NoError(t, Cancel(ctx, "stagehand.yaml", "", ""))

	jobs, err := clientset.BatchV1().Jobs("apps").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs.Items)

	runID := migration.RunID("1.0.0", "1.4.2")
	cm, err := clientset.CoreV1().ConfigMaps("apps").Get(ctx, naming.StatusRecord("shop", runID), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "failed", cm.Data["status"])
	assert.Equal(t, "true", cm.Data["cancelRequested"])
}

func TestCancel_UnknownRun(t *testing.T) {
	useFakeCluster(t, newTestConfig())

	err := Cancel(context.Background(), "stagehand.yaml", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to cancel migration")
}
