package dist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLaunch_Environment(t *testing.T) {
	err := Launch(context.Background(), LaunchOptions{
		NProc: 2,
		Command: []string{"sh", "-c",
			`test "$WORLD_SIZE" = 2 && test "$RANK" = "$LOCAL_RANK" && test "$DIST_RUN_ID" = job-1 && test "$DIST_STORE_ADDR" = redis:6379`},
		RunID:     "job-1",
		StoreAddr: "redis:6379",
	})
	assert.NoError(t, err)
}

func TestLaunch_FailureKillsPeers(t *testing.T) {
	start := time.Now()
	err := Launch(context.Background(), LaunchOptions{
		NProc:   3,
		Command: []string{"sh", "-c", `if [ "$RANK" = 1 ]; then exit 3; fi; sleep 30`},
	})
	assert.ErrorContains(t, err, "worker 1")
	assert.Less(t, time.Since(start), 20*time.Second)
}

func TestLaunch_Options(t *testing.T) {
	assert.Error(t, Launch(context.Background(), LaunchOptions{NProc: 0, Command: []string{"true"}}))
	assert.Error(t, Launch(context.Background(), LaunchOptions{NProc: 1}))
	assert.Error(t, Launch(context.Background(), LaunchOptions{NProc: 1, Command: []string{"/nonexistent/worker"}}))
}
