package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	info := Get()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestInfo_Short(t *testing.T) {
	info := Info{Version: "1.2.3", Commit: "abc1234"}
	assert.Equal(t, "1.2.3 (abc1234)", info.Short())
}

func TestInfo_HealthPayloadShape(t *testing.T) {
	// The health endpoint embeds Info directly; the JSON keys are its contract.
	data, err := json.Marshal(Get())
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(data, &payload))
	for _, key := range []string{"version", "commit", "build_time", "go_version"} {
		assert.Contains(t, payload, key)
	}
}
