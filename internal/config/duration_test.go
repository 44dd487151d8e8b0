package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type durations struct {
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

func TestDuration_YAML(t *testing.T) {
	var v durations
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 550ms\n"), &v))
	assert.Equal(t, 550*time.Millisecond, v.Timeout.Std())
	assert.Equal(t, int64(550), v.Timeout.Milliseconds())

	out, err := yaml.Marshal(durations{Timeout: NewDuration(40 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, "timeout: 40s\n", string(out))

	err = yaml.Unmarshal([]byte("timeout: soon\n"), &v)
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	var v durations
	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"5s"}`), &v))
	assert.Equal(t, 5*time.Second, v.Timeout.Std())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"5s"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"timeout":5}`), &v))
}

func TestDuration_Positive(t *testing.T) {
	assert.NoError(t, NewDuration(time.Millisecond).Positive())
	assert.Error(t, NewDuration(0).Positive())
	assert.Error(t, NewDuration(-time.Second).Positive())
}
