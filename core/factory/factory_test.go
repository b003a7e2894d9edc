package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	url     string
	timeout time.Duration
}

type sinkConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

func sinkFactory(conf map[string]any) (*sink, error) {
	var c sinkConf
	if err := Decode(conf, &c); err != nil {
		return nil, err
	}
	return &sink{url: c.URL, timeout: c.Timeout}, nil
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*sink]()
	require.NoError(t, reg.Register("Influx", sinkFactory))

	s, err := reg.Create(ModuleConfig{Type: " influx", Conf: map[string]any{
		"url":     "http://influx:8086",
		"timeout": "2s",
	}})
	require.NoError(t, err)
	assert.Equal(t, "http://influx:8086", s.url)
	assert.Equal(t, 2*time.Second, s.timeout)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[*sink]()
	require.NoError(t, reg.Register("influx", sinkFactory))
	require.NoError(t, reg.Register("nop", func(map[string]any) (*sink, error) { return &sink{}, nil }))

	assert.Error(t, reg.Register("INFLUX", sinkFactory), "duplicate")
	assert.Error(t, reg.Register("other", nil), "nil factory")
	assert.Error(t, reg.Register("  ", sinkFactory), "empty name")

	_, err := reg.Create(ModuleConfig{Type: "prometheus"})
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "influx, nop")

	_, err = reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"bucket": "x"}})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownType))
	assert.Contains(t, err.Error(), "influx:")
}

func TestDecodeWeakTypes(t *testing.T) {
	var c sinkConf
	require.NoError(t, Decode(map[string]any{"retries": "3", "timeout": "1m"}, &c))
	assert.Equal(t, 3, c.Retries)
	assert.Equal(t, time.Minute, c.Timeout)

	assert.Error(t, Decode(map[string]any{"timeout": "soon"}, &c))
}

func TestNames(t *testing.T) {
	reg := NewRegistry[int]()
	assert.Empty(t, reg.Names())
	require.NoError(t, reg.Register("b", func(map[string]any) (int, error) { return 0, nil }))
	require.NoError(t, reg.Register("a", func(map[string]any) (int, error) { return 0, nil }))
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}
