package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
)

type addrProber map[string]bool

func (p addrProber) Probe(_ context.Context, addr string) bool { return p[addr] }

func TestProbeAll(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutCharger(model.Charger{ID: 1, Name: "north", Address: "10.0.0.1", MQTTPort: 1883, TelemetryPort: 5555})
	st.PutCharger(model.Charger{ID: 2, Name: "south", Address: "10.0.0.2", MQTTPort: 1883, TelemetryPort: 5555})
	p := addrProber{"10.0.0.1:1883": true, "10.0.0.1:5555": true, "10.0.0.2:5555": true}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, probeAll(context.Background(), cmd, st, p, st))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"1", "north", "10.0.0.1:1883", "up", "up"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "south", "10.0.0.2:1883", "down", "up"}, strings.Fields(lines[2]))

	status, ok := st.ConnectionStatus(2)
	require.True(t, ok)
	assert.False(t, status.MQTTOK)
	assert.True(t, status.TelemetryOK)
}

func TestProbeAllWithoutRecording(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutCharger(model.Charger{ID: 1, Address: "10.0.0.1", MQTTPort: 1883, TelemetryPort: 5555})

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	require.NoError(t, probeAll(context.Background(), cmd, st, addrProber{}, nil))

	_, ok := st.ConnectionStatus(1)
	assert.False(t, ok)
}
