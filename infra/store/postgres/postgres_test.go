package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store/storetest"
	"github.com/kilianp07/chargewatch/internal/testutil"
)

func TestPostgresStoreContract(t *testing.T) {
	testutil.RequireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url, cleanup, err := testutil.StartPostgres(ctx)
	if err != nil {
		t.Skipf("unable to start postgres: %v", err)
	}
	defer cleanup()

	s, err := Connect(ctx, Config{URL: url, EnsureSchema: true})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx), "schema must be re-appliable")

	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		_, err := s.db.Exec(ctx, `truncate charger, charging_controller, connection_status, last_known_state, charging_session restart identity cascade`)
		require.NoError(t, err)
		return storetest.Fixture{
			Store: s,
			AddCharger: func(t *testing.T, c model.Charger) {
				_, err := s.db.Exec(ctx, `
					insert into charger (id, name, ip_address, mqtt_port, mqtt_user, password, rest_api_port)
					values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7)
				`, c.ID, c.Name, c.Address, c.MQTTPort, c.MQTTUser, c.MQTTPassword, c.TelemetryPort)
				require.NoError(t, err)
			},
			RemoveCharger: func(t *testing.T, id int64) {
				_, err := s.db.Exec(ctx, `delete from charger where id=$1`, id)
				require.NoError(t, err)
			},
			Sessions: func(t *testing.T, id string) []model.ChargingSession {
				out, err := s.Sessions(ctx, id)
				require.NoError(t, err)
				return out
			},
		}
	})
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "://nope"})
	require.Error(t, err)
}
