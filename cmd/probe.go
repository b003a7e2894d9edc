package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/chargewatch/app"
	"github.com/kilianp07/chargewatch/config"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/infra/probe"
)

var recordStatus bool

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check broker and telemetry reachability of every inventoried charger",
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().BoolVar(&recordStatus, "record", false, "store the observed connection status")
	rootCmd.AddCommand(probeCmd)
}

// prober is satisfied by infra/probe.TCPProber.
type prober interface {
	Probe(ctx context.Context, addr string) bool
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var status store.StatusStore
	if recordStatus {
		status = st
	}
	return probeAll(ctx, cmd, st, probe.NewTCPProber(cfg.Probe.Timeout()), status)
}

func probeAll(ctx context.Context, cmd *cobra.Command, inv store.InventoryStore, p prober, status store.StatusStore) error {
	chargers, err := inv.ListChargers(ctx)
	if err != nil {
		return fmt.Errorf("list chargers: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBROKER\tMQTT\tTELEMETRY")
	for _, c := range chargers {
		st := model.ConnectionStatus{
			ChargerID:   c.ID,
			MQTTOK:      p.Probe(ctx, c.BrokerAddr()),
			TelemetryOK: p.Probe(ctx, c.TelemetryAddr()),
			UpdatedAt:   time.Now(),
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.BrokerAddr(), upDown(st.MQTTOK), upDown(st.TelemetryOK))
		if status != nil {
			if err := status.UpsertConnectionStatus(ctx, st); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "record status of charger %d: %v\n", c.ID, err)
			}
		}
	}
	return w.Flush()
}

func upDown(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}
