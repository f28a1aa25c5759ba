package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/locker"
)

// withApp opens the application for a one-shot command.
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), cfg, logger, hardware.DefaultDrivers())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func parseLockerID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid locker id %q", s)
	}
	return id, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show occupancy and door state of every locker",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		report, err := a.svc.Status(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if report.Hardware.Simulated {
			fmt.Fprintln(out, "hardware: simulated", report.Hardware.FallbackReason)
		}
		if report.SensorError != "" {
			fmt.Fprintln(out, "sensors unavailable:", report.SensorError)
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LOCKER\tOCCUPIED\tDOOR")
		for _, l := range report.Lockers {
			door := "open"
			if l.DoorClosed {
				door = "closed"
			}
			fmt.Fprintf(w, "%d\t%t\t%s\n", l.ID, l.Occupied, door)
		}
		return w.Flush()
	}),
}

var depositCmd = &cobra.Command{
	Use:   "deposit <locker-id>",
	Short: "Open an empty locker and issue a pickup code",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseLockerID(args[0])
		if err != nil {
			return err
		}
		res, err := a.svc.Deposit(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "locker %d code %s (expires %s)\n", res.LockerID, res.Code, res.ExpiresAt.Format("2006-01-02 15:04"))
		return nil
	}),
}

var pickupCmd = &cobra.Command{
	Use:   "pickup <code>",
	Short: "Open the locker holding a code",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		res, err := a.svc.Pickup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "locker %d opened\n", res.LockerID)
		return nil
	}),
}

var closeDoorCmd = &cobra.Command{
	Use:   "close-door <locker-id>",
	Short: "Close a simulated door",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseLockerID(args[0])
		if err != nil {
			return err
		}
		return a.svc.ForceClose(cmd.Context(), id)
	}),
}

var configureFlags struct {
	kind     string
	actuator int
	sensor   int
	special  string
}

var configureCmd = &cobra.Command{
	Use:   "configure <locker-id>",
	Short: "Rewire a locker or set its special code",
	Long: `Rewire a locker. The new mapping is checked against the whole fleet before
it takes effect. Use --sensor -1 for no sensor and --special "" to clear the
special code.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := parseLockerID(args[0])
		if err != nil {
			return err
		}
		req := locker.ReconfigureRequest{
			LockerID:    id,
			BackendKind: configureFlags.kind,
			ActuatorPin: configureFlags.actuator,
		}
		if configureFlags.sensor >= 0 {
			s := configureFlags.sensor
			req.SensorPin = &s
		}
		if cmd.Flags().Changed("special") {
			sc := configureFlags.special
			req.SpecialCode = &sc
		}
		l, err := a.svc.Reconfigure(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "locker %d now %s actuator %d\n", l.ID, l.BackendKind, l.ActuatorPin)
		return nil
	}),
}

func init() {
	f := configureCmd.Flags()
	f.StringVar(&configureFlags.kind, "kind", "", "backend kind: direct or expander")
	f.IntVar(&configureFlags.actuator, "actuator", 0, "actuator BCM pin or expander relay index")
	f.IntVar(&configureFlags.sensor, "sensor", -1, "sensor BCM pin or expander sensor index")
	f.StringVar(&configureFlags.special, "special", "", "special code")
	configureCmd.MarkFlagRequired("kind")
	configureCmd.MarkFlagRequired("actuator")

	rootCmd.AddCommand(statusCmd, depositCmd, pickupCmd, closeDoorCmd, configureCmd)
}
