package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"zvision-console/internal/detection"
	"zvision-console/internal/stream"
)

func (a *app) streamCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stream <id>",
		Short: "Resolve a camera's stream URL and format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, err := a.authed(ctx)
			if err != nil {
				return err
			}
			cam, err := api.GetCamera(ctx, args[0])
			if err != nil {
				return explain(err, "Failed to load camera details")
			}
			desc, err := stream.Resolver{Lookup: api}.Resolve(ctx, cam)
			switch {
			case desc.Found():
			case err != nil:
				return explain(err, stream.MsgUnavailable)
			default:
				return errors.New(stream.MsgNoStream)
			}

			if a.jsonOut {
				return a.printJSON(desc)
			}
			fmt.Fprintf(a.out, "%s (%s)\n", desc.URL, desc.Kind)
			return nil
		},
	}
}

func (a *app) detectionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detection",
		Short: "Inspect or control a camera's detection",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <id>",
			Short: "Show whether detection is running",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := a.authed(cmd.Context())
				if err != nil {
					return err
				}
				st, err := detection.NewToggle().Refresh(cmd.Context(), api, args[0])
				if err != nil {
					return explain(err, "Failed to read detection status")
				}
				return a.printDetection(args[0], st)
			},
		},
		a.detectionSetCommand("start", true),
		a.detectionSetCommand("stop", false),
	)
	return cmd
}

func (a *app) detectionSetCommand(use string, desired bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: use + " detection on a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			st, err := detection.NewToggle().Set(cmd.Context(), api, args[0], desired)
			if err != nil {
				var derr *detection.Error
				if errors.As(err, &derr) {
					return derr
				}
				return explain(err, "Detection request failed")
			}
			return a.printDetection(args[0], st)
		},
	}
}

func (a *app) printDetection(id string, st detection.State) error {
	if a.jsonOut {
		return a.printJSON(map[string]any{"camera": id, "state": st})
	}
	switch {
	case !st.Available:
		fmt.Fprintln(a.out, detection.MsgNotAvailable)
	case st.Running:
		fmt.Fprintf(a.out, "Detection on %s is running.\n", id)
	default:
		fmt.Fprintf(a.out, "Detection on %s is stopped.\n", id)
	}
	return nil
}
