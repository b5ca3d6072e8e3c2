package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"zvision-console/internal/model"
)

func (a *app) camerasCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cameras",
		Aliases: []string{"camera"},
		Short:   "Manage cameras",
	}
	cmd.AddCommand(a.camerasListCommand(), a.camerasGetCommand(), a.camerasRegisterCommand(), a.camerasDeleteCommand())
	return cmd
}

func (a *app) camerasListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered cameras",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			cams, err := api.ListCameras(cmd.Context())
			if err != nil {
				return explain(err, "Failed to load cameras")
			}
			if a.jsonOut {
				return a.printJSON(cams)
			}
			if len(cams) == 0 {
				fmt.Fprintln(a.out, "No cameras registered yet.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tLOCATION\tSTATUS\tSTREAM")
			fmt.Fprintln(w, "--\t--------\t------\t------")
			for _, cam := range cams {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cam.ID, dash(cam.Location), dash(cam.Status), dash(cam.StreamURL))
			}
			return w.Flush()
		},
	}
}

func (a *app) camerasGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one camera with all its attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			cam, err := api.GetCamera(cmd.Context(), args[0])
			if err != nil {
				return explain(err, "Failed to load camera details")
			}
			if a.jsonOut {
				return a.printJSON(cam)
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%s\n", cam.ID)
			fmt.Fprintf(w, "Location:\t%s\n", dash(cam.Location))
			fmt.Fprintf(w, "Status:\t%s\n", dash(cam.Status))
			fmt.Fprintf(w, "Last seen:\t%s\n", dash(cam.LastSeen))
			fmt.Fprintf(w, "ROI:\t%s\n", dash(cam.ROI))
			fmt.Fprintf(w, "Stream URL:\t%s\n", dash(cam.StreamURL))
			for _, k := range cam.ExtraKeys() {
				fmt.Fprintf(w, "%s:\t%s\n", model.HumanizeKey(k), cam.Extra[k].Display())
			}
			return w.Flush()
		},
	}
}

func (a *app) camerasRegisterCommand() *cobra.Command {
	var req model.RegisterCameraRequest
	cmd := &cobra.Command{
		Use:   "register <id>",
		Short: "Register a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.CameraID = args[0]
			api, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := api.RegisterCamera(cmd.Context(), req); err != nil {
				if errors.Is(err, model.ErrCameraIDRequired) {
					return err
				}
				return explain(err, "Failed to register camera")
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"registered": req.CameraID})
			}
			fmt.Fprintf(a.out, "Camera %s registered.\n", req.CameraID)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Config.Location, "location", "", "where the camera is mounted")
	cmd.Flags().StringVar(&req.Config.ROI, "roi", "", "region of interest")
	cmd.Flags().StringVar(&req.Config.StreamURL, "stream-url", "", "stream URL")
	return cmd
}

func (a *app) camerasDeleteCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a camera",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			api, err := a.authed(cmd.Context())
			if err != nil {
				return err
			}
			if err := api.DeleteCamera(cmd.Context(), args[0]); err != nil {
				return explain(err, "Failed to delete camera")
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"deleted": args[0]})
			}
			fmt.Fprintf(a.out, "Camera %s deleted.\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func dash(s string) string {
	return lo.Ternary(s == "", "-", s)
}
