package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"avatarbot/internal/avatar"
	"avatarbot/internal/colorspec"
)

func (a *app) renderCommand() *cobra.Command {
	var (
		colorSpec string
		team      string
		photo     string
		out       string
		blur      bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an avatar to a PNG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var rgb colorspec.RGB
			if team != "" {
				store, err := a.store()
				if err != nil {
					return err
				}
				color, err := store.Get(cmd.Context(), team)
				if err != nil {
					return err
				}
				rgb = color.RGB()
			} else {
				parsed, err := colorspec.Parse([]string{colorSpec})
				if err != nil {
					return err
				}
				rgb = parsed
			}

			var src []byte
			if photo != "" {
				data, err := os.ReadFile(photo)
				if err != nil {
					return fmt.Errorf("read photo: %w", err)
				}
				src = data
			}

			png, err := avatar.New(avatar.Options{Blur: blur}).Compose(src, rgb)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(a.out, "Wrote %s (%s)\n", out, rgb.Hex())
			return nil
		},
	}

	cmd.Flags().StringVar(&colorSpec, "color", "", "Ring colour, in any format /set accepts")
	cmd.Flags().StringVar(&team, "team", "", "Use the stored colour of this palette entry")
	cmd.Flags().StringVar(&photo, "photo", "", "Picture to decorate; omit for a flat square")
	cmd.Flags().StringVar(&out, "out", "", "Output PNG path")
	cmd.Flags().BoolVar(&blur, "blur", true, "Soften the ring edge")
	cmd.MarkFlagsMutuallyExclusive("color", "team")
	cmd.MarkFlagsOneRequired("color", "team")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
