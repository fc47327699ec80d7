package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newUploadCmd(a *app) *cobra.Command {
	var file, bucket, object string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a portfolio file to GCS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bucket == "" {
				bucket = a.cfg.GCP.Bucket
			}
			if bucket == "" {
				return fmt.Errorf("--bucket is required (or set GCS_BUCKET)")
			}
			if object == "" {
				object = filepath.Base(file)
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			uri := fmt.Sprintf("gs://%s/%s", bucket, object)
			a.log.Info().Str("file", file).Str("uri", uri).Msg("Uploading file to GCS")

			if err := a.store.UploadFile(ctx, file, uri); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s\n", file, uri)
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Local file to upload")
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "GCS bucket name")
	cmd.Flags().StringVar(&object, "object", "", "Object name (default: file name)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
