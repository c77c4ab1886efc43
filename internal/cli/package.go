package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"scorm-quiz-service/internal/scorm"
)

// NewPackageCmd builds the SCORM archive of one quiz into a local file.
func NewPackageCmd(configPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "package <quiz-id>",
		Short: "Build the SCORM 1.2 package of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := loadRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			quiz, err := rt.quizzes.GetQuiz(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load quiz %s: %w", args[0], err)
			}
			data, err := rt.builder().Build(ctx, quiz)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			rt.log.Info("package written", zap.String("quizId", quiz.ID), zap.String("file", out), zap.Int("bytes", len(data)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", scorm.ArchiveName, "output file")
	return cmd
}

// NewTemplatesCmd groups template maintenance commands.
func NewTemplatesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage the SCORM player templates in blob storage",
	}

	var overwrite bool
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Upload the built-in player, schema and icon templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := loadRuntime(ctx, *configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := scorm.SeedTemplates(ctx, rt.blobs, overwrite)
			if err != nil {
				return err
			}
			rt.log.Info("templates seeded", zap.Int("written", n), zap.Bool("overwrite", overwrite))
			return nil
		},
	}
	seed.Flags().BoolVar(&overwrite, "overwrite", false, "replace templates that already exist")
	cmd.AddCommand(seed)
	return cmd
}
