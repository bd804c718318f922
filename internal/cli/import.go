package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/sqlite"
	xlog "quiz-live-service/internal/log"
)

// NewImportCmd loads quizzes from a JSON file into the sqlite catalogue used
// for local runs.
func NewImportCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import quizzes from a JSON array into the sqlite catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.SQLite.Path == "" {
				return fmt.Errorf("sqlite path not configured")
			}

			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var quizzes []domain.Quiz
			if err := json.Unmarshal(raw, &quizzes); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}

			loader, err := sqlite.Open(cmd.Context(), cfg.SQLite.Path)
			if err != nil {
				return err
			}
			defer loader.Close()

			for _, quiz := range quizzes {
				if quiz.ID == "" {
					return fmt.Errorf("quiz %q has no quizId", quiz.Name)
				}
				if err := loader.Save(cmd.Context(), quiz); err != nil {
					return err
				}
			}
			logger := xlog.WithComponent("import")
			logger.Info().Int("quizzes", len(quizzes)).Str("path", cfg.SQLite.Path).Msg("quizzes imported")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "quizzes.json", "JSON file holding an array of quizzes")
	return cmd
}
