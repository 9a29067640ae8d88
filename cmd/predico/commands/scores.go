package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wonny/predico/internal/contracts"
)

// scoresCmd represents the scores command
var scoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "점수 게시 및 조회",
	Long: `외부 채점 파이프라인이 계산한 점수를 게시하거나 순위를 조회합니다.

Example:
  go run ./cmd/predico scores publish --challenge <id> --file scores.json
  go run ./cmd/predico scores show --challenge <id>`,
}

var (
	scoresPublishCmd = &cobra.Command{
		Use:   "publish",
		Short: "점수 게시 (JSON 배열: submission, metric, value)",
		RunE:  runScoresPublish,
	}

	scoresShowCmd = &cobra.Command{
		Use:   "show",
		Short: "챌린지 점수 순위 조회",
		RunE:  runScoresShow,
	}

	scoresChallenge string
	scoresFile      string
)

func init() {
	rootCmd.AddCommand(scoresCmd)
	scoresCmd.AddCommand(scoresPublishCmd)
	scoresCmd.AddCommand(scoresShowCmd)

	scoresCmd.PersistentFlags().StringVar(&scoresChallenge, "challenge", "", "챌린지 UUID")
	_ = scoresCmd.MarkPersistentFlagRequired("challenge")
	scoresPublishCmd.Flags().StringVar(&scoresFile, "file", "", "점수 JSON 파일")
	_ = scoresPublishCmd.MarkFlagRequired("file")
}

func runScoresPublish(cmd *cobra.Command, args []string) error {
	challengeID, err := uuid.Parse(scoresChallenge)
	if err != nil {
		return fmt.Errorf("invalid challenge id: %w", err)
	}

	raw, err := os.ReadFile(scoresFile)
	if err != nil {
		return fmt.Errorf("read scores file: %w", err)
	}
	var scores []contracts.SubmissionScore
	if err := json.Unmarshal(raw, &scores); err != nil {
		return fmt.Errorf("parse scores file: %w", err)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.scores.Publish(cmd.Context(), contracts.SystemCaller(), challengeID, scores); err != nil {
		return err
	}

	fmt.Printf("✅ Published %d score(s) for challenge %s\n", len(scores), challengeID)
	return nil
}

func runScoresShow(cmd *cobra.Command, args []string) error {
	challengeID, err := uuid.Parse(scoresChallenge)
	if err != nil {
		return fmt.Errorf("invalid challenge id: %w", err)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	scores, err := a.scores.GetScores(cmd.Context(), contracts.SystemCaller(), challengeID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(scores, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
