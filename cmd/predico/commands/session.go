package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/predico/internal/contracts"
)

// sessionCmd represents the session command
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "마켓 세션 관리",
	Long: `운영자 권한으로 마켓 세션을 조회하거나 상태를 변경합니다.

Subcommands:
  list             - 세션 목록
  open             - 새 세션 열기
  set [id] [status] - 세션 상태 변경 (open|closed|running|finished)

Example:
  go run ./cmd/predico session list --status open
  go run ./cmd/predico session open
  go run ./cmd/predico session set 12 closed`,
}

var (
	sessionListCmd = &cobra.Command{
		Use:   "list",
		Short: "세션 목록",
		RunE:  listSessions,
	}

	sessionOpenCmd = &cobra.Command{
		Use:   "open",
		Short: "새 세션 열기",
		RunE:  openSession,
	}

	sessionSetCmd = &cobra.Command{
		Use:   "set [id] [status]",
		Short: "세션 상태 변경",
		Args:  cobra.ExactArgs(2),
		RunE:  setSessionStatus,
	}

	sessionStatusFilter string
	sessionLatestOnly   bool
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionOpenCmd)
	sessionCmd.AddCommand(sessionSetCmd)

	sessionListCmd.Flags().StringVar(&sessionStatusFilter, "status", "", "상태 필터 (open|closed|running|finished)")
	sessionListCmd.Flags().BoolVar(&sessionLatestOnly, "latest", false, "최신 세션만")
}

func listSessions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	filter := contracts.SessionFilter{LatestOnly: sessionLatestOnly}
	if sessionStatusFilter != "" {
		status := contracts.SessionStatus(sessionStatusFilter)
		filter.Status = &status
	}

	sessions, err := a.sessions.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	printSessions(sessions)
	return nil
}

func openSession(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.sessions.Create(cmd.Context(), contracts.SystemCaller())
	if err != nil {
		return err
	}

	fmt.Printf("✅ Session #%d opened at %s\n", sess.ID, sess.OpenTS.Format(time.RFC3339))
	return nil
}

func setSessionStatus(cmd *cobra.Command, args []string) error {
	var id int64
	if _, err := fmt.Sscan(args[0], &id); err != nil || id <= 0 {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	status := contracts.SessionStatus(args[1])

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.sessions.Update(cmd.Context(), contracts.SystemCaller(), id, contracts.SessionPatch{Status: &status})
	if err != nil {
		return err
	}

	fmt.Printf("✅ Session #%d is now %s\n", sess.ID, sess.Status)
	return nil
}

func printSessions(sessions []contracts.MarketSession) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tOPEN\tCLOSE\tLAUNCH\tFINISH")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Status, s.OpenTS.Format(time.RFC3339), formatTS(s.CloseTS), formatTS(s.LaunchTS), formatTS(s.FinishTS))
	}
	_ = w.Flush()
}

func formatTS(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return ts.Format(time.RFC3339)
}
