package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/state"
	"github.com/wwwzy/wxorca/internal/storage"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "提交和查看会话评分",
}

var (
	feedbackSession string
	feedbackRating  int
	feedbackComment string
	feedbackAgent   string
)

var feedbackSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "为会话打分（1-5）",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openSessionBackend(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// 助手类型取自会话本身
		st, err := a.store().Load(ctx, feedbackSession)
		if err != nil {
			return err
		}
		fb := &storage.Feedback{
			SessionID: st.SessionID,
			AgentType: string(st.AgentType),
			Rating:    feedbackRating,
			Comment:   feedbackComment,
		}
		if err := a.db.SubmitFeedback(ctx, fb); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded rating %d for session %s (%s)\n", fb.Rating, fb.SessionID, st.AgentType.DisplayName())
		return nil
	},
}

var feedbackRatingCmd = &cobra.Command{
	Use:   "rating",
	Short: "按助手类型统计平均评分",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		types := state.AllAgentTypes()
		if feedbackAgent != "" {
			t, err := state.ParseAgentType(feedbackAgent)
			if err != nil {
				return err
			}
			types = []state.AgentType{t}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Agent\tRatings\tAverage")
		fmt.Fprintln(w, "-----\t-------\t-------")
		for _, t := range types {
			sum, err := db.AgentRating(ctx, string(t))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%d\t%.2f\n", t, sum.Count, sum.Average)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.AddCommand(feedbackSubmitCmd, feedbackRatingCmd)

	feedbackSubmitCmd.Flags().StringVarP(&feedbackSession, "session", "s", "", "会话 ID")
	feedbackSubmitCmd.Flags().IntVarP(&feedbackRating, "rating", "r", 0, "评分 1-5")
	feedbackSubmitCmd.Flags().StringVar(&feedbackComment, "comment", "", "补充说明")
	_ = feedbackSubmitCmd.MarkFlagRequired("session")
	_ = feedbackSubmitCmd.MarkFlagRequired("rating")

	feedbackRatingCmd.Flags().StringVar(&feedbackAgent, "agent", "", "只统计指定助手类型")
}
