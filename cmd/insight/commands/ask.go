package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guestlytics/insight-go/internal/agent"
	"github.com/guestlytics/insight-go/internal/intent"
	"github.com/guestlytics/insight-go/internal/logging"
	"github.com/guestlytics/insight-go/internal/provider"
)

// NewAskCmd constructs the `insight ask` command, which answers a single
// question for one project and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var tenantID string
	var userID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about one project's marketing performance",
		Long: `Ask the insight engine a natural language question.

The question is answered against the project's indexed metrics; live-data
tools are available when METRICS_API_URL is set.

Examples:
  insight ask --tenant hotel-a "how did revenue do last month?"
  insight ask --tenant hotel-a --user user-7 "compare google ads and meta ads this week"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if tenantID == "" {
				return fmt.Errorf("ask: --tenant is required")
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			store, err := buildVectorStore(ctx, emb.Dimensions())
			if err != nil {
				return fmt.Errorf("ask: failed to connect to qdrant: %w", err)
			}
			defer store.Close()

			memories := buildMemoryStore(ctx, emb.Dimensions(), log)
			if memories != nil {
				defer memories.Close()
			}

			metrics, err := buildMetricsClient()
			if err != nil {
				// Live-data tools are optional for ask — warn and continue.
				log.Warn("live metrics tools unavailable", "error", err)
				metrics = nil
			}

			parser := intent.NewParser()
			orchestrator := buildOrchestrator(emb, store, memories)

			runtime, err := agent.New(ctx, &agent.Config{
				ChatModel:        chatModel,
				Tools:            buildTools(orchestrator, parser, metrics),
				MaxContextTokens: envInt("AGENT_MAX_CONTEXT_TOKENS", 0),
				Observer:         buildObserver(emb, memories),
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}

			res, err := runtime.Run(ctx, nil, args[0], agent.CallContext{
				TenantID: tenantID,
				UserID:   userID,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(res.FinalAnswer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&tenantID, "tenant", "t", "", "Project ID to scope the question to (required)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID for memory personalization")

	return cmd
}
