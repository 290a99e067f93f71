package cli

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dakshaarvind-fetch/RealEstate/internal/agent"
	"github.com/dakshaarvind-fetch/RealEstate/internal/config"
	"github.com/dakshaarvind-fetch/RealEstate/internal/metrics"
	"github.com/dakshaarvind-fetch/RealEstate/internal/transport"
)

var (
	serveTransport string
	serveAddress   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve search requests from the message transport",
	Long: `Serve consumes SearchRequest, FollowUpRequest, and chat messages from
the configured transport and answers each one with a SearchResponse.

Examples:
  hearthfind serve
  hearthfind serve --transport amqp
  hearthfind serve --address agent1q0abc...`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "transport mode: mailbox or amqp (default from env)")
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "agent address on the mailbox relay (default from profile)")
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, exporter, collector, err := buildEngine()
	if err != nil {
		return err
	}

	mode := cfg.TransportMode
	if serveTransport != "" {
		mode = serveTransport
	}

	tr, err := buildTransport(mode)
	if err != nil {
		return err
	}

	logger.Info("hearthfind serving",
		"version", Version,
		"transport", mode,
		"planner_model", cfg.PlannerModel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	bridge := agent.NewBridge(engine, exporter, tr, logger)
	err = bridge.Serve(ctx)

	snap := collector.Snapshot()
	logger.Info("runtime stats at shutdown",
		"uptime_seconds", snap.UptimeSeconds,
		"planner_turns", opCount(snap.PlannerDecide),
		"intent_parses", opCount(snap.IntentParse),
		"listings_fetches", opCount(snap.ListingsFetch),
		"sheet_exports", opCount(snap.SheetsExport),
	)
	return err
}

func opCount(op *metrics.OperationSnapshot) int64 {
	if op == nil {
		return 0
	}
	return op.Count
}

func buildTransport(mode string) (transport.Transport, error) {
	switch mode {
	case config.TransportMailbox:
		return buildMailbox()
	case config.TransportAMQP:
		return transport.NewAMQPTransport(cfg.AMQPURL, cfg.AMQPRequestQueue, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport mode %q", mode)
	}
}

func buildMailbox() (transport.Transport, error) {
	address := serveAddress
	authMode := "bearer"
	var profile config.AgentProfile

	if cfg.AgentProfileFile != "" {
		loaded, err := config.LoadAgentProfile(cfg.AgentProfileFile)
		if err != nil {
			return nil, err
		}
		profile = loaded
		if address == "" {
			address = profile.Address
		}
		if profile.Auth != "" {
			authMode = profile.Auth
		}
	}
	if address == "" {
		return nil, fmt.Errorf("mailbox transport needs an agent address: set --address or %s", "HEARTHFIND_AGENT_PROFILE")
	}

	auth, err := buildMailboxAuth(authMode, profile)
	if err != nil {
		return nil, err
	}

	return transport.NewMailboxClient(transport.MailboxOptions{
		API:          cfg.MailboxAPI,
		Address:      address,
		Auth:         auth,
		PollInterval: cfg.MailboxPollInterval,
		Streaming:    cfg.MailboxStreaming,
	}, logger), nil
}

func buildMailboxAuth(mode string, profile config.AgentProfile) (transport.AuthStrategy, error) {
	switch mode {
	case "bearer":
		if cfg.AgentverseAPIKey == "" {
			return nil, fmt.Errorf("mailbox bearer auth needs AGENTVERSE_API_KEY")
		}
		return transport.BearerAuth{Token: cfg.AgentverseAPIKey}, nil
	case "attestation":
		if profile.Seed == "" {
			return nil, fmt.Errorf("mailbox attestation auth needs a seed in the agent profile")
		}
		return transport.AgentAttestationAuth{Sign: attestationSigner(profile)}, nil
	default:
		return nil, fmt.Errorf("unknown mailbox auth mode %q", mode)
	}
}

// attestationSigner authenticates a request by signing the agent
// address and a timestamp with the profile seed.
func attestationSigner(profile config.AgentProfile) func() (string, error) {
	return func() (string, error) {
		mac := hmac.New(sha256.New, []byte(profile.Seed))
		fmt.Fprintf(mac, "%s:%d", profile.Address, time.Now().Unix())
		sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		return fmt.Sprintf("%s:%s", profile.Address, sig), nil
	}
}
