package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/arloliu/fabric/group"
	"github.com/arloliu/fabric/internal/kvutil"
	"github.com/arloliu/fabric/loadbalance"
	"github.com/arloliu/fabric/selector"
)

var (
	membershipBucket string
	membershipTTL    time.Duration
	endpointID       string
	strategyType     string
	callMethod       string
)

var serviceCmd = &cobra.Command{
	Use:     "service",
	Aliases: []string{"svc"},
	Short:   "Register and call load-balanced service endpoints",
}

var serviceRegisterCmd = &cobra.Command{
	Use:     "register <service> <url>",
	Short:   "Register an endpoint until interrupted",
	Example: `  fabric-task service register billing http://10.0.0.7:8080`,
	Args:    cobra.ExactArgs(2),
	RunE:    registerEndpoint,
}

var serviceCallCmd = &cobra.Command{
	Use:   "call <service> <path>",
	Short: "Send one HTTP request to the service, failing over between endpoints",
	Long: `Send one HTTP request to an endpoint of the service picked by the
load-balance strategy. Network errors and 5xx responses fail over to the next
untried endpoint.`,
	Example: `  fabric-task service call billing /healthz --strategy round-robin`,
	Args:    cobra.ExactArgs(2),
	RunE:    callService,
}

func init() {
	serviceCmd.PersistentFlags().StringVar(&membershipBucket, "bucket", "fabric-membership", "membership bucket")
	serviceCmd.PersistentFlags().DurationVar(&membershipTTL, "ttl", 6*time.Second, "membership TTL")

	serviceRegisterCmd.Flags().StringVar(&endpointID, "id", "", "member id (default: random)")
	serviceCallCmd.Flags().StringVar(&strategyType, "strategy", loadbalance.TypeRoundRobin, "load-balance strategy: random, first-one, round-robin")
	serviceCallCmd.Flags().StringVarP(&callMethod, "method", "X", http.MethodGet, "HTTP method")

	serviceCmd.AddCommand(serviceRegisterCmd)
	serviceCmd.AddCommand(serviceCallCmd)
}

// serviceGroup opens the membership bucket and starts observing the group of service.
func serviceGroup(ctx context.Context, nc *nats.Conn, js jetstream.JetStream, service string) (*group.NATSGroup, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kv, err := kvutil.EnsureBucket(opCtx, js, kvutil.MembershipBucket(membershipBucket, membershipTTL), 3)
	if err != nil {
		return nil, fmt.Errorf("membership bucket: %w", err)
	}

	name := kvutil.Keys{Root: rootNS}.ServiceGroup(service)
	grp := group.New(kv, name, group.Config{TTL: membershipTTL},
		group.WithLogger(logger), group.WithConn(nc))
	if err := grp.Start(ctx); err != nil {
		return nil, err
	}

	return grp, nil
}

func registerEndpoint(cmd *cobra.Command, args []string) error {
	service, address := args[0], args[1]
	if u, err := url.Parse(address); err != nil || u.Scheme == "" {
		return fmt.Errorf("invalid endpoint URL %q", address)
	}
	if endpointID == "" {
		endpointID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, js, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	grp, err := serviceGroup(ctx, nc, js, service)
	if err != nil {
		return err
	}
	defer func() { _ = grp.Stop() }()

	joinCtx, cancel := context.WithTimeout(ctx, timeout)
	membership, err := grp.Join(joinCtx, endpointID, []byte(address))
	cancel()
	if err != nil {
		return err
	}
	logger.Info("endpoint registered", "service", service, "id", endpointID, "url", address)

	<-ctx.Done()

	leaveCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return grp.Leave(leaveCtx, membership)
}

// errServerSide marks 5xx responses as eligible for fail-over.
var errServerSide = errors.New("server error")

func callService(cmd *cobra.Command, args []string) error {
	service, path := args[0], args[1]

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	nc, js, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	grp, err := serviceGroup(ctx, nc, js, service)
	if err != nil {
		return err
	}
	defer func() { _ = grp.Stop() }()

	strategy, err := loadbalance.New(strategyType, grp, loadbalance.WithLogger(logger))
	if err != nil {
		return err
	}
	defer strategy.Close()

	if err := awaitEndpoints(ctx, strategy); err != nil {
		return fmt.Errorf("service %s: %w", service, err)
	}

	sel := selector.NewFailOver(strategy,
		[]selector.Matcher{
			selector.MatchType[*url.Error](),
			selector.MatchError(errServerSide),
		},
		selector.WithInitiator(selector.NewHTTPInitiator(nil)),
		selector.WithLogger(logger),
	)

	return sel.Invoke(ctx, selector.NewCall(), func(ctx context.Context, c selector.Conduit) error {
		conduit, ok := c.(*selector.HTTPConduit)
		if !ok {
			return fmt.Errorf("endpoint %s is not an HTTP endpoint", c.Address())
		}

		req, err := conduit.NewRequest(ctx, callMethod, path, nil)
		if err != nil {
			return err
		}
		resp, err := conduit.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s returned %s", errServerSide, conduit.Address(), resp.Status)
		}
		logger.Info("call completed", "endpoint", conduit.Address(), "status", resp.StatusCode)
		_, err = io.Copy(os.Stdout, resp.Body)

		return err
	})
}

// awaitEndpoints waits for the first group snapshot to list an endpoint.
func awaitEndpoints(ctx context.Context, strategy loadbalance.Strategy) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for len(strategy.AlternateAddresses()) == 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("no endpoints registered: %w", ctx.Err())
		case <-ticker.C:
		}
	}

	return nil
}
