// Package cmd provides commands of the filesync binary.
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keboola/go-cluster-filesync/internal/pkg/env"
	"github.com/keboola/go-cluster-filesync/internal/pkg/log"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/cliconfig"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/config"
	"github.com/keboola/go-cluster-filesync/internal/pkg/service/filesync/dependencies"
	"github.com/keboola/go-cluster-filesync/internal/pkg/telemetry/metric/prometheus"
	"github.com/keboola/go-cluster-filesync/internal/pkg/utils/errors"
)

const ServiceName = "filesync"

// Runtime contains dependencies of commands which differ in tests.
type Runtime struct {
	Stdout io.Writer
	Stderr io.Writer
	Envs   *env.Map
	Fs     afero.Fs
	// ProcOptions are used to create the service process, for example to disable signals handling.
	ProcOptions []servicectx.Option
}

// NewRootCommand creates the "filesync" command with the "node" and "distribute" sub-commands.
func NewRootCommand(rt Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:               ServiceName,
		Short:             "Distribute files to all nodes of a cluster.",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
	root.SetOut(rt.Stdout)
	root.SetErr(rt.Stderr)
	root.AddCommand(newNodeCommand(rt), newDistributeCommand(rt))
	return root
}

func newNodeCommand(rt Runtime) *cobra.Command {
	return &cobra.Command{
		Use:                "node [flags]",
		Short:              "Run a cluster node, the node receives distributed files.",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), rt, args, func(ctx context.Context, d dependencies.ServiceScope, _ []string) error {
				d.Process().WaitForShutdown()
				return nil
			})
		},
	}
}

func newDistributeCommand(rt Runtime) *cobra.Command {
	return &cobra.Command{
		Use:                "distribute <file> [flags]",
		Short:              "Join the cluster, distribute the file to all other nodes and exit.",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), rt, args, func(ctx context.Context, d dependencies.ServiceScope, args []string) (err error) {
				proc := d.Process()
				defer func() {
					proc.Shutdown(ctx, err)
					proc.WaitForShutdown()
				}()

				if len(args) != 1 {
					return errors.Errorf("expected exactly one file argument, found %d", len(args))
				}

				result, err := d.Distributor().Distribute(ctx, args[0])
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(rt.Stdout, "transfer %s: %s, %d nodes, %d errors, %s\n", result.TransferID, result.Status, result.ExpectedAcks, result.ErrorCount, result.Duration)
				for _, node := range result.ErroredNodes {
					_, _ = fmt.Fprintf(rt.Stdout, "  %s: %s\n", node, result.Errors[node])
				}
				if !result.AllSucceeded() {
					return errors.Errorf(`file "%s" was not received by all nodes`, result.FileName)
				}
				return nil
			})
		},
	}
}

// runNode loads the configuration, starts the node and invokes the fn.
func runNode(ctx context.Context, rt Runtime, args []string, fn func(ctx context.Context, d dependencies.ServiceScope, args []string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Load configuration
	envs := env.LoadDotEnv(ctx, log.NewNopLogger(), rt.Envs, rt.Fs, []string{"."})
	cfg := config.New()
	flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	flags.SetOutput(rt.Stderr)
	_, err := cliconfig.Bind(rt.Fs, flags, cliconfig.BindSpec{
		Args:           args,
		Envs:           envs,
		EnvNaming:      env.NewNamingConvention(config.EnvPrefix),
		ConfigFileFlag: config.ConfigFileFlag,
	}, &cfg)
	if errors.Is(err, pflag.ErrHelp) {
		// Stop on --help flag
		return nil
	} else if err != nil {
		return err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create logger
	logFormat, err := log.NewLogFormat(cfg.LogFormat)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(rt.Stdout, cfg.DebugLog, logFormat).WithComponent(ServiceName)
	if kvs, err := cliconfig.Dump(cfg); err == nil {
		logger.Infof(ctx, "configuration: %s", kvs.String())
	}

	// Create process abstraction
	proc, err := servicectx.New(ctx, cancel, logger, append([]servicectx.Option{servicectx.WithUniqueID(cfg.NodeID)}, rt.ProcOptions...)...)
	if err != nil {
		return err
	}

	// Setup telemetry
	tel, err := prometheus.ServeMetrics(ctx, cfg.Metrics.Listen, logger, proc)
	if err != nil {
		return err
	}

	// Create dependencies, the node joins the cluster
	d, err := dependencies.NewServiceScope(ctx, cfg, proc, logger, tel, rt.Fs)
	if err != nil {
		proc.Shutdown(ctx, err)
		proc.WaitForShutdown()
		return err
	}

	logger.Infof(ctx, `node "%s" joined the cluster "%s", members %d`, cfg.NodeID, cfg.Group, d.DistributionNode().Size())
	return fn(ctx, d, flags.Args())
}
