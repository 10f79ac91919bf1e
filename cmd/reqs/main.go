package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/funnyzak/reqs/internal/config"
	"github.com/funnyzak/reqs/internal/engine"
	"github.com/funnyzak/reqs/internal/filter"
	"github.com/funnyzak/reqs/internal/httpclient"
	"github.com/funnyzak/reqs/internal/logger"
	"github.com/funnyzak/reqs/internal/mcpserver"
	"github.com/funnyzak/reqs/internal/output"
	"github.com/funnyzak/reqs/internal/pacing"
	"github.com/funnyzak/reqs/pkg/request"
	"github.com/funnyzak/reqs/pkg/urlutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// exitError carries the process exit code alongside the failure. Setup
// failures (bad flags, unreadable config) exit 2; unexpected fatal
// errors (sink failures) exit 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func setupError(err error) error { return &exitError{code: 2, err: err} }
func fatalError(err error) error { return &exitError{code: 1, err: err} }

var rootCmd = &cobra.Command{
	Use:   "reqs",
	Short: "Batch HTTP request driver",
	Long: `reqs reads request descriptors from stdin (one per line, either "URL" or
"METHOD URL [BODY...]"), sends each as an HTTP request under a shared
policy, and emits one result record per request.

With --mcp it instead serves the same engine over the Model Context
Protocol (stdio JSON-RPC), exposing the send_requests and fuzz_request
tools.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reqs version %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
	},
}

func init() {
	flags := rootCmd.Flags()

	flags.StringP("config", "c", "", "Configuration file path")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// NETWORK
	flags.Int("timeout", 10, "Timeout for each request in seconds")
	flags.Int("retry", 0, "Number of retries for failed requests")
	flags.Int("delay", 0, "Delay between retries in milliseconds")
	flags.Int("concurrency", 0, "Maximum number of concurrent requests (0 for unlimited)")
	flags.String("proxy", "", `Use a proxy for requests (e.g. "http://127.0.0.1:8080")`)
	flags.Bool("verify-ssl", false, "Verify SSL certificates (default: false, insecure)")
	flags.Int("rate-limit", 0, "Limit request starts per second")
	flags.String("random-delay", "", "Random delay before each request in milliseconds (MIN:MAX)")

	// HTTP
	flags.Bool("follow-redirect", false, "Follow HTTP redirects")
	flags.Bool("no-follow-redirect", false, "Do not follow HTTP redirects (overrides --follow-redirect)")
	flags.Bool("http2", false, "Use HTTP/2 for requests")
	flags.StringArrayP("headers", "H", nil, `Custom header to add to every request (e.g. "User-Agent: my-app"), repeatable`)

	// OUTPUT
	flags.StringP("output", "o", "", "Output file to save results (instead of stdout)")
	flags.StringP("format", "f", "plain", "Output format (plain, jsonl, csv)")
	flags.StringP("strf", "S", "", `Custom format string for plain output (e.g. "%method %url -> %code").
Placeholders: %method, %url, %status, %code, %size, %time, %ip, %title`)
	flags.Bool("include-req", false, "Include request details in the output")
	flags.Bool("include-res", false, "Include response body in the output")
	flags.Bool("include-title", false, "Include title from response body in the output")
	flags.Bool("no-color", false, "Disable color output")

	// FILTER
	flags.IntSlice("filter-status", nil, `Filter by HTTP status codes (e.g. "200,404")`)
	flags.String("filter-string", "", "Filter by string in response body")
	flags.String("filter-regex", "", "Filter by regex in response body")

	// MCP
	flags.Bool("mcp", false, "Run in MCP (Model Context Protocol) server mode")

	bindFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

func bindFlags(cmd *cobra.Command) {
	v := viper.GetViper()
	v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))

	v.BindPFlag("network.timeout", cmd.Flags().Lookup("timeout"))
	v.BindPFlag("network.retry", cmd.Flags().Lookup("retry"))
	v.BindPFlag("network.delay", cmd.Flags().Lookup("delay"))
	v.BindPFlag("network.concurrency", cmd.Flags().Lookup("concurrency"))
	v.BindPFlag("network.proxy", cmd.Flags().Lookup("proxy"))
	v.BindPFlag("network.verify_ssl", cmd.Flags().Lookup("verify-ssl"))
	v.BindPFlag("network.rate_limit", cmd.Flags().Lookup("rate-limit"))
	v.BindPFlag("network.random_delay", cmd.Flags().Lookup("random-delay"))

	v.BindPFlag("http.follow_redirect", cmd.Flags().Lookup("follow-redirect"))
	v.BindPFlag("http.http2", cmd.Flags().Lookup("http2"))
	v.BindPFlag("http.headers", cmd.Flags().Lookup("headers"))

	v.BindPFlag("output.file", cmd.Flags().Lookup("output"))
	v.BindPFlag("output.format", cmd.Flags().Lookup("format"))
	v.BindPFlag("output.template", cmd.Flags().Lookup("strf"))
	v.BindPFlag("output.include_req", cmd.Flags().Lookup("include-req"))
	v.BindPFlag("output.include_res", cmd.Flags().Lookup("include-res"))
	v.BindPFlag("output.include_title", cmd.Flags().Lookup("include-title"))
	v.BindPFlag("output.no_color", cmd.Flags().Lookup("no-color"))

	v.BindPFlag("filter.status", cmd.Flags().Lookup("filter-status"))
	v.BindPFlag("filter.string", cmd.Flags().Lookup("filter-string"))
	v.BindPFlag("filter.regex", cmd.Flags().Lookup("filter-regex"))

	v.BindPFlag("mcp", cmd.Flags().Lookup("mcp"))
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath, viper.GetViper())
	if err != nil {
		return setupError(err)
	}

	// The negation flag wins over --follow-redirect when both are given.
	if noFollow, _ := cmd.Flags().GetBool("no-follow-redirect"); noFollow {
		cfg.HTTP.FollowRedirect = false
	}

	if err := cfg.Validate(); err != nil {
		return setupError(err)
	}

	log := logger.NewLogger(&cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MCP {
		srv := mcpserver.New(cfg, version, log)
		if err := srv.Run(ctx); err != nil {
			return fatalError(fmt.Errorf("mcp server: %w", err))
		}
		return nil
	}

	return runBatch(ctx, cfg, log)
}

// runBatch drives stdin descriptors through the engine into the sink.
func runBatch(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	var sink io.Writer = os.Stdout
	if cfg.Output.File != "" {
		file, err := os.Create(cfg.Output.File)
		if err != nil {
			return fatalError(fmt.Errorf("cannot open output file: %w", err))
		}
		defer file.Close()
		sink = file
	}

	colorEnabled := !cfg.Output.NoColor &&
		cfg.Output.File == "" &&
		term.IsTerminal(int(os.Stdout.Fd()))

	flt, err := filter.New(cfg.Filter.Status, cfg.Filter.String, cfg.Filter.Regex)
	if err != nil {
		return setupError(fmt.Errorf("invalid filter regex: %w", err))
	}

	var jitter *pacing.Jitter
	if cfg.Network.RandomDelay != "" {
		min, max, err := config.ParseDelayRange(cfg.Network.RandomDelay)
		if err != nil {
			return setupError(err)
		}
		jitter = pacing.NewJitter(min, max)
	}

	client, err := httpclient.New(httpclient.Options{
		Timeout:        time.Duration(cfg.Network.Timeout) * time.Second,
		FollowRedirect: cfg.HTTP.FollowRedirect,
		VerifySSL:      cfg.Network.VerifySSL,
		Proxy:          cfg.Network.Proxy,
		HTTP2:          cfg.HTTP.HTTP2,
	})
	if err != nil {
		return setupError(err)
	}

	formatter := output.New(sink, output.Options{
		Format:       cfg.Output.Format,
		Template:     cfg.Output.Template,
		Color:        colorEnabled,
		IncludeReq:   cfg.Output.IncludeReq,
		IncludeRes:   cfg.Output.IncludeRes,
		IncludeTitle: cfg.Output.IncludeTitle,
	})

	eng := engine.New(client, pacing.NewLimiter(cfg.Network.RateLimit), jitter, flt, engine.Options{
		Retry:        cfg.Network.Retry,
		RetryDelay:   time.Duration(cfg.Network.Delay) * time.Millisecond,
		Concurrency:  cfg.Network.Concurrency,
		HTTP2:        cfg.HTTP.HTTP2,
		IncludeReq:   cfg.Output.IncludeReq,
		IncludeRes:   cfg.Output.IncludeRes,
		IncludeTitle: cfg.Output.IncludeTitle,
		Headers:      request.ParseHeaders(cfg.HTTP.Headers),
	}, log)

	descriptors := make(chan request.Descriptor)
	go func() {
		defer close(descriptors)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			d := request.ParseLine(scanner.Text())
			if d.Empty() {
				continue
			}
			d.URL = urlutil.Normalize(d.URL)
			select {
			case descriptors <- d:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error("Reading stdin failed", "error", err)
		}
	}()

	start := time.Now()
	runErr := eng.Run(ctx, descriptors, formatter.Write)
	if flushErr := formatter.Flush(); flushErr != nil && runErr == nil {
		runErr = flushErr
	}

	stats := eng.Stats()
	log.Info("Run complete",
		"requests", stats.Dispatched,
		"emitted", stats.Emitted,
		"failed", stats.Failed,
		"bytes", humanize.Bytes(stats.BytesRead),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	if runErr != nil {
		return fatalError(fmt.Errorf("writing results: %w", runErr))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		// cobra flag/usage errors
		os.Exit(2)
	}
}
