// Package querydeskctl is the command-line client for the querydesk HTTP API.
package querydeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/querydesk/querydesk/internal/engine"
	"github.com/querydesk/querydesk/internal/query"
)

type Options struct {
	BaseURL      string
	Timeout      time.Duration
	ProfilesFile string
	HTTPClient   *http.Client
	Stdout       io.Writer
	Stderr       io.Writer
}

// usageError marks mistakes in how the command was invoked; they exit with 2.
type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// Run executes one command and returns the process exit code: 0 on success, 1
// when the request or server fails, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n", err)

	var requestErr *requestError
	var usage *usageError
	switch {
	case errors.As(err, &usage):
		_, _ = fmt.Fprintln(stderr, "")
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	case errors.As(err, &requestErr):
		return 1
	default:
		// cobra's own argument and flag errors
		return 2
	}
}

type globalFlags struct {
	baseURL      string
	timeout      time.Duration
	profilesFile string
	profile      string

	engine   string
	host     string
	port     uint16
	user     string
	password string
	database string
}

func newRootCommand(defaults Options) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "querydeskctl",
		Short:         "Run ad-hoc SQL against MySQL, MariaDB and Postgres through a querydesk API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return usageErrorf("a command is required")
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "querydesk API base URL")
	pf.DurationVar(&flags.timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	pf.StringVar(&flags.profilesFile, "profiles-file", defaults.ProfilesFile, "YAML file with named connection profiles")
	pf.StringVar(&flags.profile, "profile", "", "connection profile name from --profiles-file")
	pf.StringVar(&flags.engine, "engine", "", "engine kind: mysql, mariadb or postgres")
	pf.StringVar(&flags.host, "host", "", "database host")
	pf.Uint16Var(&flags.port, "port", 0, "database port")
	pf.StringVar(&flags.user, "user", "", "database user")
	pf.StringVar(&flags.password, "password", "", "database password")
	pf.StringVar(&flags.database, "database", "", "database name")

	client := func() *http.Client {
		if defaults.HTTPClient != nil {
			return defaults.HTTPClient
		}
		return &http.Client{Timeout: flags.timeout}
	}

	root.AddCommand(
		newHealthCommand(flags, client),
		newTestConnectionCommand(flags, client),
		newQueryCommand(flags, client),
		newExportCommand(flags, client),
	)
	return root
}

func newHealthCommand(flags *globalFlags, client func() *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "GET /v1/health",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := doRequest(cmd.Context(), client(), http.MethodGet, endpoint(flags, "/v1/health"), nil)
			if err != nil {
				return err
			}
			writeBody(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newTestConnectionCommand(flags *globalFlags, client func() *http.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the described database accepts a connection",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			descriptor, err := resolveDescriptor(cmd, flags)
			if err != nil {
				return err
			}
			body, err := doRequest(cmd.Context(), client(), http.MethodPost, endpoint(flags, "/v1/connections/test"),
				map[string]any{"connection": descriptor})
			if err != nil {
				return err
			}
			var response struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), response.Message)
			return nil
		},
	}
}

func newQueryCommand(flags *globalFlags, client func() *http.Client) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run one SQL statement and print the result",
		Example: `  querydeskctl query --engine postgres --host localhost --port 5432 --user app --database app "SELECT 1"
  querydeskctl query --profiles-file profiles.yaml --profile local-pg --format csv "SELECT * FROM users"`,
		Args: exactlyOneSQLArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatTable && format != formatJSON && format != formatCSV {
				return usageErrorf("unknown output format %q (want table, json or csv)", format)
			}
			descriptor, err := resolveDescriptor(cmd, flags)
			if err != nil {
				return err
			}
			body, err := doRequest(cmd.Context(), client(), http.MethodPost, endpoint(flags, "/v1/query"),
				map[string]any{"connection": descriptor, "query": args[0]})
			if err != nil {
				return err
			}
			var result query.Result
			if err := json.Unmarshal(body, &result); err != nil {
				return &requestError{err: fmt.Errorf("decode response: %w", err)}
			}
			return renderResult(cmd.OutOrStdout(), result, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json, csv")
	return cmd
}

func newExportCommand(flags *globalFlags, client func() *http.Client) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <sql>",
		Short: "Run one SQL statement and store the result as CSV or Parquet",
		Args:  exactlyOneSQLArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := resolveDescriptor(cmd, flags)
			if err != nil {
				return err
			}
			body, err := doRequest(cmd.Context(), client(), http.MethodPost, endpoint(flags, "/v1/query/export"),
				map[string]any{"connection": descriptor, "query": args[0], "format": format})
			if err != nil {
				return err
			}
			writeBody(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "export-format", "csv", "stored format: csv or parquet")
	return cmd
}

// resolveDescriptor starts from the named profile, if any, and applies every
// descriptor flag that was set explicitly.
func resolveDescriptor(cmd *cobra.Command, flags *globalFlags) (engine.Descriptor, error) {
	var descriptor engine.Descriptor
	if flags.profile != "" {
		if flags.profilesFile == "" {
			return engine.Descriptor{}, usageErrorf("--profile requires --profiles-file")
		}
		profiles, err := LoadProfiles(flags.profilesFile)
		if err != nil {
			return engine.Descriptor{}, usageErrorf("%v", err)
		}
		descriptor, err = profiles.Lookup(flags.profile)
		if err != nil {
			return engine.Descriptor{}, usageErrorf("%v", err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("engine") {
		descriptor.Kind = engine.Kind(strings.TrimSpace(flags.engine))
	}
	if changed("host") {
		descriptor.Host = flags.host
	}
	if changed("port") {
		descriptor.Port = flags.port
	}
	if changed("user") {
		descriptor.User = flags.user
	}
	if changed("password") {
		password := flags.password
		descriptor.Password = &password
	}
	if changed("database") {
		descriptor.Database = flags.database
	}

	if descriptor.Kind == "" {
		return engine.Descriptor{}, usageErrorf("an engine is required (--engine or --profile)")
	}
	return descriptor, nil
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 {
		return usageErrorf("unexpected arguments: %v", args)
	}
	return nil
}

func exactlyOneSQLArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageErrorf("expected exactly one SQL argument, got %d", len(args))
	}
	return nil
}

func endpoint(flags *globalFlags, path string) string {
	return strings.TrimRight(flags.baseURL, "/") + path
}

func writeBody(w io.Writer, body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(w, string(body))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
