package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"authgate/internal/config"
	"authgate/internal/gateway"
	"authgate/internal/lib/logger"
	"authgate/internal/services/session"
)

// ErrUnauthenticated is returned when a command ends with the session
// cleared. Callers map it to a distinct exit code.
var ErrUnauthenticated = errors.New("not authenticated")

type deps struct {
	gw       *gateway.Gateway
	session  *session.Session
	registry *prometheus.Registry
	close    func(context.Context) error
}

type options struct {
	configPath  string
	showMetrics bool
	quiet       bool
}

// Run executes the authgate command line in args and releases the
// credential store afterwards, whatever the outcome.
func Run(ctx context.Context, args []string, out, errOut io.Writer) error {
	var (
		opts options
		rt   deps
	)

	cmd := newRootCmd(&rt, &opts, out, errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)

	if rt.close != nil {
		if opts.showMetrics {
			writeMetrics(errOut, rt.registry)
		}
		if cerr := rt.close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

func newRootCmd(rt *deps, opts *options, out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authgate",
		Short:         "Authenticated client for the storefront REST API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context(), *opts, errOut)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (or CONFIG_PATH env)")
	cmd.PersistentFlags().BoolVar(&opts.showMetrics, "metrics", false, "print gateway counters to stderr on exit")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "only log errors")

	cmd.AddCommand(
		loginCmd(rt, out),
		logoutCmd(rt, out),
		statusCmd(rt, out),
		refreshCmd(rt, out),
		requestCmd(rt, out, errOut),
	)

	return cmd
}

func (rt *deps) init(ctx context.Context, opts options, errOut io.Writer) error {
	cfg, err := config.Load(config.FetchConfigPath(opts.configPath))
	if err != nil {
		return err
	}

	var logOpts []logger.Option
	if opts.quiet {
		logOpts = append(logOpts, logger.WithLevel(slog.LevelError))
	}

	log, err := logger.Setup(cfg.Env, errOut, logOpts...)
	if err != nil {
		return err
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}

	rt.registry = prometheus.NewRegistry()

	gw, err := gateway.New(log, store, gateway.Options{
		BaseURL:      cfg.Gateway.BaseURL,
		RefreshPath:  cfg.Gateway.RefreshPath,
		LoginRoute:   cfg.Gateway.LoginRoute,
		HTTPClient:   &http.Client{Timeout: cfg.Gateway.Timeout},
		SingleFlight: !cfg.Gateway.DisableSingleFlight,
		OnLogout: func(_ context.Context, loginRoute string) {
			fmt.Fprintf(errOut, "session expired, log in again (%s)\n", loginRoute)
		},
		Metrics: gateway.NewMetrics(rt.registry),
	})
	if err != nil {
		_ = closeStore(ctx)
		return err
	}

	rt.gw = gw
	rt.session = session.New(log, gw, store, cfg.Gateway.LoginPath)
	rt.close = closeStore

	return nil
}

func loginCmd(rt *deps, out io.Writer) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange username and password for a stored token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := rt.session.Login(cmd.Context(), username, password); err != nil {
				if errors.Is(err, session.ErrInvalidCredentials) {
					return fmt.Errorf("%w: invalid username or password", ErrUnauthenticated)
				}
				return err
			}

			fmt.Fprintf(out, "logged in as %s\n", username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func logoutCmd(rt *deps, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.session.Logout(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(out, "logged out")
			return nil
		},
	}
}

func statusCmd(rt *deps, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether an access token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := rt.session.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(out, state)
			return nil
		},
	}
}

func refreshCmd(rt *deps, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Mint a new access token from the stored refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := rt.session.Refresh(cmd.Context()); err != nil {
				if errors.Is(err, session.ErrNotLoggedIn) || errors.Is(err, session.ErrRefreshFailed) {
					return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
				}
				return err
			}

			fmt.Fprintln(out, "access token refreshed")
			return nil
		},
	}
}

func requestCmd(rt *deps, out, errOut io.Writer) *cobra.Command {
	var (
		data    string
		headers []string
		public  bool
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request and print the response body",
		Example: `  authgate request GET products/
  authgate request POST cart/add/ --data '{"product": 3, "quantity": 1}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := gateway.Request{
				Method: strings.ToUpper(args[0]),
				Path:   args[1],
				Header: http.Header{},
				Public: public,
			}

			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				req.Body = json.RawMessage(data)
			}

			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("malformed header %q, want Name: value", h)
				}
				req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			res, err := rt.gw.Send(cmd.Context(), req)
			if err != nil {
				return err
			}

			fmt.Fprintf(errOut, "HTTP %d\n", res.Response.StatusCode)
			if _, err := out.Write(res.Response.Body); err != nil {
				return err
			}
			if len(res.Response.Body) > 0 && res.Response.Body[len(res.Response.Body)-1] != '\n' {
				fmt.Fprintln(out)
			}

			if res.Unauthenticated() {
				return ErrUnauthenticated
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header, may repeat")
	cmd.Flags().BoolVar(&public, "public", false, "send without credentials")

	return cmd
}

func writeMetrics(w io.Writer, reg *prometheus.Registry) {
	if reg == nil {
		return
	}

	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintf(w, "gather metrics: %v\n", err)
		return
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)

	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
