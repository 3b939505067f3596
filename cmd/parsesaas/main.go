package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/api"
	"github.com/007jayesh/parsesaas-go/internal/auth"
	"github.com/007jayesh/parsesaas-go/internal/config"
	"github.com/007jayesh/parsesaas-go/internal/controller"
	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/export"
	"github.com/007jayesh/parsesaas-go/internal/history"
	"github.com/007jayesh/parsesaas-go/internal/platform/sqlite"
	historyrepo "github.com/007jayesh/parsesaas-go/internal/repository/history"
	"github.com/007jayesh/parsesaas-go/internal/transport"
	"github.com/007jayesh/parsesaas-go/internal/transport/plain"
	"github.com/007jayesh/parsesaas-go/internal/transport/socket"
	"github.com/007jayesh/parsesaas-go/internal/transport/stream"
)

const usage = `Usage: parsesaas <command> [flags]

Commands:
  convert    upload a document and convert it to table data
  login      authenticate and store the session token
  register   create an account and store the session token
  logout     discard the stored session token
  whoami     show the current account and credit balance
  history    list past conversions
  download   fetch a finished conversion from the backend

Run 'parsesaas <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "login":
		err = runLogin(os.Args[2:])
	case "register":
		err = runRegister(os.Args[2:])
	case "logout":
		err = runLogout(os.Args[2:])
	case "whoami":
		err = runWhoami(os.Args[2:])
	case "history":
		err = runHistory(os.Args[2:])
	case "download":
		err = runDownload(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Fprint(os.Stderr, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared -config flag, loads the file and sets up the
// default logger from it.
func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	configPath := fs.String("config", defaultConfigPath(), "path to the config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "parsesaas.yaml"
	}
	return filepath.Join(dir, "parsesaas", "config.yaml")
}

func tokenStore() (*auth.Store, error) {
	path, err := auth.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("resolve token path: %w", err)
	}
	return auth.NewStore(path), nil
}

// loadToken returns the stored session token, rejecting expired ones up front
// so a doomed upload never starts.
func loadToken() (string, error) {
	store, err := tokenStore()
	if err != nil {
		return "", err
	}
	token, err := store.Load()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("not logged in; run 'parsesaas login' first")
	}
	if auth.Expired(token, time.Now()) {
		return "", fmt.Errorf("session expired; run 'parsesaas login' again")
	}
	return token, nil
}

func openHistory(cfg *config.Config) (*sqlite.DB, *history.Service, error) {
	if dir := filepath.Dir(cfg.History.Path); dir != "." && cfg.History.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sqlite.Open(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	return db, history.NewService(historyrepo.NewRepository(db.DB)), nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	file := fs.String("file", "", "document to convert (required)")
	formats := fs.String("formats", convert.FormatCSV, "comma-separated output formats: csv, excel, json")
	mode := fs.String("mode", string(convert.ModeFast), "processing mode: fast, accurate, standard")
	transportName := fs.String("transport", "stream", "progress transport: stream, socket, plain")
	outDir := fs.String("out", ".", "directory for exported result files")
	timeout := fs.Duration("timeout", 0, "overall job timeout (0 disables)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	token, err := loadToken()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(*file))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	job, err := convert.NewJob(filepath.Base(*file), mediaType, data,
		splitFormats(*formats), convert.Mode(*mode))
	if err != nil {
		return err
	}

	tr, err := buildTransport(*transportName, token, cfg)
	if err != nil {
		return err
	}

	db, hist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// Root context: cancelled when the job ends so transport goroutines and
	// the history database wind down promptly.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := hist.RecoverInterrupted(rootCtx); err != nil {
		slog.Warn("failed to recover interrupted conversions", "error", err)
	}
	record, err := hist.Begin(rootCtx, job, tr.Name())
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}

	jobTimeout := cfg.Job.Timeout
	if *timeout > 0 {
		jobTimeout = *timeout
	}

	printer := newProgressPrinter(os.Stderr)
	ctrl := controller.New(
		controller.WithJobTimeout(jobTimeout),
		controller.WithTickInterval(cfg.Job.TickInterval),
		controller.WithNotify(printer.update),
	)

	// First interrupt cancels the job; a second one aborts outright.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		ctrl.Cancel()
		<-sigCh
		os.Exit(130)
	}()

	ctrl.Start(rootCtx, job, tr)
	<-ctrl.Done()
	printer.finish()

	snap := ctrl.Snapshot()
	status, errMsg := outcome(snap)
	if err := hist.Complete(rootCtx, record, status, snap.Result, errMsg); err != nil {
		slog.Warn("failed to record outcome", "error", err)
	}

	switch snap.State {
	case controller.StateCompleted:
		return writeResult(rootCtx, snap.Result, job, *outDir)
	case controller.StateCancelled:
		slog.Info("conversion cancelled")
		return nil
	default:
		return fmt.Errorf("conversion failed: %s", snap.Error)
	}
}

func outcome(snap controller.Snapshot) (history.Status, string) {
	switch snap.State {
	case controller.StateCompleted:
		return history.StatusCompleted, ""
	case controller.StateCancelled:
		return history.StatusCancelled, ""
	default:
		return history.StatusFailed, snap.Error
	}
}

func writeResult(ctx context.Context, result *convert.Result, job *convert.Job, outDir string) error {
	base := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
	files, err := export.Files(result, base, job.Formats)
	if err != nil {
		return err
	}
	if err := export.WriteAll(ctx, outDir, files); err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(filepath.Join(outDir, f.Name))
	}
	slog.Info("conversion completed",
		"pages", result.PagesProcessed,
		"credits", result.CreditsUsed,
		"tables", len(result.Tables))
	return nil
}

func buildTransport(name, token string, cfg *config.Config) (transport.Transport, error) {
	switch name {
	case "stream":
		return stream.New(token,
			stream.WithEndpoint(cfg.Stream.Endpoint),
			stream.WithClient(&http.Client{Timeout: 0}),
		), nil
	case "socket":
		return socket.New(token,
			socket.WithURL(cfg.Socket.URL),
			socket.WithHandshakeTimeout(cfg.Socket.HandshakeTimeout),
			socket.WithReconnectPolicy(cfg.Socket.MaxReconnects, cfg.Socket.ReconnectDelay),
		), nil
	case "plain":
		client := api.New(
			api.WithBaseURL(cfg.API.BaseURL),
			api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
			api.WithToken(token),
		)
		return plain.New(client), nil
	}
	return nil, fmt.Errorf("unknown transport: %s (valid: stream, socket, plain)", name)
}

func splitFormats(s string) []string {
	var formats []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "account password (required)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("-email and -password are required")
	}

	client := api.New(api.WithBaseURL(cfg.API.BaseURL),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	session, err := client.Login(context.Background(), *email, *password)
	if err != nil {
		return err
	}

	store, err := tokenStore()
	if err != nil {
		return err
	}
	if err := store.Save(session.AccessToken); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	fmt.Printf("logged in as %s (%d credits)\n", session.User.Email, session.User.Credits)
	return nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "display name (required)")
	email := fs.String("email", "", "account email (required)")
	password := fs.String("password", "", "account password (required)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("-name, -email and -password are required")
	}

	client := api.New(api.WithBaseURL(cfg.API.BaseURL),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	session, err := client.Register(context.Background(), *name, *email, *password)
	if err != nil {
		return err
	}

	store, err := tokenStore()
	if err != nil {
		return err
	}
	if err := store.Save(session.AccessToken); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	fmt.Printf("registered %s (%d credits)\n", session.User.Email, session.User.Credits)
	return nil
}

func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ExitOnError)
	if _, err := loadConfig(fs, args); err != nil {
		return err
	}
	store, err := tokenStore()
	if err != nil {
		return err
	}
	return store.Clear()
}

func runWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	token, err := loadToken()
	if err != nil {
		return err
	}

	client := api.New(api.WithBaseURL(cfg.API.BaseURL),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithToken(token))
	user, err := client.Me(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("%s <%s>\nplan: %s\ncredits: %d\n", user.Name, user.Email, user.Plan, user.Credits)
	return nil
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	status := fs.String("status", "", "filter by status: running, completed, failed, cancelled")
	limit := fs.Int("limit", 20, "maximum number of records")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}

	db, hist, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	conversions, err := hist.List(context.Background(), history.ListRequest{
		Status: *status,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFILE\tFORMATS\tTRANSPORT\tSTATUS\tPAGES\tCREDITS\tCREATED")
	for _, c := range conversions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			c.ID, c.FileName, c.Formats, c.Transport, c.Status,
			c.Pages, c.CreditsUsed, c.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	id := fs.String("id", "", "backend conversion id (required)")
	format := fs.String("format", convert.FormatCSV, "format to download: csv, excel, json")
	out := fs.String("out", "", "output file (defaults to <id>.<format>)")

	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	token, err := loadToken()
	if err != nil {
		return err
	}

	client := api.New(api.WithBaseURL(cfg.API.BaseURL),
		api.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		api.WithToken(token))
	data, err := client.Download(context.Background(), *id, *format)
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = *id + "." + *format
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	fmt.Println(path)
	return nil
}
