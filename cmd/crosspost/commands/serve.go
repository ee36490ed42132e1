package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/crosspost/am"
	"github.com/teranos/crosspost/errors"
	"github.com/teranos/crosspost/logger"
	"github.com/teranos/crosspost/server"
)

// ServeCmd starts the HTTP trigger server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long: `Serve POST /api/scheduler/process and GET /healthz.

With --cron the server also triggers a pass on the given schedule. The
schedule accepts standard five-field cron expressions and descriptors
such as "@every 1m"; pass it with "=". A bare --cron uses scheduler.cron.
A cron tick that fires while the previous pass is still running is
skipped.

Examples:
  crosspost serve                      # external trigger only
  crosspost serve --cron               # built-in trigger from scheduler.cron
  crosspost serve --cron="@every 30s"  # built-in trigger, explicit schedule
  crosspost serve --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	ServeCmd.Flags().Int("port", 0, "Port to listen on (default server.port)")
	ServeCmd.Flags().String("cron", "", `Trigger schedule, e.g. "@every 1m" (default scheduler.cron when flag given without value)`)
	ServeCmd.Flags().Lookup("cron").NoOptDefVal = "config"
	ServeCmd.Flags().Bool("watch-config", true, "Apply log.level changes from config files without a restart")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = a.cfg.GetServerPort()
	}
	spec, _ := cmd.Flags().GetString("cron")
	if spec == "config" {
		spec = a.cfg.Scheduler.Cron
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch, _ := cmd.Flags().GetBool("watch-config"); watch {
		if cw := startConfigWatcher(cmd); cw != nil {
			defer cw.Stop()
		}
	}

	if spec != "" {
		c, err := startCron(ctx, spec, a)
		if err != nil {
			return err
		}
		defer func() {
			// Wait for a running pass before closing the database.
			<-c.Stop().Done()
		}()
	}

	srv := server.New(a.processor, logger.Logger)
	return srv.Start(ctx, port)
}

// startCron schedules processing passes. Overlapping ticks are skipped.
func startCron(ctx context.Context, spec string, a *app) (*cron.Cron, error) {
	log := logger.Logger.Named("cron")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))
	_, err := c.AddFunc(spec, func() {
		s := a.processor.ProcessDueJobs(ctx)
		log.Infow("Cron pass finished",
			"processed", s.Processed,
			"errors", len(s.Errors))
	})
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron spec %q", spec)
	}
	c.Start()
	log.Infow("Cron trigger started", "spec", spec)
	return c, nil
}

// startConfigWatcher follows log.level in the loaded config files. An
// explicit -v pins the level. Returns nil when there is nothing to watch.
func startConfigWatcher(cmd *cobra.Command) *am.ConfigWatcher {
	if v, _ := cmd.Flags().GetCount("verbose"); v > 0 {
		return nil
	}

	files := am.ConfigFiles()
	load := func() (*am.Config, error) {
		am.Reset()
		return am.Load()
	}
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		files = []string{path}
		load = func() (*am.Config, error) { return am.LoadFromFile(path) }
	}
	if len(files) == 0 {
		return nil
	}

	cw, err := am.NewConfigWatcher(files, load)
	if err != nil {
		logger.Logger.Warnw("Config watching disabled", logger.FieldError, err)
		return nil
	}
	cw.OnReload(func(cfg *am.Config) {
		logger.SetVerbosity(logger.ParseLevel(cfg.Log.Level))
	})
	cw.Start()
	return cw
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, logger.FieldError, err)...)
}
