package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vercelgram/internal/app"
	"vercelgram/internal/render"
	"vercelgram/internal/vercel"
	logx "vercelgram/pkg/logx"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit with code %d", e.code)
}

func (e exitError) ExitCode() int {
	return e.code
}

func serve(opts app.Options) error {
	a, err := app.New(opts)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := a.Start(context.Background()); err != nil {
		return err
	}

	var (
		reason = app.StopUnknown
		runErr error
		code   int
	)
	select {
	case sig := <-sigCh:
		if sig == os.Interrupt {
			reason, code = app.StopSIGINT, 130
		} else {
			reason, code = app.StopSIGTERM, 143
		}
	case <-a.Done():
		runErr = a.Err()
		if runErr != nil {
			reason = app.StopFatalError
			a.Logger().Error("component failed", logx.Err(runErr))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)

	if runErr != nil {
		return runErr
	}
	if code != 0 {
		return exitError{code: code}
	}
	return nil
}

func renderEvent(in io.Reader, out io.Writer) error {
	body, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	ev, err := vercel.Decode(body)
	if err != nil {
		return err
	}
	if !ev.Recognized() {
		return fmt.Errorf("notification type not handled: %q", ev.Type)
	}
	d, err := render.FromEvent(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, d.Text())
	return err
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "vercelgram",
		Short:         "Relay Vercel deployment webhooks to a Telegram chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts app.Options
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to config (json or yaml)")
	serveCmd.Flags().StringVar(&opts.EnvPath, "env", ".env", "path to dotenv file")

	var file string
	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Telegram message for a webhook body (stdin when --file is empty)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return renderEvent(in, cmd.OutOrStdout())
		},
	}
	renderCmd.Flags().StringVar(&file, "file", "", "webhook body to render")

	rootCmd.AddCommand(serveCmd, renderCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
