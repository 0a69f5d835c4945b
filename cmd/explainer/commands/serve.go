package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/explainer/pkg/bridge"
	"github.com/haivivi/explainer/pkg/cli"
	"github.com/haivivi/explainer/pkg/storage"
)

var (
	serveAddr   string
	serveNoSave bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflow over a websocket",
	Long: `Serve one explainer workflow to websocket clients at /ws.

Clients send JSON requests such as
  {"id":"1","type":"analyze","text":"The water cycle","tone":"friendly"}
  {"id":"2","type":"export","what":"audio","save":true}
  {"id":"3","type":"fetch","what":"audio"}
and receive every state transition plus replies carrying the request id.
Narration plays on the server's audio device; use audio.device null in the
context when the client plays the exported WAV itself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var store storage.Store
		if serveNoSave {
			cli.PrintWarning(cmd.ErrOrStderr(), "exports with save are disabled")
		} else if store, err = exportStore(a.ctx); err != nil {
			return err
		}
		mux := http.NewServeMux()
		ws := bridge.New(bridge.Config{Machine: a.machine, Store: store, Logger: slog.Default()})
		defer ws.Close()
		mux.Handle("/ws", ws)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok\n"))
		})
		srv := &http.Server{Addr: serveAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		slog.Info("explainer: serving", "addr", serveAddr, "context", a.ctx.Name)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "listen address")
	serveCmd.Flags().BoolVar(&serveNoSave, "no-save", false, "reject export requests with save")
	rootCmd.AddCommand(serveCmd)
}
