package serviceutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Returns a context that will live until Ctrl+C is pressed
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	return ctx
}

func StartHttpServer(port int, mux *http.ServeMux) {
	slog.Info("status server listening...", "port", port)
	err := http.ListenAndServe(
		fmt.Sprintf("0.0.0.0:%d", port),
		h2c.NewHandler(mux, &http2.Server{}),
	)
	if err != nil {
		Fatal(fmt.Sprintf("failed to listen on port %d", port), err)
	}
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
