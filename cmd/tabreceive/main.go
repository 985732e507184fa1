// Command tabreceive is a minimal reference implementation of the chunk
// receiver side of the protocol: it ACKs or NACKs pushed chunks via
// validator.Validator and has no business logic beyond that decision.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/hazyhaar/tabflow/receiver"
)

func main() {
	addr := flag.String("listen", ":8081", "address to listen on")
	path := flag.String("path", "/callback", "path the callback_url should point at")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	rv := receiver.New(logger)

	mux := http.NewServeMux()
	mux.Handle(*path, rv.Handler())

	logger.Info("tabreceive listening", "addr", *addr, "path", *path)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
