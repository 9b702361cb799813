// Command zerotermd serves a browser terminal over a single TCP port:
// static assets for the UI, and a WebSocket bridge to a PTY-backed
// shell session at /ws. Configuration is environment-only; see
// server.ConfigureOptions.
package main

import (
	"os"

	"github.com/himanaraba/zerotermd/server"
)

func main() {
	opts := server.ConfigureOptions(os.LookupEnv)
	srv := server.New(opts)

	if err := srv.ListenAndServe(); err != nil {
		srv.Logger().Fatalf("zerotermd: %v", err)
	}
}
