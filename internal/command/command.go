// Package command holds the process-level setup shared by the binaries.
package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"gitlab.com/gitlab-org/labkit/correlation"
	"gitlab.com/gitlab-org/labkit/tracing"

	"github.com/chtrembl/petstoreapp/internal/config"
)

// Setup initializes tracing from the configuration and returns the
// background context every other context in the process derives from. It
// carries the service name and an initial correlation ID.
func Setup(serviceName string, cfg *config.Config) (context.Context, func()) {
	closer := tracing.Initialize(
		tracing.WithServiceName(serviceName),
		tracing.WithConnectionString(cfg.Tracing),
	)

	ctx, finished := tracing.ExtractFromEnv(context.Background())
	ctx = correlation.ContextWithClientName(ctx, serviceName)

	correlationID := correlation.ExtractFromContext(ctx)
	if correlationID == "" {
		correlationID := correlation.SafeRandomID()
		ctx = correlation.ContextWithCorrelation(ctx, correlationID)
	}

	return ctx, func() {
		finished()
		_ = closer.Close()
	}
}

// CheckForVersionFlag prints the version and exits when the first argument
// asks for it.
func CheckForVersionFlag(osArgs []string, version, buildTime string) {
	if printVersion(os.Stdout, osArgs, version, buildTime) {
		os.Exit(0)
	}
}

func printVersion(w io.Writer, osArgs []string, version, buildTime string) bool {
	if len(osArgs) < 2 || (osArgs[1] != "-version" && osArgs[1] != "--version") {
		return false
	}

	fmt.Fprintf(w, "%s %s-%s\n", osArgs[0], version, buildTime)

	return true
}
