package command

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/gitlab-org/labkit/correlation"

	"github.com/chtrembl/petstoreapp/internal/config"
)

func TestSetup(t *testing.T) {
	ctx, finished := Setup("petstoreapp-test", &config.Config{})
	defer finished()

	require.NotEmpty(t, correlation.ExtractFromContext(ctx))
	require.Equal(t, "petstoreapp-test", correlation.ExtractClientNameFromContext(ctx))
}

func TestPrintVersion(t *testing.T) {
	testCases := []struct {
		desc           string
		args           []string
		expectedOutput string
	}{
		{desc: "no arguments", args: []string{"petstoreapp"}},
		{desc: "other flag", args: []string{"petstoreapp", "-config-dir", "/etc"}},
		{desc: "single dash", args: []string{"petstoreapp", "-version"}, expectedOutput: "petstoreapp 1.0.0-20260101.000000\n"},
		{desc: "double dash", args: []string{"petstoreapp", "--version"}, expectedOutput: "petstoreapp 1.0.0-20260101.000000\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			var out bytes.Buffer

			printed := printVersion(&out, tc.args, "1.0.0", "20260101.000000")
			require.Equal(t, tc.expectedOutput != "", printed)
			require.Equal(t, tc.expectedOutput, out.String())
		})
	}
}
