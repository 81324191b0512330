package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnocal/internal/catalog"
)

const aprilCSV = "Turni apr-25;1;2;3\nROSSI;g14;OFF;h16\nBIANCHI;e12;;g14\n"

// workspace writes a config rooted in a temp dir and returns its path.
func workspace(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	cfg := fmt.Sprintf(`data_dir: %[1]s/db
calendar_dir: %[1]s/calendars
upload_dir: %[1]s/uploads
catalog_path: %[1]s/db/catalog.db
log_level: ERROR
`, root)
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return root, path
}

func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd, a := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := execute(cmd, a)
	return out.String(), err
}

func TestCLI_ImportAndQuery(t *testing.T) {
	root, cfg := workspace(t)
	doc := filepath.Join(root, "turni.csv")
	require.NoError(t, os.WriteFile(doc, []byte(aprilCSV), 0o644))

	out, err := run(t, cfg, "import", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "April-2025")
	assert.Contains(t, out, "merged")

	out, err = run(t, cfg, "import", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "already present")

	out, err = run(t, cfg, "partitions")
	require.NoError(t, err)
	assert.Contains(t, out, "April-2025")

	out, err = run(t, cfg, "lookup", "April-2025", "rossi")
	require.NoError(t, err)
	assert.Contains(t, out, "07:00 (7)")
	assert.Contains(t, out, "g14")

	out, err = run(t, cfg, "lookup", "apr-25", "rossi")
	require.NoError(t, err)
	assert.Contains(t, out, "07:00 (7)")

	out, err = run(t, cfg, "swap", "2025-04-03", "07:00", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "BIANCHI")
	assert.NotContains(t, out, "ROSSI")

	out, err = run(t, cfg, "calendar", "April-2025", "BIANCHI")
	require.NoError(t, err)
	assert.FileExists(t, strings.TrimSpace(out))

	out, err = run(t, cfg, "imports")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "turni.csv"))
}

func TestCLI_Errors(t *testing.T) {
	root, cfg := workspace(t)

	_, err := run(t, cfg, "lookup", "Smarch-2025", "ROSSI")
	assert.Error(t, err)

	_, err = run(t, cfg, "swap", "10/04/2025", "07:30", "4")
	assert.Error(t, err)

	bad := filepath.Join(root, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("Turni;1;2\nROSSI;g14;OFF\n"), 0o644))
	out, err := run(t, cfg, "import", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "failed")
}

func TestCLI_FailedCommandClosesCatalog(t *testing.T) {
	_, cfg := workspace(t)
	root, a := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	var opened *catalog.Catalog
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(*cobra.Command, []string) error {
			opened = a.catalog
			return errors.New("boom")
		},
	})
	root.SetArgs([]string{"--config", cfg, "fail"})

	require.EqualError(t, execute(root, a), "boom")
	require.NotNil(t, opened)
	assert.Nil(t, a.catalog)

	_, err := opened.Imports(context.Background(), "", 0)
	assert.Error(t, err, "catalog still open after a failed command")
	a.Close()
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Partition", "Rows"}, [][]string{{"April-2025", "3"}})
	assert.Contains(t, out, "Partition")
	assert.Contains(t, out, "April-2025")
	assert.Equal(t, "abcdef12", shortHash("abcdef1234567890"))
}
