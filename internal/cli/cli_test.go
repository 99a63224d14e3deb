package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// execute runs the CLI with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const testDoc = `organization_id: 1
profiles:
  - name: Org Default
    is_default: true
    rules:
      - source: invoice_number
        target: reference
        required: true
`

func TestRoot_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "export", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestImportAndExport(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	doc := writeFile(t, "profiles.yaml", testDoc)

	out, err := execute(t, "--db", db, "import", doc)
	require.NoError(t, err, out)
	assert.Contains(t, out, `imported "Org Default"`)

	out, err = execute(t, "--db", db, "export", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Org Default")
	assert.Contains(t, out, "is_default: true")
}

func TestImport_MissingFile(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	_, err := execute(t, "--db", db, "import", "no-such-file.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestExport_BadOrgID(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	_, err := execute(t, "--db", db, "export", "not-a-number")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPreview(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	s, err := store.Open(db)
	require.NoError(t, err)
	p, _, err := s.SaveProfile(context.Background(), mapping.Profile{
		OrganizationID: 1, Name: "P",
		Rules: []mapping.Rule{
			{Source: "invoice_number", Target: "reference", Required: true},
			{Source: "memo", Target: "description", Required: true},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	bag := writeFile(t, "bag.yaml", `fields:
  invoice_number:
    value: INV-1001
    confidence: 0.99
`)

	out, err := execute(t, "--db", db, "preview", p.ID, "--bag", bag)
	require.Error(t, err, "unresolved required target must exit non-zero")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "RESOLVED_FROM_SOURCE")
	assert.Contains(t, out, "UNRESOLVED")
}

func TestSync(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	erpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sage-001"}`))
	}))
	defer erpSrv.Close()
	t.Setenv("ERP_BASE_URL", erpSrv.URL)

	s, err := store.Open(db)
	require.NoError(t, err)
	_, _, err = s.SaveProfile(context.Background(), mapping.Profile{
		OrganizationID: 1, Name: "Default", IsDefault: true,
		Rules: []mapping.Rule{{Source: "total", Target: "total_amount", Required: true}},
	})
	require.NoError(t, err)
	inv, err := s.CreateInvoice(context.Background(), mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusApproved,
		Fields:         mapping.FieldBag{"total": {Value: "10.00", Confidence: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out, err := execute(t, "--db", db, "sync", inv.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "sage-001")
}

func TestSync_FailureExitCode(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	erpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"validation","message":"bad payload"}`))
	}))
	defer erpSrv.Close()
	t.Setenv("ERP_BASE_URL", erpSrv.URL)

	s, err := store.Open(db)
	require.NoError(t, err)
	_, _, err = s.SaveProfile(context.Background(), mapping.Profile{
		OrganizationID: 1, Name: "Default", IsDefault: true,
		Rules: []mapping.Rule{{Source: "total", Target: "total_amount", Required: true}},
	})
	require.NoError(t, err)
	inv, err := s.CreateInvoice(context.Background(), mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusApproved,
		Fields:         mapping.FieldBag{"total": {Value: "10.00", Confidence: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out, err := execute(t, "--db", db, "sync", inv.ID)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "validation")
}

func TestSweep_NothingToDo(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	out, err := execute(t, "--db", db, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "attempted 0")
}
