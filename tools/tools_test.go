package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyber-nic/germ"
)

type rejectAll struct{}

func (rejectAll) Confirm(string) bool { return false }

type fakeTestsRunner struct {
	passed bool
	output string
	calls  int
}

func (f *fakeTestsRunner) RunTests() (bool, string) {
	f.calls++
	return f.passed, f.output
}

func newTestRepoMap(t *testing.T, dir string) *germ.RepoMap {
	t.Helper()
	return germ.NewRepoMap(dir, nil, germ.DisableGlobIgnore())
}

func TestNewAssignsSessionID(t *testing.T) {
	dir := t.TempDir()
	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, nil, nil)
	assert.NotEmpty(t, tl.SessionID())

	tl2 := New(rm, nil, nil)
	assert.NotEqual(t, tl.SessionID(), tl2.SessionID())
}

func TestAddFilesAdmitsExistingConfirmedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, AlwaysConfirm{}, nil)
	admitted, rejected := tl.AddFiles([]string{"a.go", "missing.go"})
	assert.Equal(t, []string{"a.go"}, admitted)
	assert.Equal(t, []string{"missing.go"}, rejected)
}

func TestAddFilesRejectedWhenConfirmerDeclines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, rejectAll{}, nil)
	admitted, rejected := tl.AddFiles([]string{"a.go"})
	assert.Empty(t, admitted)
	assert.Equal(t, []string{"a.go"}, rejected)
}

func TestEditFileRequiresPriorAddFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, AlwaysConfirm{}, nil)
	_, err := tl.EditFile("a.go", "go", "package a\n", "package a\n\nfunc X() {}\n")
	assert.Error(t, err)
}

func TestEditFileAppliesAndWritesToDisk(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "a.go")
	require.NoError(t, os.WriteFile(fpath, []byte("package a\n"), 0o644))

	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, AlwaysConfirm{}, nil)
	admitted, _ := tl.AddFiles([]string{"a.go"})
	require.Equal(t, []string{"a.go"}, admitted)

	result, err := tl.EditFile("a.go", "go", "package a\n", "package a\n\nfunc X() {}\n")
	require.NoError(t, err)
	assert.True(t, result.Applied)

	b, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "func X()")
}

func TestReturnToUserWithoutRunnerPasses(t *testing.T) {
	dir := t.TempDir()
	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, nil, nil)
	result, err := tl.ReturnToUser()
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestReturnToUserEscalatesAfterRepeatedFailure(t *testing.T) {
	dir := t.TempDir()
	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	runner := &fakeTestsRunner{passed: false, output: "boom"}
	tl := New(rm, nil, runner)

	var lastErr error
	for i := 0; i < defaultMaxReturnAttempts; i++ {
		_, lastErr = tl.ReturnToUser()
	}
	assert.Error(t, lastErr)
	assert.Equal(t, defaultMaxReturnAttempts, runner.calls)
}

func TestInspectEntitySuppressesImmediateRepeat(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n\nfunc Widget() {}\n"), 0o644))

	rm := newTestRepoMap(t, dir)
	defer rm.Close()

	tl := New(rm, AlwaysConfirm{}, nil)

	_, err := tl.InspectEntity("Widget", "")
	require.NoError(t, err)

	_, err = tl.InspectEntity("Widget", "")
	assert.Error(t, err)
}
