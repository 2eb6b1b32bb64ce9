package servustest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmarkhas/servus"
	"github.com/dmarkhas/servus/servustest"
)

type fakeDB struct {
	DSN string
}

type fakeQueue struct{}

type consumer struct {
	DB    *fakeDB    `inject:""`
	Queue *fakeQueue `inject:",optional"`
}

// recordingTB satisfies servustest.TB while capturing failures instead of
// aborting, so helper failure paths are testable.
type recordingTB struct {
	failed   bool
	cleanups []func()
}

func (r *recordingTB) Helper()                           {}
func (r *recordingTB) Fatal(args ...any)                 { r.failed = true }
func (r *recordingTB) Fatalf(format string, args ...any) { r.failed = true }
func (r *recordingTB) Cleanup(f func())                  { r.cleanups = append(r.cleanups, f) }

func (r *recordingTB) runCleanups() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

func TestRequireHelpers(t *testing.T) {
	tr := servustest.New(t)

	servustest.RequireRegister(tr, &fakeDB{DSN: "test"})
	assert.True(t, servus.IsRegistered[*fakeDB](tr.Registry))
	assert.False(t, servus.IsReady[*fakeDB](tr.Registry))

	servustest.RequireReady[*fakeDB](tr)
	assert.True(t, servus.IsReady[*fakeDB](tr.Registry))

	servustest.RequireRegisterReady(tr, &fakeQueue{})
	q, ok := servus.TryGet[*fakeQueue](tr.Registry)
	require.True(t, ok)
	assert.NotNil(t, q)
}

func TestRequireInject(t *testing.T) {
	tr := servustest.New(t)
	tr.StartTicking(5 * time.Millisecond)

	servustest.RequireRegisterReady(tr, &fakeDB{DSN: "test"})

	c := &consumer{}
	tr.RequireInject(c)

	require.NotNil(t, c.DB)
	assert.Equal(t, "test", c.DB.DSN)
	assert.Nil(t, c.Queue)
}

func TestHelpersFailTheTest(t *testing.T) {
	rec := &recordingTB{}
	tr := servustest.New(rec)
	defer rec.runCleanups()

	servustest.RequireReady[*fakeDB](tr) // never registered
	assert.True(t, rec.failed)
}

func TestCleanupClosesRegistry(t *testing.T) {
	rec := &recordingTB{}
	tr := servustest.New(rec)
	tr.StartTicking(5 * time.Millisecond)

	servustest.RequireRegisterReady(tr, &fakeDB{})
	require.Equal(t, 1, tr.Size())

	rec.runCleanups()
	assert.Equal(t, 0, tr.Size())
}

func TestStartTickingIsIdempotent(t *testing.T) {
	tr := servustest.New(t)

	tr.StartTicking(time.Millisecond)
	tr.StartTicking(time.Millisecond)
	tr.StopTicking()
	tr.StopTicking()
}
