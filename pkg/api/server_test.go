package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/embedtools/rtospy/pkg/rtos"
)

// slowRefresher counts refresh passes that ran while another was still
// in flight. The real refresh path halts and resumes the target over a
// single debug connection, so any overlap is a defect.
type slowRefresher struct {
	active   atomic.Int32
	overlaps atomic.Int32
	passes   atomic.Int32
	snap     *rtos.Snapshot
}

func (r *slowRefresher) Refresh() error {
	if r.active.Add(1) > 1 {
		r.overlaps.Add(1)
	}
	time.Sleep(5 * time.Millisecond)
	r.passes.Add(1)
	r.active.Add(-1)
	return nil
}

func (r *slowRefresher) Snapshot() *rtos.Snapshot {
	return r.snap
}

func (r *slowRefresher) DetectionState() (rtos.DetectionState, string) {
	return rtos.DetectionReady, ""
}

func TestSnapshotRequestsSerializeRefresh(t *testing.T) {
	ref := &slowRefresher{snap: &rtos.Snapshot{Records: []rtos.TaskRecord{}}}
	s := NewServer(0, ref, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			s.handleSnapshot(w, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(0), ref.overlaps.Load(), "refresh passes must not overlap")
	assert.Equal(t, int32(4), ref.passes.Load())
}

func TestSnapshotWithoutRefresh(t *testing.T) {
	ref := &slowRefresher{snap: &rtos.Snapshot{Records: []rtos.TaskRecord{{Name: "IDLE"}}}}
	s := NewServer(0, ref, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	s.handleSnapshot(w, httptest.NewRequest(http.MethodGet, "/snapshot?refresh=0", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(0), ref.passes.Load(), "refresh=0 must not touch the target")

	var snap rtos.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "IDLE", snap.Records[0].Name)
}

func TestSnapshotNonePublished(t *testing.T) {
	s := NewServer(0, &slowRefresher{}, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	s.handleSnapshot(w, httptest.NewRequest(http.MethodGet, "/snapshot?refresh=0", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatus(t *testing.T) {
	s := NewServer(0, &slowRefresher{}, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	s.handleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "ready", status["detection"])
}
