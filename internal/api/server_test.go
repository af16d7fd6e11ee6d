package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensort-data/sortstream/internal/db"
	"github.com/greensort-data/sortstream/internal/detect"
	"github.com/greensort-data/sortstream/internal/fsutil"
	"github.com/greensort-data/sortstream/internal/testutil"
	"github.com/greensort-data/sortstream/internal/waste"
)

type stubDetector struct {
	dets []detect.Detection
	err  error
}

func (d *stubDetector) Detect(_ context.Context, _ []byte) ([]detect.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.dets, nil
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp())
	return database
}

func newTestServer(t *testing.T, mod func(*Options)) (*Server, *db.DB) {
	t.Helper()
	database := newTestDB(t)
	opts := Options{
		DB:           database,
		Detector:     &stubDetector{},
		DetectorInfo: detect.Info{Kind: "stub"},
		FS:           fsutil.NewMemoryFileSystem(),
	}
	if mod != nil {
		mod(&opts)
	}
	return NewServer(opts), database
}

// testImageJSON builds a classify/contribute body with a real JPEG.
func testImageJSON(t *testing.T, extra map[string]string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	body := map[string]string{"image": base64.StdEncoding.EncodeToString(buf.Bytes())}
	for k, v := range extra {
		body[k] = v
	}
	out, err := json.Marshal(body)
	require.NoError(t, err)
	return out
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = testutil.NewTestRequestWithBody(method, path, body)
	} else {
		req = testutil.NewTestRequest(method, path)
	}
	rec := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, map[string]interface{}) {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
		Error   string                 `json:"error"`
	}
	testutil.DecodeJSON(t, rec, &envelope)
	return envelope.Success, envelope.Data
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sortstream", body["service"])

	rec = doRequest(t, s, http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatsSummary(t *testing.T) {
	t.Parallel()
	s, database := newTestServer(t, nil)
	for i := 0; i < 3; i++ {
		_, err := database.RecordClassification(db.Classification{
			ClassName: waste.Plastic, Confidence: 80, BinType: waste.BinRecyclable, Source: "upload",
		})
		require.NoError(t, err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/stats/summary?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.EqualValues(t, 3, data["total_classifications"])
	assert.EqualValues(t, 3, data["recyclable_count"])
}

func TestStatsInvalidDays(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/api/stats/summary?days=abc",
		"/api/stats/trend?days=0",
		"/api/stats/distribution/bins?days=-1",
		"/api/stats/distribution/classes?days=x",
	} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	s, database := newTestServer(t, func(o *Options) {
		o.Detector = &stubDetector{dets: []detect.Detection{
			{Box: [4]float64{100, 100, 300, 300}, Class: "plastic", Confidence: 0.7},
		}}
	})

	rec := doRequest(t, s, http.MethodPost, "/api/classify", testImageJSON(t, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.Equal(t, true, data["detected"])
	assert.Equal(t, "plastic", data["class_name_en"])
	assert.InDelta(t, 70.0, data["confidence"].(float64), 1e-9)
	bin := data["bin"].(map[string]interface{})
	assert.Equal(t, "recyclable", bin["bin_type"])

	recent, err := database.RecentClassifications(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "upload", recent[0].Source)
	assert.Equal(t, waste.Plastic, recent[0].ClassName)
}

func TestClassifyComposite(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, func(o *Options) {
		// Cardboard and plastic firing together on the same object is the
		// beverage-carton signature.
		o.Detector = &stubDetector{dets: []detect.Detection{
			{Box: [4]float64{100, 100, 400, 400}, Class: "cardboard", Confidence: 0.5},
			{Box: [4]float64{110, 110, 400, 400}, Class: "plastic", Confidence: 0.4},
		}}
	})

	rec := doRequest(t, s, http.MethodPost, "/api/classify", testImageJSON(t, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.Equal(t, "milk_carton", data["composite"])
	assert.Equal(t, "beverage_carton", data["class_name_en"])
	assert.InDelta(t, 90.0, data["confidence"].(float64), 1e-9)
	bin := data["bin"].(map[string]interface{})
	assert.Equal(t, "recyclable", bin["bin_type"])
}

func TestClassifyNoDetections(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/classify", testImageJSON(t, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.Equal(t, false, data["detected"])
}

func TestClassifyBadImage(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/classify", []byte(`{"image":"!!bad!!"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ok, _ := decodeEnvelope(t, rec)
	assert.False(t, ok)
}

func TestClassifyDetectorDown(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, func(o *Options) {
		o.Detector = &stubDetector{err: fmt.Errorf("sidecar down")}
	})

	rec := doRequest(t, s, http.MethodPost, "/api/classify", testImageJSON(t, nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	s, database := newTestServer(t, nil)
	id, err := database.RecordClassification(db.Classification{
		ClassName: waste.Plastic, Confidence: 80, BinType: waste.BinRecyclable, Source: "upload",
	})
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(`{"history_id":%d,"correct":false,"corrected_class":"glass"}`, id))
	rec := doRequest(t, s, http.MethodPost, "/api/feedback", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/feedback", []byte(`{"history_id":9999,"correct":true}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/feedback", []byte(fmt.Sprintf(`{"history_id":%d,"correct":false}`, id)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/feedback", []byte(`{"history_id":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContribute(t *testing.T) {
	t.Parallel()
	memfs := fsutil.NewMemoryFileSystem()
	s, _ := newTestServer(t, func(o *Options) {
		o.FS = memfs
		o.ContribDir = "/contrib"
	})

	rec := doRequest(t, s, http.MethodPost, "/api/contrib", testImageJSON(t, map[string]string{"label": "plastic"}))
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	path := data["path"].(string)
	assert.True(t, memfs.Exists(path), "image must land in the contrib dir")

	rec = doRequest(t, s, http.MethodPost, "/api/contrib", testImageJSON(t, map[string]string{"label": "vibranium"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContributeDisabled(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil) // no contrib dir configured

	rec := doRequest(t, s, http.MethodPost, "/api/contrib", testImageJSON(t, map[string]string{"label": "plastic"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRealtimeConfigUpdate(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/realtime/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/realtime/config", []byte(`{"min_confidence":0.5}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, s.Tuning().GetMinConfidence())

	// A later partial update keeps earlier fields.
	rec = doRequest(t, s, http.MethodPost, "/api/realtime/config", []byte(`{"iou_threshold":0.4}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.5, s.Tuning().GetMinConfidence())
	assert.Equal(t, 0.4, s.Tuning().GetIoUThreshold())

	rec = doRequest(t, s, http.MethodPost, "/api/realtime/config", []byte(`{"min_confidence":1.5}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0.5, s.Tuning().GetMinConfidence(), "rejected update must not apply")
}

func TestRealtimeStatusAndReset(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/realtime/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data := decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.EqualValues(t, 0, data["sessions"])

	rec = doRequest(t, s, http.MethodPost, "/api/realtime/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ok, data = decodeEnvelope(t, rec)
	require.True(t, ok)
	assert.EqualValues(t, 0, data["sessions_reset"])

	rec = doRequest(t, s, http.MethodGet, "/api/realtime/reset", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)

	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sortstream_frames_received_total")
}

func TestDebugChartsOnlyInDebugMode(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, nil)
	rec := doRequest(t, s, http.MethodGet, "/debug/charts/bins", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s, _ = newTestServer(t, func(o *Options) { o.Debug = true })
	rec = doRequest(t, s, http.MethodGet, "/debug/charts/bins", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")
}
