package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greensort-data/sortstream/internal/httputil"
)

func TestSelectBest(t *testing.T) {
	t.Parallel()
	const frameArea = 640.0 * 480.0

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, ok := SelectBest(nil, frameArea)
		assert.False(t, ok)
	})

	t.Run("confidence dominates", func(t *testing.T) {
		t.Parallel()
		dets := []Detection{
			{Box: [4]float64{0, 0, 100, 100}, Class: "plastic", Confidence: 0.9},
			{Box: [4]float64{0, 0, 110, 110}, Class: "glass", Confidence: 0.5},
		}
		best, ok := SelectBest(dets, frameArea)
		require.True(t, ok)
		assert.Equal(t, "plastic", best.Class)
	})

	t.Run("large area outweighs a small confidence edge", func(t *testing.T) {
		t.Parallel()
		dets := []Detection{
			// score 0.7*0.55 + 0.3*0.0065 ≈ 0.387
			{Box: [4]float64{0, 0, 50, 40}, Class: "battery", Confidence: 0.55},
			// score 0.7*0.50 + 0.3*0.50 = 0.50
			{Box: [4]float64{0, 0, 640, 240}, Class: "cardboard", Confidence: 0.50},
		}
		best, ok := SelectBest(dets, frameArea)
		require.True(t, ok)
		assert.Equal(t, "cardboard", best.Class)
	})

	t.Run("degenerate boxes score on confidence alone", func(t *testing.T) {
		t.Parallel()
		dets := []Detection{
			{Box: [4]float64{100, 100, 100, 100}, Class: "metal", Confidence: 0.8},
		}
		best, ok := SelectBest(dets, frameArea)
		require.True(t, ok)
		assert.Equal(t, "metal", best.Class)
	})
}

func TestHTTPDetector(t *testing.T) {
	t.Parallel()

	t.Run("decodes detections", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient()
		mock.AddResponse(200, `{"detections":[{"box":[10,20,30,40],"class_name":"plastic","confidence":0.72}]}`)

		d := NewHTTPDetector("http://detector/detect", mock, time.Second)
		dets, err := d.Detect(context.Background(), []byte("jpeg"))
		require.NoError(t, err)
		require.Len(t, dets, 1)
		assert.Equal(t, "plastic", dets[0].Class)
		assert.Equal(t, 0.72, dets[0].Confidence)
		assert.Equal(t, [4]float64{10, 20, 30, 40}, dets[0].Box)

		require.Equal(t, 1, mock.RequestCount())
		req := mock.GetRequest(0)
		assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
		assert.Equal(t, "http://detector/detect", req.URL.String())
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient()
		mock.AddResponse(503, `overloaded`)

		d := NewHTTPDetector("http://detector/detect", mock, time.Second)
		_, err := d.Detect(context.Background(), []byte("jpeg"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("transport error is wrapped", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient()
		mock.AddErrorResponse(errors.New("connection refused"))

		d := NewHTTPDetector("http://detector/detect", mock, time.Second)
		_, err := d.Detect(context.Background(), []byte("jpeg"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("sidecar error field is an error", func(t *testing.T) {
		t.Parallel()
		mock := httputil.NewMockHTTPClient()
		mock.AddResponse(200, `{"detections":[],"error":"model not loaded"}`)

		d := NewHTTPDetector("http://detector/detect", mock, time.Second)
		_, err := d.Detect(context.Background(), []byte("jpeg"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "model not loaded")
	})
}

func TestScriptedDetector(t *testing.T) {
	t.Parallel()

	script := []byte(`[{"box":[0,0,100,100],"class_name":"plastic","confidence":0.7}]

[]
[{"box":[0,0,50,50],"class_name":"glass","confidence":0.6},{"box":[200,200,300,300],"class_name":"metal","confidence":0.5}]
`)

	d, err := NewScriptedDetector(script)
	require.NoError(t, err)
	assert.Equal(t, 3, d.FrameCount())

	ctx := context.Background()

	f1, err := d.Detect(ctx, nil)
	require.NoError(t, err)
	require.Len(t, f1, 1)
	assert.Equal(t, "plastic", f1[0].Class)

	f2, err := d.Detect(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, f2)

	f3, err := d.Detect(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, f3, 2)

	// Cycles back to the first frame.
	f4, err := d.Detect(ctx, nil)
	require.NoError(t, err)
	require.Len(t, f4, 1)
	assert.Equal(t, "plastic", f4[0].Class)
}

func TestScriptedDetectorRejectsBadScript(t *testing.T) {
	t.Parallel()

	_, err := NewScriptedDetector([]byte(""))
	assert.Error(t, err, "empty script")

	_, err = NewScriptedDetector([]byte(`{"not":"an array"}`))
	assert.Error(t, err, "non-array line")
}

func TestScriptedDetectorHonorsContext(t *testing.T) {
	t.Parallel()

	d, err := NewScriptedDetector([]byte(`[]`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Detect(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
