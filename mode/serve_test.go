package mode

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nadimsalem/ei-go/pipeline"
)

func serveFeed(t *testing.T, shared *pipeline.SharedFrame, window time.Duration) *httptest.ResponseRecorder {
	t.Helper()

	ctx, canx := context.WithTimeout(context.Background(), window)
	defer canx()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/video_feed", nil).WithContext(ctx)

	// The handler streams until the client goes away; the request context
	// deadline plays the client here.
	videoFeed(shared, 5*time.Millisecond)(rec, req, nil)
	return rec
}

func TestVideoFeedStreamsLatestFrame(t *testing.T) {
	shared := &pipeline.SharedFrame{}
	shared.Set([]byte("JPEGDATA"))

	rec := serveFeed(t, shared, 100*time.Millisecond)

	require.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Body.String(),
		"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: 8\r\n\r\nJPEGDATA\r\n")
}

func TestVideoFeedToleratesEmptyBuffer(t *testing.T) {
	rec := serveFeed(t, &pipeline.SharedFrame{}, 50*time.Millisecond)

	require.Equal(t, "multipart/x-mixed-replace; boundary=frame", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Body.String())
}
