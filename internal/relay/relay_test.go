package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/mubayin/signseq/internal/detector"
	"github.com/mubayin/signseq/internal/features"
	"github.com/mubayin/signseq/internal/signs"
)

func TestClient_Predict(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"string sign", http.StatusOK, `{"predicted_sign":"7"}`, "7", false},
		{"numeric sign", http.StatusOK, `{"predicted_sign":12}`, "12", false},
		{"missing sign", http.StatusOK, `{}`, "Unknown", false},
		{"server error", http.StatusInternalServerError, `boom`, "", true},
		{"bad json", http.StatusOK, `not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				Features []float64 `json:"features"`
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			sign, err := NewClient(srv.URL, 0).Predict(context.Background(), []float64{0.5, 1})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sign)
			assert.Equal(t, []float64{0.5, 1}, got.Features)
		})
	}
}

func TestClient_NoURL(t *testing.T) {
	_, err := NewClient("", 0).Predict(context.Background(), nil)
	assert.Error(t, err)
}

type fakeModel struct {
	sign  string
	err   error
	calls int
}

func (f *fakeModel) Predict(ctx context.Context, features []float64) (string, error) {
	f.calls++
	return f.sign, f.err
}

func jpeg(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func newTestService(t *testing.T, det detector.Detector, m Predictor) (*Service, string) {
	t.Helper()
	table, err := signs.Parse(strings.NewReader("SignID,Sign-Arabic\n2,شكرا\n"))
	require.NoError(t, err)
	dir := filepath.Join(t.TempDir(), "upload")
	s, err := NewService(Config{Detector: det, Model: m, Signs: table, UploadDir: dir})
	require.NoError(t, err)
	return s, dir
}

func TestService_Process(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.OpenPalmLandmarks()})
	model := &fakeModel{sign: "2"}
	s, dir := newTestService(t, det, model)

	resp, err := s.Process(context.Background(), "../hand.jpg", jpeg(t))
	require.NoError(t, err)
	assert.Equal(t, MessageProcessed, resp.Message)
	assert.Equal(t, "2", resp.PredictedSign)
	assert.Equal(t, "شكرا", resp.SignArabic)
	assert.Len(t, resp.Keypoints, features.HandsWidth)

	for _, name := range []string{"hand.jpg", "processed_hand.jpg"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestService_NoHands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	model := &fakeModel{sign: "2"}
	s, _ := newTestService(t, detector.NewMockDetector(), model)

	resp, err := s.Process(context.Background(), "empty.jpg", jpeg(t))
	require.NoError(t, err)
	assert.Equal(t, &Response{Message: MessageNoHands}, resp)
	assert.Equal(t, 0, model.calls)
}

func TestService_RemoteFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.ThumbsUpLandmarks()})
	s, _ := newTestService(t, det, &fakeModel{err: errors.New("unreachable")})

	resp, err := s.Process(context.Background(), "hand.jpg", jpeg(t))
	require.NoError(t, err)
	assert.Equal(t, SignError, resp.PredictedSign)
	assert.Equal(t, signs.Unknown, resp.SignArabic)
}

func TestService_UnreadableImage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV")
	}

	s, _ := newTestService(t, detector.NewMockDetector(), &fakeModel{})
	_, err := s.Process(context.Background(), "junk.jpg", []byte("junk"))
	assert.True(t, errors.Is(err, ErrUnreadableImage))
}
