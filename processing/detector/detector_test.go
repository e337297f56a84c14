package detector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/gallery"
	"github.com/facegate/facegate/internal/models"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
)

// stubAnalyzer returns preset faces or an error, optionally after a delay.
type stubAnalyzer struct {
	faces []models.Face
	err   error
	delay time.Duration
	panic bool

	mu      sync.Mutex
	lastTTA bool
}

func (s *stubAnalyzer) Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error) {
	s.mu.Lock()
	s.lastTTA = tta
	s.mu.Unlock()

	if s.panic {
		panic("model exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.faces, s.err
}

func (s *stubAnalyzer) Close() error { return nil }

func testGallery(t *testing.T) *gallery.Gallery {
	t.Helper()
	g, err := gallery.New([]gallery.Entry{
		{Name: "Alice", Embedding: []float32{1, 0}},
		{Name: "Bob", Embedding: []float32{0, 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func testFrame() gocv.Mat {
	return gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
}

func TestRecognizer_Recognize(t *testing.T) {
	tests := []struct {
		name      string
		analyzer  *stubAnalyzer
		timeout   time.Duration
		wantKind  models.OutcomeKind
		wantNames []string
	}{
		{
			name: "known and unknown faces",
			analyzer: &stubAnalyzer{faces: []models.Face{
				{Box: models.Box{X1: 1, Y1: 2, X2: 20, Y2: 30}, Embedding: []float32{1, 0}},
				{Box: models.Box{X1: 30, Y1: 2, X2: 50, Y2: 30}, Embedding: []float32{-1, -1}},
			}},
			wantKind:  models.OutcomeFaces,
			wantNames: []string{"Alice", models.Unknown},
		},
		{
			name:     "no faces",
			analyzer: &stubAnalyzer{},
			wantKind: models.OutcomeNoFaces,
		},
		{
			name:     "analyzer error",
			analyzer: &stubAnalyzer{err: errors.New("cuda out of memory")},
			wantKind: models.OutcomeError,
		},
		{
			name:     "analyzer panic",
			analyzer: &stubAnalyzer{panic: true},
			wantKind: models.OutcomeError,
		},
		{
			name:     "timeout",
			analyzer: &stubAnalyzer{delay: time.Second},
			timeout:  20 * time.Millisecond,
			wantKind: models.OutcomeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			if tt.timeout > 0 {
				cfg.InferenceTimeout = tt.timeout
			}

			frame := testFrame()
			defer frame.Close()

			out := NewRecognizer(tt.analyzer, testGallery(t), cfg).Recognize(context.Background(), frame)
			if out.Kind != tt.wantKind {
				t.Fatalf("Recognize() kind = %v, want %v (err: %v)", out.Kind, tt.wantKind, out.Err)
			}
			if tt.wantKind == models.OutcomeError && out.Err == nil {
				t.Error("error outcome should carry an error")
			}

			if len(out.Detections) != len(tt.wantNames) {
				t.Fatalf("got %d detections, want %d", len(out.Detections), len(tt.wantNames))
			}
			for i, d := range out.Detections {
				if d.Name != tt.wantNames[i] {
					t.Errorf("detection %d name = %q, want %q", i, d.Name, tt.wantNames[i])
				}
			}
		})
	}
}

func TestRecognizer_Timeout(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.InferenceTimeout = 10 * time.Millisecond

	frame := testFrame()
	defer frame.Close()

	out := NewRecognizer(&stubAnalyzer{delay: time.Second}, testGallery(t), cfg).Recognize(context.Background(), frame)
	if !errors.Is(out.Err, ErrInferenceTimeout) {
		t.Errorf("Recognize() err = %v, want ErrInferenceTimeout", out.Err)
	}
}

// blockingAnalyzer ignores its context and returns only once release is
// closed, like a network stuck inside a forward pass.
type blockingAnalyzer struct {
	release chan struct{}

	mu        sync.Mutex
	calls     int
	active    int
	maxActive int
}

func (b *blockingAnalyzer) Analyze(_ context.Context, _ gocv.Mat, _ bool) ([]models.Face, error) {
	b.mu.Lock()
	b.calls++
	b.active++
	b.maxActive = max(b.maxActive, b.active)
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return nil, nil
}

func (b *blockingAnalyzer) Close() error { return nil }

func (b *blockingAnalyzer) counts() (calls, maxActive int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls, b.maxActive
}

func TestRecognizer_OneCallInFlight(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.InferenceTimeout = 10 * time.Millisecond

	a := &blockingAnalyzer{release: make(chan struct{})}
	r := NewRecognizer(a, testGallery(t), cfg)

	frame := testFrame()
	defer frame.Close()

	out := r.Recognize(context.Background(), frame)
	if !errors.Is(out.Err, ErrInferenceTimeout) {
		t.Fatalf("first Recognize() err = %v, want ErrInferenceTimeout", out.Err)
	}

	for i := 0; i < 3; i++ {
		out = r.Recognize(context.Background(), frame)
		if out.Kind != models.OutcomeError || !errors.Is(out.Err, ErrAnalyzerBusy) {
			t.Fatalf("Recognize() while busy = %v, %v, want ErrAnalyzerBusy", out.Kind, out.Err)
		}
	}

	if calls, maxActive := a.counts(); calls != 1 || maxActive != 1 {
		t.Fatalf("calls = %d, max in flight = %d, want 1 and 1", calls, maxActive)
	}

	close(a.release)

	deadline := time.Now().Add(2 * time.Second)
	for {
		out = r.Recognize(context.Background(), frame)
		if out.Kind == models.OutcomeNoFaces {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("recognizer still busy after release: %v", out.Err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if calls, maxActive := a.counts(); calls != 2 || maxActive != 1 {
		t.Errorf("calls = %d, max in flight = %d, want 2 and 1", calls, maxActive)
	}
}

func TestRecognizer_UsesRuntimeSettings(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.SetTTA(true)
	cfg.SetThreshold(0.1)

	a := &stubAnalyzer{faces: []models.Face{{Embedding: []float32{0.8, 0}}}}
	frame := testFrame()
	defer frame.Close()

	out := NewRecognizer(a, testGallery(t), cfg).Recognize(context.Background(), frame)

	if !a.lastTTA {
		t.Error("analyzer should receive tta=true")
	}
	// Squared distance to Alice is 0.04, inside a 0.1 threshold.
	if out.Detections[0].Identity != 0 {
		t.Errorf("Identity = %d, want 0", out.Detections[0].Identity)
	}

	cfg.SetThreshold(0.01)
	out = NewRecognizer(a, testGallery(t), cfg).Recognize(context.Background(), frame)
	if out.Detections[0].Identity != gallery.NoMatch {
		t.Errorf("Identity = %d, want NoMatch", out.Detections[0].Identity)
	}
}

func TestParseDetections(t *testing.T) {
	data := []float32{
		0, 1, 0.95, 0.10, 0.10, 0.40, 0.50, // strong, large
		0, 1, 0.30, 0.50, 0.50, 0.90, 0.90, // below confidence
		0, 1, 0.99, 0.00, 0.00, 0.02, 0.02, // too small
		0, 1, 0.80, 0.60, 0.20, 1.20, 0.80, // overflows right edge
	}

	faces := parseDetections(data, 640, 480, 0.5, 30, 10)
	if len(faces) != 2 {
		t.Fatalf("got %d faces, want 2", len(faces))
	}

	want := models.Box{X1: 64, Y1: 48, X2: 256, Y2: 240}
	if faces[0].Box != want {
		t.Errorf("first box = %+v, want %+v", faces[0].Box, want)
	}
	if faces[1].Box.X2 != 640 {
		t.Errorf("second box X2 = %d, want clamped to 640", faces[1].Box.X2)
	}

	if limited := parseDetections(data, 640, 480, 0.5, 30, 1); len(limited) != 1 || limited[0].Score != 0.95 {
		t.Errorf("face limit 1 returned %+v", limited)
	}
}

func TestDecodeReply(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		want    int
		wantErr bool
	}{
		{name: "one face", msg: `[{"box":[1,2,30,40],"embedding":[0.1,0.2]}]`, want: 1},
		{name: "empty", msg: `[]`, want: 0},
		{name: "server error", msg: `{"error":"model not loaded"}`, wantErr: true},
		{name: "bad box", msg: `[{"box":[1,2],"embedding":[0.1]}]`, wantErr: true},
		{name: "no embedding", msg: `[{"box":[1,2,3,4]}]`, wantErr: true},
		{name: "garbage", msg: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faces, err := decodeReply([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeReply() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(faces) != tt.want {
				t.Errorf("decodeReply() returned %d faces, want %d", len(faces), tt.want)
			}
		})
	}
}

func newDetectorServer(t *testing.T, reply string) (*httptest.Server, *[]string) {
	t.Helper()

	var mu sync.Mutex
	var queries []string
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage || len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
				conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"expected jpeg"}`))
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte(reply))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestRemoteAnalyzer_Analyze(t *testing.T) {
	srv, queries := newDetectorServer(t, `[{"box":[4,5,40,50],"embedding":[1,0]}]`)
	host := strings.TrimPrefix(srv.URL, "http://")

	a := NewRemoteAnalyzer(host, nil)
	defer a.Close()

	frame := testFrame()
	defer frame.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		faces, err := a.Analyze(ctx, frame, false)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(faces) != 1 || faces[0].Box != (models.Box{X1: 4, Y1: 5, X2: 40, Y2: 50}) {
			t.Fatalf("Analyze() = %+v", faces)
		}
	}

	if _, err := a.Analyze(ctx, frame, true); err != nil {
		t.Fatalf("Analyze(tta) error = %v", err)
	}

	// Same connection is reused until tta changes.
	if len(*queries) != 2 || (*queries)[0] != "tta=0" || (*queries)[1] != "tta=1" {
		t.Errorf("server saw dials %v, want [tta=0 tta=1]", *queries)
	}
}

func TestRemoteAnalyzer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	a := NewRemoteAnalyzer(host, nil)
	defer a.Close()

	frame := testFrame()
	defer frame.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := a.Analyze(ctx, frame, false); err == nil {
		t.Error("Analyze() against a closed server should fail")
	}
}
