package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/models"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// RemoteAnalyzer sends frames as JPEG to an inference server over a websocket
// and reads back one JSON reply per frame. A broken connection is dropped and
// dialled again on the next call.
type RemoteAnalyzer struct {
	mu sync.Mutex

	host   string
	dialer *websocket.Dialer
	log    *slog.Logger

	conn    *websocket.Conn
	connTTA bool
}

type remoteError struct {
	Error string `json:"error"`
}

func NewRemoteAnalyzer(host string, log *slog.Logger) *RemoteAnalyzer {
	if log == nil {
		log = slog.Default()
	}
	return &RemoteAnalyzer{
		host:   host,
		dialer: websocket.DefaultDialer,
		log:    log.With("component", "remote-analyzer"),
	}
}

func (d *RemoteAnalyzer) serverURL(tta bool) string {
	q := url.Values{}
	if tta {
		q.Set("tta", "1")
	} else {
		q.Set("tta", "0")
	}
	u := url.URL{Scheme: "ws", Host: d.host, Path: "/ws", RawQuery: q.Encode()}
	return u.String()
}

func (d *RemoteAnalyzer) connect(ctx context.Context, tta bool) (*websocket.Conn, error) {
	if d.conn != nil && d.connTTA == tta {
		return d.conn, nil
	}
	d.drop()

	u := d.serverURL(tta)
	d.log.Info("connecting to detector server", "url", u)

	conn, _, err := d.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "connection failed")
	}

	d.log.Info("connected to detection server")
	d.conn, d.connTTA = conn, tta
	return conn, nil
}

func (d *RemoteAnalyzer) drop() {
	if d.conn == nil {
		return
	}
	d.conn.Close()
	d.conn = nil
}

func (d *RemoteAnalyzer) Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, errors.Wrap(err, "JPEG encode error")
	}
	defer buf.Close()
	payload := bytes.Clone(buf.GetBytes())

	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx, tta)
	if err != nil {
		return nil, err
	}

	var deadline time.Time
	if dl, ok := ctx.Deadline(); ok {
		deadline = dl
	}
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		d.log.Warn("connection lost", "error", err)
		d.drop()
		return nil, errors.Wrap(err, "send frame")
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		d.log.Warn("connection lost", "error", err)
		d.drop()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(err, "read reply")
	}

	return decodeReply(message)
}

func decodeReply(message []byte) ([]models.Face, error) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var re remoteError
		if err := json.Unmarshal(trimmed, &re); err != nil {
			return nil, errors.Wrap(err, "JSON decode error")
		}
		return nil, errors.Errorf("remote analyzer: %s", re.Error)
	}

	var results []models.FaceResult
	if err := json.Unmarshal(trimmed, &results); err != nil {
		return nil, errors.Wrap(err, "JSON decode error")
	}

	faces := make([]models.Face, 0, len(results))
	for i, r := range results {
		if len(r.Box) != 4 {
			return nil, errors.Errorf("face %d: box has %d coordinates", i, len(r.Box))
		}
		if len(r.Embedding) == 0 {
			return nil, errors.Errorf("face %d: missing embedding", i)
		}
		faces = append(faces, models.Face{
			Box: models.Box{
				X1: int(r.Box[0]),
				Y1: int(r.Box[1]),
				X2: int(r.Box[2]),
				Y2: int(r.Box[3]),
			},
			Embedding: r.Embedding,
		})
	}
	return faces, nil
}

func (d *RemoteAnalyzer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop()
	return nil
}
