package control

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/screen-recorder/internal/recorder"
)

// SerializedEvent holds an event in both wire formats so each subscriber
// only picks one
type SerializedEvent struct {
	JSONData     []byte
	ProtobufData []byte // base64 of the protobuf Struct, for SSE transport
}

// eventFields flattens ev for the protobuf Struct encoding
func eventFields(ev recorder.Event) map[string]any {
	fields := map[string]any{
		"type": string(ev.Type),
		"at":   ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.SessionID != "" {
		fields["session_id"] = ev.SessionID
	}
	if ev.Cause != "" {
		fields["cause"] = ev.Cause
	}
	if seg := ev.Segment; seg != nil {
		fields["segment"] = map[string]any{
			"index":         seg.Index,
			"path":          seg.Path,
			"duration_ms":   seg.DurationMs(),
			"video_samples": seg.VideoSamples,
			"audio_samples": seg.AudioSamples,
			"bytes":         seg.Bytes,
			"started_at":    seg.StartedAt.UTC().Format(time.RFC3339Nano),
			"ended_at":      seg.EndedAt.UTC().Format(time.RFC3339Nano),
		}
	}
	return fields
}

// Serialize encodes ev as JSON and as a base64 protobuf Struct
func Serialize(ev recorder.Event) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	st, err := structpb.NewStruct(eventFields(ev))
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, eventCh := s.rec.Events().Subscribe()
	defer s.rec.Events().Unsubscribe(id)

	useProtobuf := wantsProtobuf(r)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}

	// tells the client the subscription is live
	if _, err := fmt.Fprint(w, ": subscribed\n\n"); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.cfg.KeepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			se, err := Serialize(ev)
			if err != nil {
				s.log.Error(module, "serialize %s event: %v", ev.Type, err)
				continue
			}
			data := se.JSONData
			if useProtobuf {
				data = se.ProtobufData
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				s.log.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				s.log.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
