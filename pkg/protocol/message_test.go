package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "process frame",
			msgType: TypeProcessFrame,
			data:    "data:image/jpeg;base64,AAAA",
		},
		{
			name:    "video frame",
			msgType: TypeVideoFrame,
			data:    VideoFrameData{Image: "data:image/jpeg;base64,AAAA"},
		},
		{
			name:    "nil data",
			msgType: TypeStartDetection,
			data:    nil,
		},
		{
			name:    "unmarshalable",
			msgType: TypeStatus,
			data:    make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
			if msg.ID == "" {
				t.Error("NewMessage() id should be set")
			}
		})
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg, _ := NewStartDetectionMessage()
		if seen[msg.ID] {
			t.Fatalf("duplicate message id %s", msg.ID)
		}
		seen[msg.ID] = true
	}
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MessageType
		wantErr bool
	}{
		{"valid status", `{"type":"status","data":{"status":"ok"}}`, TypeStatus, false},
		{"no data", `{"type":"pong"}`, TypePong, false},
		{"missing type", `{"data":{}}`, "", true},
		{"invalid json", `{type:`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && msg.Type != tt.want {
				t.Errorf("ParseMessage() type = %v, want %v", msg.Type, tt.want)
			}
		})
	}
}

func TestProcessedFrameShapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantImg  string
		wantDets int
		wantBare bool
	}{
		{
			name:     "bare string",
			input:    `{"type":"processed_frame","data":"data:image/jpeg;base64,QUJD"}`,
			wantImg:  "data:image/jpeg;base64,QUJD",
			wantBare: true,
		},
		{
			name:     "object with detections",
			input:    `{"type":"processed_frame","data":{"image":"data:image/jpeg;base64,QUJD","detections":[{"label":"person","confidence":91.5},{"label":"dog","confidence":40}]}}`,
			wantImg:  "data:image/jpeg;base64,QUJD",
			wantDets: 2,
		},
		{
			name:    "object without detections",
			input:   `{"type":"processed_frame","data":{"image":"x"}}`,
			wantImg: "x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			pf, err := msg.GetProcessedFrame()
			if err != nil {
				t.Fatalf("GetProcessedFrame() error = %v", err)
			}
			if pf.Image != tt.wantImg {
				t.Errorf("Image = %q, want %q", pf.Image, tt.wantImg)
			}
			if len(pf.Detections) != tt.wantDets {
				t.Errorf("len(Detections) = %d, want %d", len(pf.Detections), tt.wantDets)
			}
			if pf.Bare != tt.wantBare {
				t.Errorf("Bare = %v, want %v", pf.Bare, tt.wantBare)
			}
		})
	}
}

func TestProcessedFrameDetectionValues(t *testing.T) {
	msg, err := NewProcessedFrameMessage("img", []Detection{{Label: "cat", Confidence: 77.25}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(string(msg.Data), `"`) {
		t.Fatalf("detections payload should be an object, got %s", msg.Data)
	}

	b, _ := msg.Bytes()
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatal(err)
	}
	pf, err := parsed.GetProcessedFrame()
	if err != nil {
		t.Fatal(err)
	}
	if pf.Detections[0].Label != "cat" || pf.Detections[0].Confidence != 77.25 {
		t.Errorf("Detections[0] = %+v", pf.Detections[0])
	}

	bare, _ := NewProcessedFrameMessage("img", nil)
	if string(bare.Data) != `"img"` {
		t.Errorf("bare payload = %s, want \"img\"", bare.Data)
	}
}

func TestErrorDataShapes(t *testing.T) {
	for _, input := range []string{
		`{"type":"error","data":"model not loaded"}`,
		`{"type":"error","data":{"message":"model not loaded"}}`,
	} {
		msg, err := ParseMessage([]byte(input))
		if err != nil {
			t.Fatalf("ParseMessage(%s) error = %v", input, err)
		}
		ed, err := msg.GetErrorData()
		if err != nil {
			t.Fatalf("GetErrorData() error = %v", err)
		}
		if ed.Message != "model not loaded" {
			t.Errorf("Message = %q from %s", ed.Message, input)
		}
	}
}

func TestGetFrameURL(t *testing.T) {
	pf, _ := NewProcessFrameMessage("data:image/jpeg;base64,AA==")
	got, err := pf.GetFrameURL()
	if err != nil || got != "data:image/jpeg;base64,AA==" {
		t.Errorf("process_frame GetFrameURL() = %q, %v", got, err)
	}

	vf, _ := NewVideoFrameMessage("data:image/jpeg;base64,BB==")
	got, err = vf.GetFrameURL()
	if err != nil || got != "data:image/jpeg;base64,BB==" {
		t.Errorf("video_frame GetFrameURL() = %q, %v", got, err)
	}
}

func TestAckMessage(t *testing.T) {
	ok, _ := NewAckMessage("abc", nil)
	data, err := ok.GetAckData()
	if err != nil {
		t.Fatal(err)
	}
	if data.ID != "abc" || data.Error != "" {
		t.Errorf("ack = %+v", data)
	}

	failed, _ := NewAckMessage("abc", errors.New("queue full"))
	data, _ = failed.GetAckData()
	if data.Error != "queue full" {
		t.Errorf("ack error = %q", data.Error)
	}
}

func TestPingPong(t *testing.T) {
	ping, err := NewPingMessage("p1")
	if err != nil {
		t.Fatal(err)
	}
	pd, err := ping.GetPingData()
	if err != nil {
		t.Fatal(err)
	}
	if pd.ID != "p1" || pd.Timestamp != ping.Timestamp {
		t.Errorf("ping data = %+v", pd)
	}

	pong, _ := NewPongMessage(pd.ID, pd.Timestamp, pd.Timestamp+15)
	pg, err := pong.GetPongData()
	if err != nil {
		t.Fatal(err)
	}
	if pg.LatencyMs != 15 {
		t.Errorf("LatencyMs = %d, want 15", pg.LatencyMs)
	}
}
