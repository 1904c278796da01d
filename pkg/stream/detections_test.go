package stream

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/teslashibe/go-framestream/pkg/capture"
	"github.com/teslashibe/go-framestream/pkg/channel"
	"github.com/teslashibe/go-framestream/pkg/protocol"
)

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != nil {
		t.Errorf("Summarize(nil) = %+v", got)
	}

	got := Summarize([]protocol.Detection{
		{Label: "car", Confidence: 60},
		{Label: "person", Confidence: 70},
		{Label: "car", Confidence: 88},
		{Label: "car", Confidence: 75},
	})
	want := []LabelSummary{
		{Label: "car", Count: 3, MaxConfidence: 88},
		{Label: "person", Count: 1, MaxConfidence: 70},
	}
	if len(got) != len(want) {
		t.Fatalf("Summarize() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDescribe(t *testing.T) {
	unavailable := &capture.UnavailableError{Attempts: []*capture.AttemptError{
		{Err: capture.ErrDeviceBusy},
	}}
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrInsecureContext, "secure"},
		{ErrChannelDisconnected, "Not connected"},
		{fmt.Errorf("send: %w", channel.ErrNotConnected), "Not connected"},
		{ErrAlreadyRunning, "already running"},
		{unavailable, "in use"},
		{&ServerError{Message: "model not loaded"}, "Server error: model not loaded"},
		{ErrResponseTimeout, "did not answer"},
		{errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		if got := Describe(tt.err); !strings.Contains(got, tt.want) || (tt.want == "" && got != "") {
			t.Errorf("Describe(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}

	if !errors.Is(&ServerError{Message: "x"}, ErrChannelError) {
		t.Error("ServerError should match ErrChannelError")
	}
}
