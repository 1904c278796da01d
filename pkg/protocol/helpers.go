package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewProcessFrameMessage creates a process_frame message from a data URL
func NewProcessFrameMessage(dataURL string) (*Message, error) {
	return NewMessage(TypeProcessFrame, dataURL)
}

// NewVideoFrameMessage creates a video_frame message from a data URL
func NewVideoFrameMessage(dataURL string) (*Message, error) {
	return NewMessage(TypeVideoFrame, VideoFrameData{Image: dataURL})
}

// NewStartDetectionMessage creates a start_detection message
func NewStartDetectionMessage() (*Message, error) {
	return NewMessage(TypeStartDetection, nil)
}

// NewStopDetectionMessage creates a stop_detection message
func NewStopDetectionMessage() (*Message, error) {
	return NewMessage(TypeStopDetection, nil)
}

// NewProcessedFrameMessage creates a processed_frame message.
// With no detections the payload uses the bare string form.
func NewProcessedFrameMessage(dataURL string, detections []Detection) (*Message, error) {
	return NewMessage(TypeProcessedFrame, ProcessedFrameData{
		Image:      dataURL,
		Detections: detections,
		Bare:       detections == nil,
	})
}

// NewStatusMessage creates a status message
func NewStatusMessage(status string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{Status: status})
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// NewAckMessage acknowledges the message with the given ID.
// A nil err acknowledges success.
func NewAckMessage(id string, err error) (*Message, error) {
	ack := AckData{ID: id}
	if err != nil {
		ack.Error = err.Error()
	}
	return NewMessage(TypeAck, ack)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	msg, err := NewMessage(TypePing, nil)
	if err != nil {
		return nil, err
	}
	return msg, msg.setData(PingData{ID: id, Timestamp: msg.Timestamp})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

func (m *Message) setData(v interface{}) error {
	tmp, err := NewMessage(m.Type, v)
	if err != nil {
		return err
	}
	m.Data = tmp.Data
	return nil
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameURL extracts the frame data URL from a process_frame or video_frame message
func (m *Message) GetFrameURL() (string, error) {
	if m.Type == TypeVideoFrame {
		var data VideoFrameData
		if err := m.ParseData(&data); err != nil {
			return "", err
		}
		return data.Image, nil
	}
	var s string
	if err := m.ParseData(&s); err != nil {
		return "", err
	}
	return s, nil
}

// GetProcessedFrame extracts a processed frame from a message
func (m *Message) GetProcessedFrame() (*ProcessedFrameData, error) {
	var data ProcessedFrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts ack data from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
