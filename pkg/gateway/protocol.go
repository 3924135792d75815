package gateway

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/catalystpanel/catalyst/pkg/types"
)

// Command frame types recognized by agents
const (
	CmdInstallServer = "install_server"
	CmdStartServer   = "start_server"
	CmdStopServer    = "stop_server"
	CmdRestartServer = "restart_server"
	CmdResizeStorage = "resize_storage"
	CmdCreateBackup  = "create_backup"
	CmdRestoreBackup = "restore_backup"
	CmdUploadChunk   = "upload_blob_chunk"
	CmdCancel        = "cancel"
)

// Event frame types emitted by agents
const (
	EvtHello           = "hello"
	EvtStatusUpdate    = "status_update"
	EvtLog             = "log"
	EvtMetrics         = "metrics"
	EvtBackupComplete  = "backup_complete"
	EvtRestoreComplete = "restore_complete"
	EvtHeartbeat       = "node_heartbeat"
)

const (
	// MaxFrameSize caps a single frame body. The wire contract requires at
	// least 1 MiB; 4 MiB leaves headroom for chunk frames plus JSON and
	// base64 overhead.
	MaxFrameSize = 4 << 20

	// MaxChunkData caps the data carried by one upload_blob_chunk frame.
	MaxChunkData = 1 << 20
)

// Frame is the envelope for every message in either direction. Payload
// holds the type-specific body.
type Frame struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewFrame builds a frame with a marshaled payload
func NewFrame(frameType, correlationID string, payload any) (*Frame, error) {
	f := &Frame{Type: frameType, CorrelationID: correlationID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", frameType, err)
		}
		f.Payload = raw
	}
	return f, nil
}

// Decode unmarshals the frame payload into v
func (f *Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s frame has no payload", f.Type)
	}
	return json.Unmarshal(f.Payload, v)
}

// WriteFrame writes one length-delimited frame: 4-byte big-endian body
// length, then the JSON body.
func WriteFrame(w io.Writer, f *Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", len(body), MaxFrameSize)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-delimited frame
func ReadFrame(r io.Reader) (*Frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d outside (0, %d]", n, MaxFrameSize)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	f := &Frame{}
	if err := json.Unmarshal(body, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return f, nil
}

// Hello is the first frame an agent sends after connecting
type Hello struct {
	NodeID string `json:"nodeId"`
	Key    string `json:"key"`
}

// Command is the payload for every lifecycle command frame. Fields beyond
// the workload identity are populated per command type; agents ignore what
// they do not need.
type Command struct {
	ServerID   string `json:"serverId"`
	ServerUUID string `json:"serverUuid"`

	Template    *types.Template   `json:"template,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`

	MemoryMB int64   `json:"memoryMb,omitempty"`
	CPUCores float64 `json:"cpuCores,omitempty"`
	DiskMB   int64   `json:"diskMb,omitempty"`

	PrimaryPort  int         `json:"primaryPort,omitempty"`
	PortBindings map[int]int `json:"portBindings,omitempty"`
	NetworkMode  string      `json:"networkMode,omitempty"`

	// Backup and restore
	BackupID   string `json:"backupId,omitempty"`
	BackupName string `json:"backupName,omitempty"`
	BackupPath string `json:"backupPath,omitempty"`
	BackupMode string `json:"backupMode,omitempty"`
}

// BlobChunk carries one slice of a streamed artifact. Chunks arrive in
// order on the session stream; EOS terminates the transfer.
type BlobChunk struct {
	TargetPath string `json:"targetPath"`
	Seq        int    `json:"seq"`
	Data       []byte `json:"data,omitempty"` // base64 on the wire
	EOS        bool   `json:"eos,omitempty"`
}

// StatusUpdate reports a workload state observed by the agent
type StatusUpdate struct {
	ServerID      string `json:"serverId"`
	NewStatus     string `json:"newStatus"`
	ContainerID   string `json:"containerId,omitempty"`
	ContainerName string `json:"containerName,omitempty"`
}

// LogLine is one line of workload output
type LogLine struct {
	ServerID string `json:"serverId"`
	Stream   string `json:"stream"`
	Line     string `json:"line"`
}

// Metrics is one resource usage sample for a workload
type Metrics struct {
	ServerID   string    `json:"serverId"`
	CPUPercent float64   `json:"cpuPercent"`
	MemoryMiB  float64   `json:"memMib"`
	DiskMiB    float64   `json:"diskMib"`
	Timestamp  time.Time `json:"timestamp"`
}

// BackupComplete reports a finished backup
type BackupComplete struct {
	ServerID string `json:"serverId"`
	BackupID string `json:"backupId"`
	Path     string `json:"path"`
	SizeMB   int64  `json:"sizeMb"`
}

// RestoreComplete reports a finished restore attempt
type RestoreComplete struct {
	ServerID string `json:"serverId"`
	BackupID string `json:"backupId"`
	OK       bool   `json:"ok"`
	Err      string `json:"err,omitempty"`
}
