package types

import (
	"encoding/json"
	"time"
)

// Node represents a worker host that runs workloads and hosts an agent
type Node struct {
	ID          string
	Name        string
	Address     string // Public network address of the node
	MaxMemoryMB int64
	MaxCPUCores float64
	Online      bool
	LastSeen    time.Time
	AgentKey    string // Shared secret presented by the agent on connect
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkloadStatus represents the lifecycle state of a workload
type WorkloadStatus string

const (
	StatusStopped      WorkloadStatus = "stopped"
	StatusInstalling   WorkloadStatus = "installing"
	StatusInstalled    WorkloadStatus = "installed"
	StatusStarting     WorkloadStatus = "starting"
	StatusRunning      WorkloadStatus = "running"
	StatusStopping     WorkloadStatus = "stopping"
	StatusCrashed      WorkloadStatus = "crashed"
	StatusSuspended    WorkloadStatus = "suspended"
	StatusTransferring WorkloadStatus = "transferring"
)

// AllStatuses returns every lifecycle state in declaration order.
func AllStatuses() []WorkloadStatus {
	return []WorkloadStatus{
		StatusStopped, StatusInstalling, StatusInstalled,
		StatusStarting, StatusRunning, StatusStopping,
		StatusCrashed, StatusSuspended, StatusTransferring,
	}
}

// NetworkMode defines how a workload's container is attached to the network
type NetworkMode string

const (
	NetworkBridge        NetworkMode = "bridge"
	NetworkMacvlanDHCP   NetworkMode = "macvlan-dhcp"
	NetworkMacvlanStatic NetworkMode = "macvlan-static"
)

// IsIPAM reports whether the control plane assigns the workload's primary IP
// from a configured pool. Despite the name, macvlan-dhcp addresses come from
// the host DHCP stack; only the static variant is pool-managed.
func (m NetworkMode) IsIPAM() bool {
	return m == NetworkMacvlanStatic
}

// UsesHostPorts reports whether the workload occupies host ports on its node.
// Macvlan workloads own their interface and bypass host-port arbitration.
func (m NetworkMode) UsesHostPorts() bool {
	return m == NetworkBridge
}

// Valid reports whether the mode is one of the recognized values.
func (m NetworkMode) Valid() bool {
	switch m {
	case NetworkBridge, NetworkMacvlanDHCP, NetworkMacvlanStatic:
		return true
	}
	return false
}

// RestartPolicy defines when a crashed workload is automatically restarted
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// StopSignal is the signal delivered to a container on stop
type StopSignal string

const (
	SignalTerm StopSignal = "SIGTERM"
	SignalInt  StopSignal = "SIGINT"
	SignalKill StopSignal = "SIGKILL"
)

// BackupMode selects where backup artifacts are stored and how transfer
// moves their bytes between nodes
type BackupMode string

const (
	BackupLocal  BackupMode = "local"  // shared storage, no copy
	BackupS3     BackupMode = "s3"     // object storage staging
	BackupStream BackupMode = "stream" // direct node-to-node via gateway
)

// Workload represents one container-based game-server instance
type Workload struct {
	ID          string
	UUID        string // On-disk directory name and SFTP principal
	Name        string
	Description string
	OwnerID     string
	NodeID      string
	Location    string
	TemplateID  string

	MemoryMB int64
	CPUCores float64
	DiskMB   int64

	NetworkMode  NetworkMode
	NetworkName  string
	PrimaryPort  int
	PortBindings map[int]int // container port -> host port
	PrimaryIP    string      // set only in IPAM modes

	Environment map[string]string

	Status      WorkloadStatus
	CrashCount  int
	LastCrashAt time.Time

	RestartPolicy RestartPolicy
	MaxCrashCount int

	BackupMode     BackupMode
	RetentionCount int
	RetentionDays  int

	SuspendedAt      *time.Time
	SuspendedBy      string
	SuspensionReason string

	ContainerID   string // assigned by the agent
	ContainerName string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Suspended reports whether the workload currently carries suspension
// metadata. Status alone is not authoritative during unsuspend.
func (w *Workload) Suspended() bool {
	return w.Status == StatusSuspended || w.SuspendedAt != nil
}

// Template is a declarative recipe used to provision workloads
type Template struct {
	ID          string
	Name        string
	Description string

	Image         string
	ImageVariants []ImageVariant
	InstallImage  string

	Startup       string // supports {{NAME}} substitution
	StopCommand   string
	StopSignal    StopSignal
	InstallScript string

	Variables []TemplateVariable
	Ports     []int

	DefaultMemoryMB int64
	DefaultCPUCores float64
	DefaultDiskMB   int64

	Features TemplateFeatures

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImageVariant is an alternative container image selectable at create time
type ImageVariant struct {
	Label string
	Image string
}

// InputKind defines how a template variable is rendered and validated
type InputKind string

const (
	InputText     InputKind = "text"
	InputNumber   InputKind = "number"
	InputCheckbox InputKind = "checkbox"
	InputSelect   InputKind = "select"
)

// TemplateVariable is one configurable value exposed by a template. Name is
// the environment variable injected into the workload.
type TemplateVariable struct {
	Name        string
	Description string
	Default     string
	Required    bool
	Input       InputKind
	Rules       string
}

// TemplateFeatures carries optional template behavior knobs
type TemplateFeatures struct {
	IconURL     string
	ConfigFiles []string
	BackupPaths []string
	FileEditor  bool
}

// WorkloadAccess grants a principal a permission set on one workload.
// Rows are ordered by insertion; the owner implicitly holds every
// permission listed anywhere.
type WorkloadAccess struct {
	ID          string
	UserID      string
	WorkloadID  string
	Permissions []string
	CreatedAt   time.Time
}

// Role is a named collection of permission strings. "*" is the wildcard;
// "admin.read" grants read access to every workload.
type Role struct {
	ID          string
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// User is an authenticated principal
type User struct {
	ID        string
	Name      string
	RoleIDs   []string
	CreatedAt time.Time
}

// IPPool holds the addresses a node may hand to IPAM-mode workloads on one
// named network, partitioned into free and reserved sets.
type IPPool struct {
	ID          string
	NodeID      string
	NetworkName string
	Free        []string
	Reserved    map[string]string // address -> workload id
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LogStream tags the origin of a workload log line
type LogStream string

const (
	StreamStdout LogStream = "stdout"
	StreamStderr LogStream = "stderr"
	StreamSystem LogStream = "system" // control-plane decisions
)

// WorkloadLog is one append-only log entry for a workload
type WorkloadLog struct {
	WorkloadID string
	Timestamp  time.Time
	Stream     LogStream
	Line       string
}

// MetricSample is one resource usage reading reported by an agent
type MetricSample struct {
	WorkloadID string
	Timestamp  time.Time
	CPUPercent float64
	MemoryMiB  float64
	DiskMiB    float64
}

// AuditEntry records one mutating action. Append-only; business code never
// updates or deletes entries.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	Actor      string
	Action     string
	Resource   string
	ResourceID string
	Details    json.RawMessage
}

// Backup is one backup artifact created on a node or in object storage
type Backup struct {
	ID         string
	WorkloadID string
	Name       string
	Path       string // filesystem path or object key
	Mode       BackupMode
	SizeMB     int64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Session is an issued API/SFTP session token
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Event is a control-plane event published on the internal broker
type Event struct {
	Type       string
	Timestamp  time.Time
	NodeID     string
	WorkloadID string
	Message    string
	Data       map[string]string
}
