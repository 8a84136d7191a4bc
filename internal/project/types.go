package project

import (
	"bytes"
	"encoding/json"
	"time"
)

// timeLayout is the fixed-width UTC timestamp format stored in the database.
// Unlike RFC3339Nano it never trims trailing zeros, so lexicographic
// comparison of stored values matches chronological order and delta queries
// can compare timestamps as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders a timestamp in the stored database format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseStoredTime parses a timestamp previously written by FormatTime.
// Falls back to RFC 3339 for rows written by SQLite defaults.
func ParseStoredTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// Project is the root of a sync hierarchy, owned by exactly one user.
// Version is the optimistic-concurrency counter: it advances by exactly
// one per accepted batch, regardless of how many rows the batch touched.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Note      string    `json:"note,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// Room is a top-level container within a project.
// Name is optional; unnamed rooms are always inserted fresh on
// upsert-without-id since there is no natural key to match on.
type Room struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	Name      *string   `json:"name,omitempty"`
	Meta      Meta      `json:"meta,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// Group is a device container within a room. RoomID must reference a room
// in the same project.
type Group struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	RoomID    string    `json:"roomId"`
	Name      *string   `json:"name,omitempty"`
	Meta      Meta      `json:"meta,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// Device is a leaf entity. GroupID may be absent on input; resolution
// (explicit id, room hint, or failure) happens during batch apply, and a
// persisted device always has a concrete group.
type Device struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"projectId,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	Name      string    `json:"name"`
	Meta      Meta      `json:"meta,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	IsDeleted bool      `json:"isDeleted,omitempty"`
}

// Meta is an opaque string-keyed map attached to sync entities.
//
// Parsing is best-effort: clients historically sent meta as either a JSON
// object or a JSON-encoded string containing an object. Malformed content
// decodes to nil rather than failing the surrounding operation.
type Meta map[string]any

// UnmarshalJSON accepts an object, a JSON string containing an object,
// or null. Anything else is treated as absent.
func (m *Meta) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		*m = obj
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			*m = obj
			return nil
		}
	}

	*m = nil
	return nil
}

// RoomHint returns the room id embedded in device meta, if any.
// Both roomId and room_id spellings are accepted.
func (m Meta) RoomHint() string {
	for _, key := range []string{"roomId", "room_id"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// RoomSet carries room upserts and tombstone ids, used both as batch input
// and delta output.
type RoomSet struct {
	Upsert []Room   `json:"upsert"`
	Delete []string `json:"delete"`
}

// GroupSet carries group upserts and tombstone ids.
type GroupSet struct {
	Upsert []Group  `json:"upsert"`
	Delete []string `json:"delete"`
}

// DeviceSet carries device upserts and tombstone ids.
type DeviceSet struct {
	Upsert []Device `json:"upsert"`
	Delete []string `json:"delete"`
}

// BatchOps is the per-entity operation payload of a batch request.
// Absent sections mean no operations for that entity type.
type BatchOps struct {
	Rooms   *RoomSet   `json:"rooms,omitempty"`
	Groups  *GroupSet  `json:"groups,omitempty"`
	Devices *DeviceSet `json:"devices,omitempty"`
}

// BatchRequest is one client-submitted sync batch.
// BaseVersion is the project version the client believed was current;
// it is used only to detect and report staleness, never to block writes.
type BatchRequest struct {
	BaseVersion *int64   `json:"baseVersion,omitempty"`
	Ops         BatchOps `json:"ops"`
}

// Conflict reports one operation applied despite a stale baseVersion.
// Informational only: the batch succeeded.
type Conflict struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of a successfully applied batch.
type BatchResult struct {
	NewVersion int64      `json:"newVersion"`
	Conflicts  []Conflict `json:"conflicts"`
}

// Counts returns upsert and delete totals for metrics.
func (r *BatchRequest) Counts() (upserts, deletes int) {
	if r.Ops.Rooms != nil {
		upserts += len(r.Ops.Rooms.Upsert)
		deletes += len(r.Ops.Rooms.Delete)
	}
	if r.Ops.Groups != nil {
		upserts += len(r.Ops.Groups.Upsert)
		deletes += len(r.Ops.Groups.Delete)
	}
	if r.Ops.Devices != nil {
		upserts += len(r.Ops.Devices.Upsert)
		deletes += len(r.Ops.Devices.Delete)
	}
	return upserts, deletes
}

// Delta is the incremental change set for a project since a timestamp.
type Delta struct {
	Rooms   RoomSet   `json:"rooms"`
	Groups  GroupSet  `json:"groups"`
	Devices DeviceSet `json:"devices"`
}

// Tree is a live snapshot of a project's hierarchy (tombstones excluded).
type Tree struct {
	Project Project  `json:"project"`
	Rooms   []Room   `json:"rooms"`
	Groups  []Group  `json:"groups"`
	Devices []Device `json:"devices"`
}
