package project

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation limits. Batches beyond these sizes indicate a runaway client
// rather than a real sync workload.
const (
	maxNameLength   = 200
	maxNoteLength   = 2000
	maxBatchOps     = 1000
	maxMetaKeys     = 100
	maxMetaValueLen = 4096
	maxMetaDepth    = 8
)

// ValidateID checks that an id is a well-formed UUID.
func ValidateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidation, field)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s is not a valid uuid", ErrValidation, field)
	}
	return nil
}

// ValidateName checks an entity name against length limits.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrValidation)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	return nil
}

// NormalizeName returns the case-folded, trimmed form of a name used as
// the natural-key column for upsert-without-id matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateMeta checks a meta map against size limits.
func ValidateMeta(m Meta) error {
	if m == nil {
		return nil
	}
	if len(m) > maxMetaKeys {
		return fmt.Errorf("%w: meta exceeds %d keys", ErrValidation, maxMetaKeys)
	}
	return validateMetaMap(map[string]any(m), 0)
}

func validateMetaMap(m map[string]any, depth int) error {
	if depth > maxMetaDepth {
		return fmt.Errorf("%w: meta exceeds maximum nesting depth", ErrValidation)
	}
	for k, v := range m {
		if len(k) > maxMetaValueLen {
			return fmt.Errorf("%w: meta key too long", ErrValidation)
		}
		if err := validateMetaValue(v, depth); err != nil {
			return err
		}
	}
	return nil
}

func validateMetaValue(v any, depth int) error {
	switch val := v.(type) {
	case string:
		if len(val) > maxMetaValueLen {
			return fmt.Errorf("%w: meta string value too long", ErrValidation)
		}
	case map[string]any:
		if len(val) > maxMetaKeys {
			return fmt.Errorf("%w: meta nested map too large", ErrValidation)
		}
		return validateMetaMap(val, depth+1)
	case []any:
		if len(val) > maxMetaKeys {
			return fmt.Errorf("%w: meta array too large", ErrValidation)
		}
		for _, elem := range val {
			if err := validateMetaValue(elem, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateBatch checks a whole batch request before any row is written.
// Every malformed id or field aborts the batch up front, so a rejected
// batch leaves zero trace in the store.
func ValidateBatch(req *BatchRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}

	upserts, deletes := req.Counts()
	if upserts+deletes > maxBatchOps {
		return fmt.Errorf("%w: batch exceeds %d operations", ErrValidation, maxBatchOps)
	}

	if req.Ops.Rooms != nil {
		for i := range req.Ops.Rooms.Upsert {
			if err := validateRoomUpsert(&req.Ops.Rooms.Upsert[i]); err != nil {
				return err
			}
		}
		if err := validateDeleteIDs("rooms", req.Ops.Rooms.Delete); err != nil {
			return err
		}
	}
	if req.Ops.Groups != nil {
		for i := range req.Ops.Groups.Upsert {
			if err := validateGroupUpsert(&req.Ops.Groups.Upsert[i]); err != nil {
				return err
			}
		}
		if err := validateDeleteIDs("groups", req.Ops.Groups.Delete); err != nil {
			return err
		}
	}
	if req.Ops.Devices != nil {
		for i := range req.Ops.Devices.Upsert {
			if err := validateDeviceUpsert(&req.Ops.Devices.Upsert[i]); err != nil {
				return err
			}
		}
		if err := validateDeleteIDs("devices", req.Ops.Devices.Delete); err != nil {
			return err
		}
	}

	return nil
}

func validateRoomUpsert(r *Room) error {
	if r.ID != "" {
		if err := ValidateID("room id", r.ID); err != nil {
			return err
		}
	}
	if r.Name != nil {
		if err := ValidateName(*r.Name); err != nil {
			return err
		}
	}
	return ValidateMeta(r.Meta)
}

func validateGroupUpsert(g *Group) error {
	if g.ID != "" {
		if err := ValidateID("group id", g.ID); err != nil {
			return err
		}
	}
	if err := ValidateID("group roomId", g.RoomID); err != nil {
		return err
	}
	if g.Name != nil {
		if err := ValidateName(*g.Name); err != nil {
			return err
		}
	}
	return ValidateMeta(g.Meta)
}

func validateDeviceUpsert(d *Device) error {
	if d.ID != "" {
		if err := ValidateID("device id", d.ID); err != nil {
			return err
		}
	}
	if d.GroupID != "" {
		if err := ValidateID("device groupId", d.GroupID); err != nil {
			return err
		}
	}
	if err := ValidateName(d.Name); err != nil {
		return fmt.Errorf("%w (device name required)", err)
	}
	if hint := d.Meta.RoomHint(); hint != "" {
		if err := ValidateID("device room hint", hint); err != nil {
			return err
		}
	}
	return ValidateMeta(d.Meta)
}

func validateDeleteIDs(entity string, ids []string) error {
	for _, id := range ids {
		if err := ValidateID(entity+" delete id", id); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProjectName checks a project name for create/update operations.
func ValidateProjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: project name cannot be blank", ErrValidation)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: project name exceeds %d characters", ErrValidation, maxNameLength)
	}
	return nil
}

// ValidateProjectNote checks a project note for create/update operations.
func ValidateProjectNote(note string) error {
	if len(note) > maxNoteLength {
		return fmt.Errorf("%w: project note exceeds %d characters", ErrValidation, maxNoteLength)
	}
	return nil
}
