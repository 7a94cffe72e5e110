// Collected-data projection types and merge rules.
//
// Assistant messages may carry a typed partial of the onboarding form in
// their metadata. The projector shallow-merges each partial into the
// conversation's CollectedData: later non-nil scalars override earlier
// values, nothing reverts to null once set, and the facility list is
// replaced wholesale by the latest full list supplied (the upstream
// assistant always resends the complete list, never a diff).
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Schedule is one opening-hours entry of a facility. Weekdays are 1..7
// (Monday..Sunday); times are "HH:MM" wall-clock strings; Duration is the
// slot length in minutes; Rate is the price per slot.
type Schedule struct {
	Weekdays  []int   `json:"weekdays"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Duration  int     `json:"duration"`
	Rate      float64 `json:"rate"`
}

// Facility is one bookable facility of the sports center.
type Facility struct {
	Name      string     `json:"name"`
	SportID   string     `json:"sport_id,omitempty"`
	SportName string     `json:"sport_name,omitempty"`
	Schedules []Schedule `json:"schedules"`
}

// FunctionCall is a detected assistant function invocation (name plus raw
// argument payload). Stored for audit; the core only inspects the name.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MessageError is a failure attached to a message by the chat layer.
type MessageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CollectedPartial is the typed partial of the onboarding form carried by
// assistant-message metadata. Nil pointer fields mean "no change"; a non-nil
// Facilities slice replaces the stored list wholesale.
type CollectedPartial struct {
	SportsCenterName *string    `json:"sports_center_name,omitempty"`
	City             *string    `json:"city,omitempty"`
	AdminName        *string    `json:"admin_name,omitempty"`
	AdminEmail       *string    `json:"admin_email,omitempty"`
	Facilities       []Facility `json:"facilities,omitempty"`
	Confirmed        *bool      `json:"confirmed,omitempty"`
	EscalatedToHuman *bool      `json:"escalated_to_human,omitempty"`
	EscalationReason *string    `json:"escalation_reason,omitempty"`
}

// MessageMetadata is the structured payload optionally attached to messages.
type MessageMetadata struct {
	Model         string            `json:"model,omitempty"`
	TokensUsed    int               `json:"tokens_used,omitempty"`
	FunctionCall  *FunctionCall     `json:"function_call,omitempty"`
	CollectedData *CollectedPartial `json:"collected_data,omitempty"`
	Error         *MessageError     `json:"error,omitempty"`
}

// ParseMetadata decodes a message's raw metadata column. A nil or empty
// column yields a nil result without error.
func ParseMetadata(raw datatypes.JSON) (*MessageMetadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var md MessageMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// FacilityList decodes the stored facilities column. A nil or empty column
// yields an empty slice.
func (c *CollectedData) FacilityList() ([]Facility, error) {
	if len(c.Facilities) == 0 {
		return []Facility{}, nil
	}
	var out []Facility
	if err := json.Unmarshal(c.Facilities, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyPartial merges p into c following the projection rules. It reports
// whether anything changed so callers can skip no-op writes.
//
// EscalatedToHuman is monotonic: once true it never flips back, regardless
// of what later partials claim.
func (c *CollectedData) ApplyPartial(p *CollectedPartial) (changed bool, err error) {
	if p == nil {
		return false, nil
	}
	if mergeString(&c.SportsCenterName, p.SportsCenterName) {
		changed = true
	}
	if mergeString(&c.City, p.City) {
		changed = true
	}
	if mergeString(&c.AdminName, p.AdminName) {
		changed = true
	}
	if mergeString(&c.AdminEmail, p.AdminEmail) {
		changed = true
	}
	if p.Facilities != nil {
		raw, merr := json.Marshal(p.Facilities)
		if merr != nil {
			return changed, merr
		}
		if string(c.Facilities) != string(raw) {
			c.Facilities = datatypes.JSON(raw)
			changed = true
		}
	}
	if p.Confirmed != nil && *p.Confirmed && !c.Confirmed {
		c.Confirmed = true
		changed = true
	}
	if p.EscalatedToHuman != nil && *p.EscalatedToHuman && !c.EscalatedToHuman {
		c.EscalatedToHuman = true
		changed = true
	}
	if mergeString(&c.EscalationReason, p.EscalationReason) {
		changed = true
	}
	return changed, nil
}

// mergeString overrides dst with src when src is a non-nil, non-blank value.
// It never clears an already-set destination.
func mergeString(dst **string, src *string) bool {
	if src == nil {
		return false
	}
	v := strings.TrimSpace(*src)
	if v == "" {
		return false
	}
	if *dst != nil && **dst == v {
		return false
	}
	*dst = &v
	return true
}

// Completeness reports whether the record holds enough data to attempt a
// provisioning call, together with the list of missing fields. Language is
// held on the conversation rather than the projection, so it is passed in.
//
// Besides presence checks it validates facility schedules: every facility
// needs at least one schedule, and no two schedules of the same facility may
// overlap on a shared weekday (reported as "facility_schedules").
func (c *CollectedData) Completeness(language string) (complete bool, missing []string) {
	if c.SportsCenterName == nil {
		missing = append(missing, "sports_center_name")
	}
	if c.City == nil {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(language) == "" {
		missing = append(missing, "language")
	}
	if c.AdminName == nil {
		missing = append(missing, "admin_name")
	}
	if c.AdminEmail == nil {
		missing = append(missing, "admin_email")
	}

	facilities, err := c.FacilityList()
	switch {
	case err != nil, len(facilities) == 0:
		missing = append(missing, "facilities")
	default:
		for _, f := range facilities {
			if len(f.Schedules) == 0 || overlappingSchedules(f.Schedules) {
				missing = append(missing, "facility_schedules")
				break
			}
		}
	}
	return len(missing) == 0, missing
}

// overlappingSchedules reports whether any two schedules share a weekday and
// an overlapping [start, end) time range.
func overlappingSchedules(schedules []Schedule) bool {
	type span struct{ start, end int }
	byDay := make(map[int][]span)
	for _, s := range schedules {
		start, ok1 := parseClock(s.StartTime)
		end, ok2 := parseClock(s.EndTime)
		if !ok1 || !ok2 || end <= start {
			return true // malformed counts as a violation, never silently accepted
		}
		for _, d := range s.Weekdays {
			for _, prev := range byDay[d] {
				if start < prev.end && prev.start < end {
					return true
				}
			}
			byDay[d] = append(byDay[d], span{start, end})
		}
	}
	return false
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// RecordFailure replaces LastError with the given classification and, when
// countRetry is set, increments the retry counter. The timestamp is stored
// in UTC.
func (c *CollectedData) RecordFailure(code, message string, at time.Time, countRetry bool) {
	ts := at.UTC()
	c.LastError.Code = code
	c.LastError.Message = message
	c.LastError.OccurredAt = &ts
	if countRetry {
		c.LastError.RetryCount++
	}
}

// MissingFieldsError renders a completeness failure as a stable, compact
// message for the failure ledger.
func MissingFieldsError(missing []string) string {
	return fmt.Sprintf("incomplete collected data: missing %s", strings.Join(missing, ", "))
}
