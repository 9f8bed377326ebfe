package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/nsrw/wheelhil/pkg/telemetry"
)

// jsonCondition mirrors the condition object of spec §6. Pointer fields
// distinguish "unset" from the zero value.
type jsonCondition struct {
	ModeIn   *string  `json:"mode_in,omitempty"`
	RPMGt    *float32 `json:"rpm_gt,omitempty"`
	RPMLt    *float32 `json:"rpm_lt,omitempty"`
	NspCmdEq *string  `json:"nsp_cmd_eq,omitempty"`
}

// jsonAction mirrors the action object of spec §6.
type jsonAction struct {
	InjectCRCError    *bool    `json:"inject_crc_error,omitempty"`
	DropFramesPct     *uint32  `json:"drop_frames_pct,omitempty"`
	DelayReplyMs      *uint32  `json:"delay_reply_ms,omitempty"`
	ForceNack         *bool    `json:"force_nack,omitempty"`
	FlipStatusBits    *uint32  `json:"flip_status_bits,omitempty"`
	SetFaultBits      *uint32  `json:"set_fault_bits,omitempty"`
	ClearFaultBits    *uint32  `json:"clear_fault_bits,omitempty"`
	LimitPowerW       *float32 `json:"limit_power_w,omitempty"`
	LimitCurrentA     *float32 `json:"limit_current_a,omitempty"`
	LimitSpeedRPM     *float32 `json:"limit_speed_rpm,omitempty"`
	OverrideTorqueMNm *float32 `json:"override_torque_mNm,omitempty"`
	OverspeedFault    *bool    `json:"overspeed_fault,omitempty"`
	TripLCL           *bool    `json:"trip_lcl,omitempty"`
}

// jsonEvent mirrors one schedule entry of spec §6.
type jsonEvent struct {
	TMs        *uint32        `json:"t_ms"`
	DurationMs *uint32        `json:"duration_ms,omitempty"`
	Condition  *jsonCondition `json:"condition,omitempty"`
	Action     *jsonAction    `json:"action"`
}

// jsonScenario mirrors the top-level schema of spec §6.
type jsonScenario struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description,omitempty"`
	Version     *string     `json:"version,omitempty"`
	Schedule    []jsonEvent `json:"schedule"`
}

// LoadJSON parses the scenario JSON schema of spec §6. Rejects with a
// named error for a missing name/schedule or an event count exceeding
// MaxEvents; unknown keys are skipped by encoding/json's default
// behavior, satisfying "unknown keys are skipped".
func LoadJSON(data []byte) (*Scenario, error) {
	var raw jsonScenario
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scenario: invalid JSON: %w", err)
	}
	if raw.Name == nil || *raw.Name == "" {
		return nil, fmt.Errorf("scenario: missing required field \"name\"")
	}
	if len(*raw.Name) > 31 {
		return nil, fmt.Errorf("scenario: name exceeds 31 characters")
	}
	if raw.Schedule == nil {
		return nil, fmt.Errorf("scenario: missing required field \"schedule\"")
	}
	if len(raw.Schedule) > MaxEvents {
		return nil, fmt.Errorf("scenario: %d events exceeds capacity %d", len(raw.Schedule), MaxEvents)
	}

	description := ""
	if raw.Description != nil {
		if len(*raw.Description) > 127 {
			return nil, fmt.Errorf("scenario: description exceeds 127 characters")
		}
		description = *raw.Description
	}

	s := &Scenario{Name: *raw.Name, Description: description}
	for i, je := range raw.Schedule {
		ev, err := buildEvent(je)
		if err != nil {
			return nil, fmt.Errorf("scenario: event %d: %w", i, err)
		}
		s.Events = append(s.Events, ev)
	}
	return s, nil
}

func buildEvent(je jsonEvent) (*Event, error) {
	if je.TMs == nil {
		return nil, fmt.Errorf("missing required field \"t_ms\"")
	}
	if je.Action == nil {
		return nil, fmt.Errorf("missing required field \"action\"")
	}

	ev := &Event{TMs: *je.TMs}
	if je.DurationMs != nil {
		ev.DurationMs = *je.DurationMs
	}
	if je.Condition != nil {
		cond, err := buildCondition(*je.Condition)
		if err != nil {
			return nil, err
		}
		ev.Condition = cond
	}
	ev.Action = buildAction(*je.Action)
	return ev, nil
}

func buildCondition(jc jsonCondition) (*Condition, error) {
	c := &Condition{}
	if jc.ModeIn != nil {
		m, ok := telemetry.ParseMode(*jc.ModeIn)
		if !ok {
			return nil, fmt.Errorf("condition: unrecognized mode_in %q", *jc.ModeIn)
		}
		c.ModeIn = &m
	}
	c.RPMGt = jc.RPMGt
	c.RPMLt = jc.RPMLt
	if jc.NspCmdEq != nil {
		code, err := parseHexCode(*jc.NspCmdEq)
		if err != nil {
			return nil, fmt.Errorf("condition: nsp_cmd_eq: %w", err)
		}
		c.CmdCode = &code
	}
	return c, nil
}

func parseHexCode(s string) (int, error) {
	var code int
	_, err := fmt.Sscanf(s, "0x%x", &code)
	if err != nil {
		return 0, fmt.Errorf("expected \"0xNN\", got %q", s)
	}
	return code, nil
}

func buildAction(ja jsonAction) Action {
	return Action{
		InjectCRCError:    ja.InjectCRCError,
		DropFramesPct:     ja.DropFramesPct,
		DelayReplyMs:      ja.DelayReplyMs,
		ForceNack:         ja.ForceNack,
		SetFaultBits:      ja.SetFaultBits,
		ClearFaultBits:    ja.ClearFaultBits,
		FlipStatusBits:    ja.FlipStatusBits,
		OverspeedFault:    ja.OverspeedFault,
		TripLCL:           ja.TripLCL,
		LimitPowerW:       ja.LimitPowerW,
		LimitCurrentA:     ja.LimitCurrentA,
		LimitSpeedRPM:     ja.LimitSpeedRPM,
		OverrideTorqueMNm: ja.OverrideTorqueMNm,
	}
}
