package dimse

import (
	"fmt"
	"strconv"
	"strings"
)

// DIMSE status codes used by C-FIND and C-MOVE (PS3.4 C.4)
const (
	StatusSuccess            uint16 = 0x0000
	StatusPending            uint16 = 0xFF00
	StatusPendingWarning     uint16 = 0xFF01
	StatusCancel             uint16 = 0xFE00
	StatusWarning            uint16 = 0xB000
	StatusOutOfResources     uint16 = 0xA701
	StatusMoveDestUnknown    uint16 = 0xA801
	StatusIdentifierMismatch uint16 = 0xA900
	StatusUnableToProcess    uint16 = 0xC000
)

// StatusClass groups status codes by outcome
type StatusClass string

const (
	ClassSuccess StatusClass = "success"
	ClassPending StatusClass = "pending"
	ClassWarning StatusClass = "warning"
	ClassCancel  StatusClass = "cancel"
	ClassFailure StatusClass = "failure"
)

// Classify maps a status code to its outcome class
func Classify(status uint16) StatusClass {
	switch {
	case status == StatusSuccess:
		return ClassSuccess
	case status == StatusPending || status == StatusPendingWarning:
		return ClassPending
	case status == StatusCancel:
		return ClassCancel
	case status == 0x0001 || status&0xF000 == 0xB000:
		return ClassWarning
	default:
		return ClassFailure
	}
}

// Describe returns a short description of a status code
func Describe(status uint16) string {
	switch status {
	case StatusSuccess:
		return "success"
	case StatusPending, StatusPendingWarning:
		return "pending"
	case StatusCancel:
		return "cancelled"
	case StatusOutOfResources:
		return "out of resources"
	case StatusMoveDestUnknown:
		return "move destination unknown"
	case StatusIdentifierMismatch:
		return "identifier does not match SOP class"
	}
	switch Classify(status) {
	case ClassWarning:
		return "completed with warnings"
	default:
		return fmt.Sprintf("failed (0x%04X)", status)
	}
}

// IntValue parses an IS value, returning zero for empty or malformed input
func IntValue(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// ValidateAETitle checks the AE title length and character set (PS3.5 VR AE)
func ValidateAETitle(aet string) error {
	trimmed := strings.TrimSpace(aet)
	if trimmed == "" {
		return fmt.Errorf("AE title is empty")
	}
	if len(aet) > 16 {
		return fmt.Errorf("AE title %q exceeds 16 characters", aet)
	}
	for _, r := range aet {
		if r < 0x20 || r > 0x7E || r == '\\' {
			return fmt.Errorf("AE title %q contains an invalid character", aet)
		}
	}
	return nil
}
