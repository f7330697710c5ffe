package models

import (
	"errors"
	"fmt"
)

// QueryFailure is returned when a directory query fails. It aborts the current cycle only.
type QueryFailure struct {
	Node string
	Op   string // e.g. "find studies", "find series"
	Err  error
}

func (e *QueryFailure) Error() string {
	return fmt.Sprintf("query failure on %s (%s): %v", e.Node, e.Op, e.Err)
}

func (e *QueryFailure) Unwrap() error {
	return e.Err
}

// TransferFailure is returned when a series move fails. It aborts one job only.
type TransferFailure struct {
	SeriesInstanceUID string
	StudyInstanceUID  string
	Status            uint16
	Err               error
}

func (e *TransferFailure) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transfer of series %s failed with status 0x%04X: %v", e.SeriesInstanceUID, e.Status, e.Err)
	}
	return fmt.Sprintf("transfer of series %s failed: %v", e.SeriesInstanceUID, e.Err)
}

func (e *TransferFailure) Unwrap() error {
	return e.Err
}

// ConfigurationError is fatal at startup
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// IsQueryFailure reports whether err wraps a QueryFailure
func IsQueryFailure(err error) bool {
	var qf *QueryFailure
	return errors.As(err, &qf)
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
