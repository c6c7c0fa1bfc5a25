package dto

import "time"

// SyncRequest triggers a template sync. The academic start date is
// optional; when absent the current academic year's September 1st is
// used.
type SyncRequest struct {
	AcademicStartDate *time.Time `json:"academic_start_date"`
}

// LinkRequest flips the template link state of one derived unit.
type LinkRequest struct {
	UnitType string `json:"unit_type" validate:"required,oneof=section resource assignment test"`
	UnitID   uint   `json:"unit_id" validate:"required"`
}
