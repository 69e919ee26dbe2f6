package models

import (
	"strings"

	dErrors "crowdfund/pkg/domain-errors"
)

// SubmitRequest is the body of POST /verification/requests.
type SubmitRequest struct {
	FullName   string `json:"full_name"`
	NationalID string `json:"national_id"`
}

func (r *SubmitRequest) Normalize() {
	r.FullName = strings.Join(strings.Fields(r.FullName), " ")
	r.NationalID = strings.TrimSpace(r.NationalID)
}

func (r *SubmitRequest) Validate() error {
	if r.FullName == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if len(r.FullName) > MaxFullNameLength {
		return dErrors.Newf(dErrors.CodeValidation, "full_name must be %d bytes or less", MaxFullNameLength)
	}
	if r.NationalID == "" {
		return dErrors.New(dErrors.CodeValidation, "national_id is required")
	}
	if len(r.NationalID) > MaxNationalIDLength {
		return dErrors.Newf(dErrors.CodeValidation, "national_id must be %d bytes or less", MaxNationalIDLength)
	}
	return nil
}

// StatusResponse answers GET /verification/status/{identity}.
type StatusResponse struct {
	Identity string `json:"identity"`
	Approved bool   `json:"approved"`
}

// ListResponse answers GET /admin/verification/requests.
type ListResponse struct {
	Requests []*Request `json:"requests"`
	Count    int        `json:"count"`
}

// WhoAmIResponse answers GET /admin/whoami.
type WhoAmIResponse struct {
	Administrator string `json:"administrator"`
}
