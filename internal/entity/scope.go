package entity

import "github.com/google/uuid"

// Scope is the ownership boundary within which candidate transactions and
// cache rows are partitioned: a user, optionally narrowed to one company.
type Scope struct {
	UserID    uuid.UUID  `json:"user_id"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
}

func (s Scope) String() string {
	if s.CompanyID != nil {
		return s.UserID.String() + "/" + s.CompanyID.String()
	}
	return s.UserID.String()
}
