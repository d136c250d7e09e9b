package service

import (
	"github.com/dmehra2102/prod-golang-projects/medvault/internal/domain"
	"github.com/google/uuid"
)

// Principal is the authenticated caller, resolved by the HTTP layer from the
// access token and passed explicitly into every service call.
type Principal struct {
	UserID    uuid.UUID
	Role      domain.Role
	IP        string
	RequestID string
	UserAgent string
}

func (p Principal) IsAdmin() bool   { return p.Role == domain.RoleAdmin }
func (p Principal) IsDoctor() bool  { return p.Role == domain.RoleDoctor }
func (p Principal) IsPatient() bool { return p.Role == domain.RolePatient }

// SystemPrincipal is used by background jobs and the CLI.
var SystemPrincipal = Principal{Role: domain.RoleAdmin, IP: "127.0.0.1", RequestID: "system"}
