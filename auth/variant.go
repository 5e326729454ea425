package auth

import "github.com/ioea/academy/internal/models"

// Variant carries the attributes that only make sense for the session's
// primary role. Callers switch on the concrete type.
type Variant interface {
	Role() Role
	// Label is the single-role label older pages expect ("manager",
	// "reviewer", "student", "program-admin").
	Label() string
}

type AdminVariant struct{}

func (AdminVariant) Role() Role    { return RoleAdmin }
func (AdminVariant) Label() string { return "manager" }

type ProgramAdminVariant struct{}

func (ProgramAdminVariant) Role() Role    { return RoleProgramAdmin }
func (ProgramAdminVariant) Label() string { return "program-admin" }

// ReviewerVariant holds the scoring group inherited from the legacy
// call_reviewers table.
type ReviewerVariant struct {
	Group            *int
	LegacyReviewerID *uint
}

func (ReviewerVariant) Role() Role    { return RoleReviewer }
func (ReviewerVariant) Label() string { return "reviewer" }

type StudentVariant struct {
	LegacyStudentID *uint
}

func (StudentVariant) Role() Role    { return RoleStudent }
func (StudentVariant) Label() string { return "student" }

// variantFor derives the typed variant from the user's roles. Users without
// a known role get a nil variant.
func variantFor(u *models.User, roles []Role) Variant {
	primary, ok := primaryRole(roles)
	if !ok {
		return nil
	}
	switch primary {
	case RoleAdmin:
		return AdminVariant{}
	case RoleProgramAdmin:
		return ProgramAdminVariant{}
	case RoleReviewer:
		return ReviewerVariant{Group: u.LegacyReviewerGroup, LegacyReviewerID: u.LegacyReviewerID}
	case RoleStudent:
		return StudentVariant{LegacyStudentID: u.LegacyStudentID}
	}
	return nil
}
