package profile

import (
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/dortmed-client/internal/utils"
)

// Role is the closed set of account roles. The zero value is not a valid role.
type Role int

const (
	RolePatient Role = iota + 1
	RolePhysician
	RoleAdmin
)

// ParseRole maps the backend's role string. "superuser" is the backend's name for admins.
func ParseRole(s string) (Role, error) {
	switch s {
	case "patient":
		return RolePatient, nil
	case "physician":
		return RolePhysician, nil
	case "superuser", "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	switch r {
	case RolePatient:
		return "patient"
	case RolePhysician:
		return "physician"
	case RoleAdmin:
		return "superuser"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Home is the dashboard route for the role.
func (r Role) Home() string {
	switch r {
	case RolePatient:
		return "/patient/dashboard"
	case RolePhysician:
		return "/physician/dashboard"
	case RoleAdmin:
		return "/admin/dashboard"
	default:
		return "/login"
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	switch r {
	case RolePatient, RolePhysician, RoleAdmin:
		return json.Marshal(r.String())
	default:
		return nil, fmt.Errorf("marshal invalid role %d", int(r))
	}
}

func (r *Role) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Plan is the subscription tier.
type Plan string

const (
	PlanFreemium Plan = "freemium"
	PlanBasic    Plan = "basic"
	PlanPremium  Plan = "premium"
	PlanUltimate Plan = "ultimate"
)

// Profile is the backend's user record as returned by GET /auth/me. It is an immutable
// snapshot: any change is a re-fetch, never a patch.
type Profile struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	PhoneNumber      *string         `json:"phone_number,omitempty"`
	Role             Role            `json:"role"`
	IsActive         bool            `json:"is_active"`
	IsVerified       bool            `json:"is_verified"`
	SubscriptionPlan Plan            `json:"subscription_plan"`
	FeatureFlags     map[string]bool `json:"feature_flags"`
	IsTFAEnabled     bool            `json:"is_tfa_enabled,omitempty"`

	// Role specific sections are kept raw; the application layer owns their shape.
	PatientProfile   json.RawMessage `json:"patient_profile,omitempty"`
	PhysicianProfile json.RawMessage `json:"physician_profile,omitempty"`
}

// Decode parses a profile document.
func Decode(b []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("decode profile: missing id")
	}
	return &p, nil
}

// Clone returns a deep copy so callers cannot alter the held snapshot.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.PhoneNumber != nil {
		cp.PhoneNumber = utils.Ptr(*p.PhoneNumber)
	}
	if p.FeatureFlags != nil {
		cp.FeatureFlags = make(map[string]bool, len(p.FeatureFlags))
		for k, v := range p.FeatureFlags {
			cp.FeatureFlags[k] = v
		}
	}
	cp.PatientProfile = append(json.RawMessage(nil), p.PatientProfile...)
	cp.PhysicianProfile = append(json.RawMessage(nil), p.PhysicianProfile...)
	return &cp
}

// FeatureEnabled reports whether the named feature flag is explicitly on. A nil profile
// has no features.
func (p *Profile) FeatureEnabled(name string) bool {
	if p == nil || p.FeatureFlags == nil {
		return false
	}
	return p.FeatureFlags[name]
}

// Allow reports whether p holds one of roles.
func Allow(p *Profile, roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
