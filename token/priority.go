package token

import "github.com/Jiyabhaviksadaria/smartqueue"

// Policy holds the priority derivation constants.
type Policy struct {
	// EmergencySeverity is the healthcare severity score at or above which a
	// token is classified as an emergency.
	EmergencySeverity int

	// VIPPriority is assigned to VIP callers.
	VIPPriority Priority

	// SeniorPriority is assigned to senior callers.
	SeniorPriority Priority

	// StaffMayOverride lets staff callers request an explicit priority.
	StaffMayOverride bool
}

// DefaultPolicy returns the standard derivation constants.
func DefaultPolicy() Policy {
	return Policy{
		EmergencySeverity: 8,
		VIPPriority:       PriorityHigh,
		SeniorPriority:    PriorityMedium,
		StaffMayOverride:  true,
	}
}

// Classification is the input to priority derivation.
type Classification struct {
	Domain         smartqueue.Domain
	SeverityScore  int
	EmergencyQueue bool
	VIP            bool
	Senior         bool
	Requested      Priority
	RequestedBy    smartqueue.Role
}

// Derive returns the priority for c. The highest applicable class wins.
func (p Policy) Derive(c Classification) Priority {
	best := PriorityNormal
	consider := func(cand Priority) {
		if cand.Valid() && cand.Rank() < best.Rank() {
			best = cand
		}
	}

	if c.EmergencyQueue {
		consider(PriorityEmergency)
	}
	if c.Domain == smartqueue.DomainHealthcare && p.EmergencySeverity > 0 &&
		c.SeverityScore >= p.EmergencySeverity {
		consider(PriorityEmergency)
	}
	if c.VIP {
		consider(p.VIPPriority)
	}
	if c.Senior {
		consider(p.SeniorPriority)
	}
	if c.Requested != "" && p.StaffMayOverride && c.RequestedBy.IsStaff() {
		// An explicit staff request is authoritative, even when lower.
		if c.Requested.Valid() {
			return c.Requested
		}
	}
	return best
}
