package smartqueue

// Domain tags a queue and its tokens with the service context.
type Domain string

const (
	DomainHealthcare Domain = "healthcare"
	DomainBanking    Domain = "banking"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainHealthcare || d == DomainBanking
}

// NumberPrefix is the letter that starts display numbers in this domain.
func (d Domain) NumberPrefix() string {
	switch d {
	case DomainHealthcare:
		return "H"
	case DomainBanking:
		return "B"
	default:
		return "T"
	}
}
