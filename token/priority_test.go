package token_test

import (
	"testing"

	"github.com/Jiyabhaviksadaria/smartqueue"
	"github.com/Jiyabhaviksadaria/smartqueue/token"
)

func TestDerive(t *testing.T) {
	p := token.DefaultPolicy()
	hc := smartqueue.DomainHealthcare

	tests := []struct {
		name string
		in   token.Classification
		want token.Priority
	}{
		{"plain", token.Classification{Domain: hc}, token.PriorityNormal},
		{"severity at threshold", token.Classification{Domain: hc, SeverityScore: 8}, token.PriorityEmergency},
		{"severity below threshold", token.Classification{Domain: hc, SeverityScore: 7}, token.PriorityNormal},
		{"severity ignored for banking", token.Classification{Domain: smartqueue.DomainBanking, SeverityScore: 10}, token.PriorityNormal},
		{"vip", token.Classification{Domain: hc, VIP: true}, token.PriorityHigh},
		{"senior", token.Classification{Domain: hc, Senior: true}, token.PriorityMedium},
		{"vip and senior keeps higher", token.Classification{Domain: hc, VIP: true, Senior: true}, token.PriorityHigh},
		{"emergency queue", token.Classification{Domain: hc, EmergencyQueue: true}, token.PriorityEmergency},
		{
			"patient request ignored",
			token.Classification{Domain: hc, Requested: token.PriorityEmergency, RequestedBy: smartqueue.RolePatient},
			token.PriorityNormal,
		},
		{
			"staff request honoured",
			token.Classification{Domain: hc, Requested: token.PriorityHigh, RequestedBy: smartqueue.RoleDoctor},
			token.PriorityHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Derive(tt.in); got != tt.want {
				t.Errorf("Derive() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRank(t *testing.T) {
	if token.PriorityEmergency.Rank() != 0 ||
		token.PriorityHigh.Rank() != token.PriorityMedium.Rank() ||
		token.PriorityNormal.Rank() != 2 {
		t.Error("unexpected rank mapping")
	}
}
