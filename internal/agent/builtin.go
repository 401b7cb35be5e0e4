package agent

import (
	"fmt"

	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/Cyclone1070/propagent/internal/tool/property"
)

const (
	leasingPrompt = `You are the leasing agent for a residential property.
Answer tenant and staff questions about leases using the available tools.
Only terminate a lease when explicitly asked and the reason is documented.
Reply with a short summary of what you found or did.`

	maintenancePrompt = `You are the maintenance coordinator for a residential property.
Turn maintenance requests into work orders assigned to the right vendor.
Pick the vendor whose trade matches the problem and set the priority honestly.
Reply with a short summary of the work order.`

	collectionsPrompt = `You are the collections agent for a residential property.
Review overdue invoices and send polite, factual payment reminders.
Do not remind tenants about invoices that are not overdue.
Reply with a short summary of the reminders sent.`
)

// Builtin returns the default personas, bound to tools from the catalog.
func Builtin(catalog map[string]tool.Tool) ([]Definition, error) {
	specs := []struct {
		id, prompt string
		tools      []string
		settings   Settings
	}{
		{
			id:     "leasing",
			prompt: leasingPrompt,
			tools:  []string{property.GetLease, property.TerminateLease},
			settings: Settings{
				Temperature:             temperature(0.2),
				MaxTokens:               1024,
				MaxIterations:           6,
				ConfidenceThreshold:     0.7,
				RequiresApprovalActions: []string{property.TerminateLease},
			},
		},
		{
			id:     "maintenance",
			prompt: maintenancePrompt,
			tools:  []string{property.AssignVendor},
			settings: Settings{
				Temperature:             temperature(0.3),
				MaxTokens:               1024,
				MaxIterations:           4,
				ConfidenceThreshold:     0.7,
				RequiresApprovalActions: []string{property.AssignVendor},
			},
		},
		{
			id:     "collections",
			prompt: collectionsPrompt,
			tools:  []string{property.GetLease, property.ListOverdueInvoices, property.SendPaymentReminder},
			settings: Settings{
				Temperature:         temperature(0.1),
				MaxTokens:           1024,
				MaxIterations:       8,
				ConfidenceThreshold: 0.8,
			},
		},
	}

	defs := make([]Definition, 0, len(specs))
	for _, s := range specs {
		tools, err := resolve(catalog, s.tools)
		if err != nil {
			return nil, fmt.Errorf("builtin %q: %w", s.id, err)
		}
		defs = append(defs, Definition{
			ID:           s.id,
			Persona:      s.id,
			SystemPrompt: s.prompt,
			Tools:        tools,
			Settings:     s.settings,
		})
	}
	return defs, nil
}

func resolve(catalog map[string]tool.Tool, names []string) ([]tool.Tool, error) {
	out := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		t, ok := catalog[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", tool.ErrToolNotFound, name)
		}
		out = append(out, t)
	}
	return out, nil
}

func temperature(v float64) *float64 { return &v }
