package routing

import (
	"encoding/json"
	"fmt"

	"github.com/imrishuroy/go-donut-locker-orderflow/internal/orders"
)

// Rule is a bus rule: either an event pattern or a schedule.
type Rule struct {
	Name               string
	Description        string
	EventPattern       Pattern
	ScheduleExpression string
	ScheduleTimezone   string
}

// DailySchedule triggers the processor's sweep every night.
var DailySchedule = Rule{
	Name:               "DailyOrderSweep",
	Description:        "Accept submitted orders due today",
	ScheduleExpression: "cron(00 01 * * ? *)",
	ScheduleTimezone:   "Europe/Amsterdam",
}

// AcceptedOrderRule matches order changes from eventSource whose new image is an accepted
// order of a partner whose source starts with sourcePrefix.
func AcceptedOrderRule(eventSource, sourcePrefix string) Rule {
	return Rule{
		Name:        sourcePrefix + "AcceptedOrders",
		Description: "Accepted " + sourcePrefix + " orders",
		EventPattern: Pattern{
			"source": []interface{}{eventSource},
			"detail": Pattern{
				"dynamodb": Pattern{
					"NewImage": Pattern{
						"source":      Pattern{"S": []interface{}{Prefix(sourcePrefix)}},
						"orderStatus": Pattern{"S": []interface{}{Prefix(orders.StatusAccepted)}},
					},
				},
			},
		},
	}
}

// CrossAccountRule forwards every event of eventSource to the consumer account's bus.
func CrossAccountRule(eventSource string) Rule {
	return Rule{
		Name:         "ForwardToConsumerAccount",
		Description:  "Forward order flow events to the consumer account",
		EventPattern: Pattern{"source": []interface{}{eventSource}},
	}
}

// Rules is the rule set deployed for the order flow.
func Rules(eventSource, sourcePrefix string) []Rule {
	return []Rule{
		AcceptedOrderRule(eventSource, sourcePrefix),
		CrossAccountRule(eventSource),
		DailySchedule,
	}
}

// Definition is a rule in the shape of the bus PutRule request.
type Definition struct {
	Name                       string `json:"Name"`
	Description                string `json:"Description,omitempty"`
	EventPattern               string `json:"EventPattern,omitempty"`
	ScheduleExpression         string `json:"ScheduleExpression,omitempty"`
	ScheduleExpressionTimezone string `json:"ScheduleExpressionTimezone,omitempty"`
	State                      string `json:"State"`
}

// Definition renders r for deployment.
func (r Rule) Definition() (Definition, error) {
	d := Definition{
		Name:                       r.Name,
		Description:                r.Description,
		ScheduleExpression:         r.ScheduleExpression,
		ScheduleExpressionTimezone: r.ScheduleTimezone,
		State:                      "ENABLED",
	}
	if r.EventPattern != nil {
		pattern, err := r.EventPattern.JSON()
		if err != nil {
			return Definition{}, fmt.Errorf("rule %s: %w", r.Name, err)
		}
		d.EventPattern = pattern
	}
	return d, nil
}

// Rule reads a deployed definition back.
func (d Definition) Rule() (Rule, error) {
	r := Rule{
		Name:               d.Name,
		Description:        d.Description,
		ScheduleExpression: d.ScheduleExpression,
		ScheduleTimezone:   d.ScheduleExpressionTimezone,
	}
	if d.EventPattern != "" {
		p, err := ParsePattern(d.EventPattern)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", d.Name, err)
		}
		r.EventPattern = p
	}
	return r, nil
}

// Export renders rules as a JSON list of definitions.
func Export(rules []Rule) ([]byte, error) {
	defs := make([]Definition, 0, len(rules))
	for _, r := range rules {
		d, err := r.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return json.MarshalIndent(defs, "", "  ")
}

// Import reads rules written by Export.
func Import(b []byte) ([]Rule, error) {
	var defs []Definition
	if err := json.Unmarshal(b, &defs); err != nil {
		return nil, fmt.Errorf("parse rule definitions: %w", err)
	}
	rules := make([]Rule, 0, len(defs))
	for _, d := range defs {
		r, err := d.Rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Matching returns the names of the pattern rules that match event. Schedules never match.
func Matching(rules []Rule, event []byte) ([]string, error) {
	var names []string
	for _, r := range rules {
		if r.EventPattern == nil {
			continue
		}
		ok, err := r.EventPattern.Matches(event)
		if err != nil {
			return nil, err
		}
		if ok {
			names = append(names, r.Name)
		}
	}
	return names, nil
}
